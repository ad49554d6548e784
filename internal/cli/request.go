package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) urlCmd() *cobra.Command {
	var (
		f             selectFlags
		width, height int
		showName      bool
		check         bool
	)
	cmd := &cobra.Command{
		Use:   "url {wms|layer-uri|wcs|wfs}",
		Short: "Build a request URL for the current selection",
		Long: `Builds a request URL from the selection flags. With --check the request is
sent once and the service's error message is reported if it rejects it; for
layer-uri this sends the GetMap request of --bbox.`,
		Example: `  edc-ogc url wms -c "Sentinel-2 L2A" --bbox 1600000,5780000,1620000,5800000
  edc-ogc url wcs -c S2L2A --bands B04,B03,B02 --crs EPSG:4326 --bbox 14.5,46.0,14.6,46.1
  edc-ogc url layer-uri -l TRUE_COLOR --time0 2021-05-01 --time1 2021-05-31`,
		ValidArgs: []string{"wms", "layer-uri", "wcs", "wfs"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openSession(ctx, cmd)
			if err != nil {
				return err
			}
			if err := f.apply(ctx, cmd, s); err != nil {
				return err
			}

			var u string
			switch args[0] {
			case "layer-uri":
				u, err = s.LayerURI()
			case "wms":
				window, werr := f.window(true)
				if werr != nil {
					return werr
				}
				u, err = s.GetMapURL(window, width, height)
			case "wcs":
				window, werr := f.window(!s.CustomExtent())
				if werr != nil {
					return werr
				}
				u, err = s.CoverageURL(window)
			case "wfs":
				window, werr := f.window(true)
				if werr != nil {
					return werr
				}
				u, err = s.FeatureURL(window)
			}
			if err != nil {
				return err
			}
			if check {
				target := u
				if args[0] == "layer-uri" {
					// the host sends GetMap requests for the visible window
					window, err := f.window(true)
					if err != nil {
						return err
					}
					if target, err = s.GetMapURL(window, width, height); err != nil {
						return err
					}
				}
				if err := s.Probe(ctx, target); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			if showName {
				fmt.Fprintln(out, s.LayerName())
			}
			fmt.Fprintln(out, u)
			return nil
		},
	}
	f.register(cmd)
	f.registerCustom(cmd)
	cmd.Flags().IntVar(&width, "width", 512, "GetMap image width")
	cmd.Flags().IntVar(&height, "height", 512, "GetMap image height")
	cmd.Flags().BoolVar(&showName, "name", false, "print the map layer name before the URL")
	cmd.Flags().BoolVar(&check, "check", false, "send the request once and report the service's error")
	return cmd
}

func (a *app) downloadCmd() *cobra.Command {
	var (
		f     selectFlags
		quiet bool
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the coverage of a window or custom extent",
		Long: `Downloads a WCS GetCoverage image into the download folder (--folder or
the configured one). The window is --bbox in the selected CRS, or the custom
WGS84 extent given with --lat-min/--lat-max/--lng-min/--lng-max.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.openSession(ctx, cmd)
			if err != nil {
				return err
			}
			if err := f.apply(ctx, cmd, s); err != nil {
				return err
			}
			window, err := f.window(!s.CustomExtent())
			if err != nil {
				return err
			}

			var progress progressBar
			progress.out = cmd.ErrOrStderr()
			progress.quiet = quiet
			path, err := s.Download(ctx, window, &progress)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	f.register(cmd)
	f.registerCustom(cmd)
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not show a progress bar")
	return cmd
}
