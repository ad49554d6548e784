package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) statusCmd() *cobra.Command {
	var f selectFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session state the selection flags lead to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.openSession(ctx, cmd)
			if err != nil {
				return err
			}
			if err := f.apply(ctx, cmd, s); err != nil {
				return err
			}

			r := s.Request()
			sel := s.Selection()
			t0, t1 := s.Dates()
			resX, resY := s.Resolution()
			folder := s.DownloadFolder()
			if folder == "" {
				folder = "-"
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "base url\t%s\n", s.BaseURL())
			fmt.Fprintf(tw, "instance\t%s (%d offered)\n", s.Instance(), len(s.Instances()))
			fmt.Fprintf(tw, "service url\t%s\n", s.ServiceURL())
			fmt.Fprintf(tw, "collection\t%s (%s)\n", sel.Collection, sel.CollectionID)
			fmt.Fprintf(tw, "mode\t%s\n", sel.Mode.Name())
			fmt.Fprintf(tw, "layers\t%s\n", r.Layers)
			fmt.Fprintf(tw, "style\t%s\n", r.Styles)
			fmt.Fprintf(tw, "crs\t%s\n", s.CRS())
			fmt.Fprintf(tw, "dates\t%s .. %s (exact: %t)\n", dash(t0), dash(t1), s.ExactDate())
			fmt.Fprintf(tw, "time\t%s\n", r.Time)
			fmt.Fprintf(tw, "resolution\t%s x %s\n", resX, resY)
			fmt.Fprintf(tw, "download folder\t%s\n", folder)
			if s.CustomExtent() {
				c := s.Custom()
				fmt.Fprintf(tw, "custom extent\tlat %s..%s lng %s..%s\n", c.LatMin, c.LatMax, c.LngMin, c.LngMax)
			}
			return tw.Flush()
		},
	}
	f.register(cmd)
	f.registerCustom(cmd)
	return cmd
}

func dash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
