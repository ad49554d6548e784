package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/ogc"
	"github.com/eurodatacube/edc-qgis-plugin/internal/session"
)

func (a *app) instancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instances [base-url]",
		Short: "List the instances of a service base URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := a.v.GetString("service_url")
			if len(args) == 1 {
				base = args[0]
			}
			base = strings.TrimSpace(base)
			if base == "" {
				return session.ErrMissingURL
			}
			if !strings.HasSuffix(base, "/") {
				base += "/"
			}
			exec, err := a.executor(a.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			list, err := exec.FetchInstances(cmd.Context(), base)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tID\tSERVICE URL")
			for _, in := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", in.Name, in.ID, ogc.ServiceURL(base, in.ID))
			}
			return tw.Flush()
		},
	}
}

func (a *app) capabilitiesCmd() *cobra.Command {
	var (
		service  string
		instance string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "capabilities [service-url]",
		Short: "Show the collections, layers and CRSs a service offers",
		Long: `Without an argument the configured base URL is loaded the same way the
interactive session does: its first instance, or --instance.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var cat *ogc.Capabilities
			if len(args) == 1 {
				exec, err := a.executor(a.logger(cmd.ErrOrStderr()))
				if err != nil {
					return err
				}
				if cat, err = exec.FetchCapabilities(ctx, args[0], service); err != nil {
					return err
				}
			} else {
				s, err := a.openSession(ctx, cmd)
				if err != nil {
					return err
				}
				if instance != "" {
					if err := s.ChangeInstance(ctx, instance); err != nil {
						return err
					}
				}
				cat = s.Catalog()
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cat)
			}
			return printCatalog(cmd.OutOrStdout(), cat)
		},
	}
	cmd.Flags().StringVar(&service, "service", "wms", "wms|wcs|wfs")
	cmd.Flags().StringVar(&instance, "instance", "", "instance name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}

func printCatalog(w io.Writer, cat *ogc.Capabilities) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range cat.Collections {
		fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.ID)
		for _, l := range cat.LayersOf(c.Name) {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", l.ID, l.Name, strings.Join(l.Styles, ","))
		}
		if dims := cat.DimensionsOf(c.Name); len(dims) > 0 {
			fmt.Fprintf(tw, "  bands\t%s\n", strings.Join(dims, ","))
		}
		if wl := cat.WavelengthsOf(c.Name); len(wl) > 0 {
			fmt.Fprintf(tw, "  wavelengths\t%s\n", strings.Join(wl, ","))
		}
	}
	ids := make([]string, 0, len(cat.CRSList))
	for _, c := range cat.CRSList {
		ids = append(ids, c.ID)
	}
	fmt.Fprintf(tw, "crs\t%s\n", strings.Join(ids, ","))
	return tw.Flush()
}
