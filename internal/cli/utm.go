package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/geo"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/ogc"
)

func utmCmd() *cobra.Command {
	var (
		bbox string
		crs  string
	)
	cmd := &cobra.Command{
		Use:   "utm <lng> <lat>",
		Short: "Print the UTM zone CRS of a point, and optionally the size of a box",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lng, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("lng: %w", err)
			}
			lat, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("lat: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, geo.UTMZone(lng, lat))

			if bbox == "" {
				return nil
			}
			b, err := geo.ParseBBox(bbox)
			if err != nil {
				return err
			}
			w, h, err := geo.ApproxSize(b, crs)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%.0fm x %.0fm\n", w, h)
			return nil
		},
	}
	cmd.Flags().StringVar(&bbox, "bbox", "", "box x1,y1,x2,y2 to measure")
	cmd.Flags().StringVar(&crs, "crs", ogc.WGS84, "CRS of --bbox")
	return cmd
}
