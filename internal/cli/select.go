package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/geo"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/selection"
	"github.com/eurodatacube/edc-qgis-plugin/internal/session"
)

// selectFlags mirror the selection controls of a session.
type selectFlags struct {
	instance    string
	collection  string
	layer       string
	style       string
	crs         string
	bands       string
	wavelengths string
	time0       string
	time1       string
	month       string
	exact       bool
	priority    string
	maxcc       int
	format      string
	resx        string
	resy        string
	bbox        string
	custom      session.CustomBBox
}

func (f *selectFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.instance, "instance", "", "instance name")
	fl.StringVarP(&f.collection, "collection", "c", "", "collection name (default: first)")
	fl.StringVarP(&f.layer, "layer", "l", "", "layer id or name (default: first of the collection)")
	fl.StringVar(&f.style, "style", "", "layer style")
	fl.StringVar(&f.crs, "crs", "", "coordinate reference system (default EPSG:3857)")
	fl.StringVar(&f.bands, "bands", "", "three comma separated bands, selects dimension mode")
	fl.StringVar(&f.wavelengths, "wavelengths", "", "three comma separated wavelengths, selects wavelength mode")
	fl.StringVar(&f.time0, "time0", "", "start date YYYY-MM-DD")
	fl.StringVar(&f.time1, "time1", "", "end date YYYY-MM-DD")
	fl.StringVar(&f.month, "month", "", "whole calendar month YYYY-MM instead of --time0/--time1")
	fl.BoolVar(&f.exact, "exact", false, "request the single day time0")
	fl.StringVar(&f.priority, "priority", "", "mostRecent|leastRecent|leastCC")
	fl.IntVar(&f.maxcc, "maxcc", 100, "maximum cloud coverage in percent")
	fl.StringVar(&f.format, "format", "", "image format mime type")
	fl.StringVar(&f.resx, "resx", "", "x resolution in metres")
	fl.StringVar(&f.resy, "resy", "", "y resolution in metres")
	fl.StringVar(&f.bbox, "bbox", "", "window x1,y1,x2,y2 in the selected CRS")
}

func (f *selectFlags) registerCustom(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.custom.LatMin, "lat-min", "", "custom extent minimum latitude (WGS84)")
	fl.StringVar(&f.custom.LatMax, "lat-max", "", "custom extent maximum latitude (WGS84)")
	fl.StringVar(&f.custom.LngMin, "lng-min", "", "custom extent minimum longitude (WGS84)")
	fl.StringVar(&f.custom.LngMax, "lng-max", "", "custom extent maximum longitude (WGS84)")
}

func (f *selectFlags) customSet() bool {
	c := f.custom
	return c.LatMin != "" || c.LatMax != "" || c.LngMin != "" || c.LngMax != ""
}

// apply drives s through the same transitions an interactive user would.
func (f *selectFlags) apply(ctx context.Context, cmd *cobra.Command, s *session.Session) error {
	if f.instance != "" {
		if err := s.ChangeInstance(ctx, f.instance); err != nil {
			return err
		}
	}
	if f.collection != "" {
		if err := s.SelectCollection(collectionName(s, f.collection)); err != nil {
			return err
		}
	}
	if f.crs != "" {
		if err := s.SelectCRS(f.crs); err != nil {
			return err
		}
	}

	switch {
	case f.wavelengths != "":
		if err := s.UseWavelengths(); err != nil {
			return err
		}
		if err := setSlots(f.wavelengths, s.SetWavelength); err != nil {
			return err
		}
	case f.bands != "":
		if err := s.UseDimensions(); err != nil {
			return err
		}
		if err := setSlots(f.bands, s.SetBand); err != nil {
			return err
		}
	case f.layer != "":
		s.UseLayers()
		if err := selectLayer(s, f.layer); err != nil {
			return err
		}
	}
	if f.style != "" {
		if err := s.SelectStyle(f.style); err != nil {
			return err
		}
	}

	s.SetExactDate(f.exact)
	if err := f.applyDates(s); err != nil {
		return err
	}
	if f.priority != "" {
		if err := s.SetPriority(f.priority); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("maxcc") {
		if err := s.SetMaxCC(f.maxcc); err != nil {
			return err
		}
	}
	if f.format != "" {
		if err := s.SetFormat(f.format); err != nil {
			return err
		}
	}
	if f.resx != "" || f.resy != "" {
		x, y := s.Resolution()
		if f.resx != "" {
			x = f.resx
		}
		if f.resy != "" {
			y = f.resy
		}
		if err := s.SetResolution(x, y); err != nil {
			return err
		}
	}
	if f.customSet() {
		if err := s.SetCustomBBox(f.custom); err != nil {
			return err
		}
		s.UseCustomExtent(true)
	}
	return nil
}

// applyDates sets a whole month, both dates, or one end of the range the
// way a calendar pick does.
func (f *selectFlags) applyDates(s *session.Session) error {
	switch {
	case f.month != "":
		if f.time0 != "" || f.time1 != "" {
			return errors.New("--month cannot be combined with --time0 or --time1")
		}
		m, err := time.Parse("2006-01", f.month)
		if err != nil {
			return fmt.Errorf("%w: month %q", session.ErrInvalidDate, f.month)
		}
		s.ShowMonth(m.Year(), m.Month())
	case f.time0 != "" && f.time1 != "":
		return s.SetDates(f.time0, f.time1)
	case f.time0 != "":
		return s.PickDate(session.Time0, f.time0)
	case f.time1 != "":
		return s.PickDate(session.Time1, f.time1)
	}
	return nil
}

func setSlots(list string, set func(int, string) error) error {
	parts := strings.Split(list, ",")
	if len(parts) != selection.Slots {
		return fmt.Errorf("expected %d comma separated values, got %q", selection.Slots, list)
	}
	for i, v := range parts {
		if err := set(i, strings.TrimSpace(v)); err != nil {
			return err
		}
	}
	return nil
}

// collectionName accepts a collection id where a display name is expected.
func collectionName(s *session.Session, v string) string {
	if cat := s.Catalog(); cat != nil {
		for _, c := range cat.Collections {
			if c.ID == v {
				return c.Name
			}
		}
	}
	return v
}

// selectLayer finds a layer by id or name, in the active collection first
// and then in the others, switching collection when needed.
func selectLayer(s *session.Session, layer string) error {
	cat := s.Catalog()
	if cat == nil {
		return session.ErrNoCatalog
	}
	active := s.Selection().Collection
	names := []string{active}
	for _, c := range cat.Collections {
		if c.Name != active {
			names = append(names, c.Name)
		}
	}
	for _, name := range names {
		for i, l := range cat.LayersOf(name) {
			if l.ID != layer && l.Name != layer {
				continue
			}
			if name != active {
				if err := s.SelectCollection(name); err != nil {
					return err
				}
			}
			return s.SelectLayer(i)
		}
	}
	return fmt.Errorf("layer %q not found", layer)
}

// window parses --bbox. It is required unless the custom extent is used.
func (f *selectFlags) window(required bool) (orb.Bound, error) {
	if f.bbox == "" {
		if required {
			return orb.Bound{}, fmt.Errorf("--bbox is required")
		}
		return orb.Bound{}, nil
	}
	return geo.ParseBBox(f.bbox)
}
