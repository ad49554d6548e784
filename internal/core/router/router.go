// Package router turns facade query strings into request configurations.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/geo"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/ogc"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/selection"
)

// Parsed is a validated /urls query. Request.Layers holds the layer id
// given by the caller, or the collection id when bands or wavelengths are
// selected; Title is left for the caller to resolve against the catalog.
type Parsed struct {
	Request    ogc.Request
	Collection string
	Layer      string
	Exact      bool
	BBox       orb.Bound
	HasBBox    bool
}

// Selector reports whether bands or wavelengths replace a named layer.
func (p Parsed) Selector() bool {
	return p.Request.DimBands != "" || p.Request.DimWavelengths != ""
}

// ParseRequest validates the query parameters url, collection, layer, style,
// crs, time0, time1, exact, priority, maxcc, bands, wavelengths, bbox,
// format, resx, resy, width and height. now resolves an open end date.
func ParseRequest(r *http.Request, now time.Time) (Parsed, string, error) {
	q := r.URL.Query()
	get := func(k string) string { return strings.TrimSpace(q.Get(k)) }
	var warn string

	svc := get("url")
	if svc == "" {
		return Parsed{}, "", errors.New("missing required parameter: url")
	}
	collection := get("collection")
	layer := get("layer")
	bands, wavelengths := get("bands"), get("wavelengths")

	if bands != "" && wavelengths != "" {
		warn = "both bands and wavelengths supplied; preferring wavelengths"
		bands = ""
	}
	for name, v := range map[string]string{"bands": bands, "wavelengths": wavelengths} {
		if v != "" && len(strings.Split(v, ",")) != selection.Slots {
			return Parsed{}, warn, fmt.Errorf("%s: want %d comma-separated values", name, selection.Slots)
		}
	}
	if (bands != "" || wavelengths != "") && collection == "" {
		return Parsed{}, warn, errors.New("bands and wavelengths require a collection")
	}
	if layer == "" && collection == "" {
		return Parsed{}, warn, errors.New("missing required parameter: layer or collection")
	}

	exact, err := parseBool(get("exact"))
	if err != nil {
		return Parsed{}, warn, fmt.Errorf("exact: %w", err)
	}
	t0, ok0 := ogc.ParseDate(get("time0"))
	t1, ok1 := ogc.ParseDate(get("time1"))
	if !ok0 || !ok1 {
		return Parsed{}, warn, errors.New("dates must be in format YYYY-MM-DD")
	}
	if t0 != "" && t1 != "" && t0 > t1 && !exact {
		return Parsed{}, warn, errors.New("start date must not be larger than end date")
	}

	priority := orDefault(get("priority"), ogc.Priorities[0].Value)
	if !ogc.ValidChoice(ogc.Priorities, priority) {
		return Parsed{}, warn, fmt.Errorf("unsupported priority %q", priority)
	}
	format := orDefault(get("format"), ogc.ImageFormats[0].Value)
	if !ogc.ValidChoice(ogc.ImageFormats, format) {
		return Parsed{}, warn, fmt.Errorf("unsupported format %q", format)
	}

	maxcc := 100
	if v := get("maxcc"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return Parsed{}, warn, errors.New("maxcc must be an integer between 0 and 100")
		}
		maxcc = n
	}

	resx, resy := orDefault(get("resx"), "10"), orDefault(get("resy"), "10")
	for name, v := range map[string]string{"resx": resx, "resy": resy} {
		if _, err := parseFloat(strings.TrimSuffix(v, "m")); err != nil {
			return Parsed{}, warn, fmt.Errorf("%s: %w", name, err)
		}
	}

	width, err := parseSize(get("width"))
	if err != nil {
		return Parsed{}, warn, fmt.Errorf("width: %w", err)
	}
	height, err := parseSize(get("height"))
	if err != nil {
		return Parsed{}, warn, fmt.Errorf("height: %w", err)
	}

	out := Parsed{Collection: collection, Layer: layer, Exact: exact}
	crs := orDefault(get("crs"), ogc.PopularWebMercator)
	if raw := get("bbox"); raw != "" {
		b, err := geo.ParseBBox(raw)
		if err != nil {
			return Parsed{}, warn, fmt.Errorf("invalid bbox: %w", err)
		}
		if b.Min.X() == b.Max.X() || b.Min.Y() == b.Max.Y() {
			return Parsed{}, warn, errors.New("invalid bbox: empty area")
		}
		out.BBox, out.HasBBox = b, true
	}

	layers := layer
	if bands != "" || wavelengths != "" {
		layers = collection
	}
	out.Request = ogc.Request{
		ServiceURL:     svc,
		Layers:         layers,
		Styles:         get("style"),
		CRS:            crs,
		Time:           ogc.TimeExpression(t0, t1, exact, now),
		DimBands:       bands,
		DimWavelengths: wavelengths,
		Priority:       priority,
		MaxCC:          strconv.Itoa(maxcc),
		Format:         format,
		ResX:           resx,
		ResY:           resy,
		Coverage:       layers,
		Width:          width,
		Height:         height,
	}
	if out.HasBBox {
		out.Request.BBox = geo.FormatBBox(out.BBox, crs)
	}
	return out, warn, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse bool: %w", err)
	}
	return b, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

func parseSize(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 10000 {
		return 0, errors.New("must be an integer between 1 and 10000")
	}
	return n, nil
}
