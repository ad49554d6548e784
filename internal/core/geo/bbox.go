// Package geo holds the bounding-box helpers used when building coverage
// requests: serialisation, parsing, UTM zone lookup and size estimates.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/project"
)

const (
	wgs84              = "EPSG:4326"
	popularWebMercator = "EPSG:3857"
)

var ErrUnsupportedCRS = errors.New("unsupported crs for size estimate")

// NewBound returns the bound spanned by two corners given in any order.
func NewBound(x1, y1, x2, y2 float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Min(x1, x2), math.Min(y1, y2)},
		Max: orb.Point{math.Max(x1, x2), math.Max(y1, y2)},
	}
}

// FormatBBox serialises b for a request in crs. WGS84 uses lat,lon axis
// order with 6 decimals; everything else x,y with 2 decimals.
func FormatBBox(b orb.Bound, crs string) string {
	precision := 2
	coords := []float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
	if crs == wgs84 {
		precision = 6
		coords = []float64{b.Min.Y(), b.Min.X(), b.Max.Y(), b.Max.X()}
	}
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = formatCoord(c, precision)
	}
	return strings.Join(parts, ",")
}

// formatCoord rounds the exact binary value to precision, ties to even,
// drops trailing zeros and always keeps a decimal point.
func formatCoord(v float64, precision int) string {
	s := strconv.FormatFloat(v, 'f', precision, 64)
	if !strings.Contains(s, ".") {
		return s + ".0"
	}
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

// ParseBBox reads "xMin,yMin,xMax,yMax".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox %q: want 4 comma-separated numbers", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	return NewBound(v[0], v[1], v[2], v[3]), nil
}

// CustomBBox builds a WGS84 bound from user-entered latitude and longitude
// limits. Swapped limits are accepted.
func CustomBBox(latMin, latMax, lngMin, lngMax string) (orb.Bound, error) {
	var v [4]float64
	for i, s := range []string{latMin, latMax, lngMin, lngMax} {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("custom bbox: %w", err)
		}
		v[i] = f
	}
	return NewBound(v[2], v[0], v[3], v[1]), nil
}

// UTMZone returns the EPSG code of the UTM zone containing lng/lat.
func UTMZone(lng, lat float64) string {
	zone := int(math.Floor((lng+180)/6)) + 1
	hemisphere := 7
	if lat > 0 {
		hemisphere = 6
	}
	return fmt.Sprintf("EPSG:32%d%02d", hemisphere, zone)
}

// ToWGS84Center returns the centre of b as lon/lat. ok is false for CRSs
// that cannot be un-projected here.
func ToWGS84Center(b orb.Bound, crs string) (orb.Point, bool) {
	switch crs {
	case wgs84:
		return b.Center(), true
	case popularWebMercator:
		return project.Mercator.ToWGS84(b.Center()), true
	default:
		return orb.Point{}, false
	}
}

// ApproxSize estimates width and height of b in metres, measured through
// the centre of the box.
func ApproxSize(b orb.Bound, crs string) (width, height float64, err error) {
	switch crs {
	case wgs84:
	case popularWebMercator:
		b = orb.Bound{
			Min: project.Mercator.ToWGS84(b.Min),
			Max: project.Mercator.ToWGS84(b.Max),
		}
	default:
		return 0, 0, fmt.Errorf("%w: %s", ErrUnsupportedCRS, crs)
	}
	c := b.Center()
	width = geo.Distance(orb.Point{b.Min.X(), c.Y()}, orb.Point{b.Max.X(), c.Y()})
	height = geo.Distance(orb.Point{c.X(), b.Min.Y()}, orb.Point{c.X(), b.Max.Y()})
	return width, height, nil
}
