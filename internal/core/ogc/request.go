package ogc

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Request is the request configuration assembled from the current
// selections. Builders only read it.
type Request struct {
	ServiceURL     string
	Title          string
	Layers         string
	Styles         string
	CRS            string
	Time           string
	DimBands       string
	DimWavelengths string
	Priority       string
	MaxCC          string
	Format         string
	ResX           string
	ResY           string
	Coverage       string
	BBox           string
	Width          int
	Height         int
}

// Common returns the parameter group shared by all operations.
func (r Request) Common() Params {
	return Params{
		{"title", r.Title},
		{"layers", r.Layers},
		{"time", r.Time},
		{"crs", r.CRS},
		{"dim_bands", r.DimBands},
		{"dim_wavelengths", r.DimWavelengths},
		{"priority", r.Priority},
		{"maxcc", r.MaxCC},
	}
}

func (r Request) selectorTerm() string {
	switch {
	case r.DimWavelengths != "":
		return "&dim_wavelengths=" + r.DimWavelengths
	case r.DimBands != "":
		return "&dim_bands=" + r.DimBands
	default:
		return ""
	}
}

// LayerURI builds the WMS data source string for a desktop raster-layer
// host. Such hosts forward only a few query keys verbatim, so every
// service-specific term travels inside one percent-encoded url= value.
// The other terms are written as given, the host splits on & itself.
func LayerURI(d Defaults, r Request) string {
	params := d.WMS.With("styles", r.Styles).Concat(r.Common())
	tail := fmt.Sprintf("%s?Time=%s%s&priority=%s&maxcc=%s",
		r.ServiceURL, r.Time, r.selectorTerm(), r.Priority, r.MaxCC)
	return params.Join() + "&url=" + url.QueryEscape(tail)
}

// GetMapURL builds a plain WMS GetMap URL for generic HTTP clients.
func GetMapURL(d Defaults, r Request) string {
	params := d.WMS.Without(hostOnlyKeys...).With("styles", r.Styles)
	for _, kv := range r.Common() {
		if (kv.Key == "dim_bands" || kv.Key == "dim_wavelengths") && kv.Value == "" {
			continue
		}
		params = params.With(kv.Key, kv.Value)
	}
	if r.BBox != "" {
		params = params.With("bbox", r.BBox)
	}
	if r.Width > 0 && r.Height > 0 {
		params = params.With("width", strconv.Itoa(r.Width))
		params = params.With("height", strconv.Itoa(r.Height))
	}
	return r.ServiceURL + "?" + params.Encode()
}

// GetCoverageURL builds a WCS GetCoverage URL. crsOverride replaces the
// request CRS when non-empty.
func GetCoverageURL(d Defaults, r Request, crsOverride string) string {
	wcs := d.WCS
	if r.Format != "" {
		wcs = wcs.With("format", r.Format)
	}
	if r.ResX != "" {
		wcs = wcs.With("resx", r.ResX)
	}
	if r.ResY != "" {
		wcs = wcs.With("resy", r.ResY)
	}
	if r.Coverage != "" {
		wcs = wcs.With("coverage", r.Coverage)
	}

	params := wcs.Concat(r.Common())
	for i := range params {
		switch params[i].Key {
		case "resx", "resy":
			params[i].Value = Metres(params[i].Value)
		case "crs":
			if crsOverride != "" {
				params[i].Value = crsOverride
			}
		}
	}
	return r.ServiceURL + "?" + params.Encode() + "&bbox=" + r.BBox
}

// GetFeatureURL builds a WFS GetFeature URL. Only the service URL and CRS
// are taken from r.
func GetFeatureURL(d Defaults, r Request, bbox, timeRange string) string {
	return fmt.Sprintf("%s?%s&bbox=%s&time=%s&srsname=%s",
		r.ServiceURL, d.WFS.Encode(), bbox, timeRange, r.CRS)
}

// Metres appends exactly one "m" unit suffix to a resolution value.
func Metres(v string) string {
	return strings.Trim(v, "m") + "m"
}

func CapabilitiesURL(base, service string, asJSON bool) string {
	u := fmt.Sprintf("%s?service=%s&request=GetCapabilities&version=1.3.0", base, strings.ToUpper(service))
	if asJSON {
		u += "&format=application/json"
	}
	return u
}

func InstancesURL(base string) string {
	return strings.TrimRight(base, "/") + "/instances.json"
}

// ServiceURL joins a base URL ending in "/" with an instance id.
func ServiceURL(base, instanceID string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + instanceID
}
