package ogc

import "strings"

// Param is one key=value query term.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered set of query terms. Methods never modify the receiver.
type Params []Param

// With returns a copy where key is set to value. An existing key keeps its
// position, a new key is appended.
func (p Params) With(key, value string) Params {
	out := make(Params, len(p), len(p)+1)
	copy(out, p)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Param{Key: key, Value: value})
}

// Without returns a copy with the given keys removed.
func (p Params) Without(keys ...string) Params {
	out := make(Params, 0, len(p))
	for _, kv := range p {
		drop := false
		for _, k := range keys {
			if kv.Key == k {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, kv)
		}
	}
	return out
}

func (p Params) Get(key string) string {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// Concat appends other after p.
func (p Params) Concat(other Params) Params {
	out := make(Params, 0, len(p)+len(other))
	out = append(out, p...)
	return append(out, other...)
}

// Encode joins the terms as k=v&k=v for an HTTP query string.
func (p Params) Encode() string {
	return p.join(escapeValue)
}

// Join joins the terms as k=v&k=v with values verbatim.
func (p Params) Join() string {
	return p.join(func(v string) string { return v })
}

func (p Params) join(value func(string) string) string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(value(kv.Value))
	}
	return b.String()
}

// only characters that would break the query structure are escaped so that
// CRS codes, mime types and ISO periods stay readable
var valueEscaper = strings.NewReplacer(
	"%", "%25",
	"&", "%26",
	"#", "%23",
	"+", "%2B",
	" ", "%20",
)

func escapeValue(v string) string {
	return valueEscaper.Replace(v)
}

// Defaults holds the static per-service parameter groups.
type Defaults struct {
	WMS  Params
	WCS  Params
	WFS  Params
	WMTS Params
}

// keys only a desktop raster-layer host understands
var hostOnlyKeys = []string{"IgnoreGetFeatureInfoUrl", "IgnoreGetMapUrl", "contextualWMSLegend"}

func DefaultParams() Defaults {
	return Defaults{
		WMS: Params{
			{"IgnoreGetFeatureInfoUrl", "1"},
			{"IgnoreGetMapUrl", "1"},
			{"contextualWMSLegend", "0"},
			{"service", "WMS"},
			{"styles", ""},
			{"request", "GetMap"},
			{"format", "image/png"},
			{"transparent", "true"},
			{"version", "1.3.0"},
		},
		WCS: Params{
			{"service", "wcs"},
			{"request", "GetCoverage"},
			{"format", "image/png"},
			{"showLogo", "false"},
			{"transparent", "false"},
			{"version", "1.1.1"},
			{"resx", "10"},
			{"resy", "10"},
		},
		WFS: Params{
			{"service", "WFS"},
			{"version", "2.0.0"},
			{"request", "GetFeature"},
			{"typenames", "S2.TILE"},
			{"maxfeatures", "100"},
			{"outputformat", "application/json"},
		},
		WMTS: Params{
			{"IgnoreGetFeatureInfoUrl", "1"},
			{"IgnoreGetMapUrl", "1"},
			{"contextualWMSLegend", "0"},
			{"service", "WMTS"},
			{"styles", ""},
			{"request", "GetTile"},
			{"format", "image/png"},
			{"transparent", "true"},
			{"tileMatrixSet", "PopularWebMercator512"},
		},
	}
}

// Choice is a value offered to the user with its label.
type Choice struct {
	Value string
	Label string
}

var Priorities = []Choice{
	{"mostRecent", "Most recent"},
	{"leastRecent", "Least recent"},
	{"leastCC", "Least cloud coverage"},
}

var ImageFormats = []Choice{
	{"image/png", "PNG"},
	{"image/jpeg", "JPEG"},
	{"image/tiff;depth=8", "8-bit TIFF"},
	{"image/tiff;depth=16", "16-bit TIFF"},
	{"image/tiff;depth=32f", "32-bit float TIFF"},
}

// ValidChoice reports whether v is one of the choice values.
func ValidChoice(choices []Choice, v string) bool {
	for _, c := range choices {
		if c.Value == v {
			return true
		}
	}
	return false
}
