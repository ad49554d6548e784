// Package ogc models OGC service capabilities and builds WMS/WCS/WFS requests.
package ogc

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	PopularWebMercator = "EPSG:3857"
	WGS84              = "EPSG:4326"
)

var (
	ErrMalformedCapabilities = errors.New("malformed capabilities document")
	ErrNoJSONLayers          = errors.New("capabilities json has no layers")
)

// Layer is one selectable raster layer or sub-layer of a collection.
type Layer struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Info       string   `json:"info"`
	DataSource string   `json:"data_source,omitempty"`
	Styles     []string `json:"styles"`
}

type CRS struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Capabilities is the catalog of one service URL. It is never mutated
// after ParseXML/MergeJSON return; a new value replaces it wholesale.
type Capabilities struct {
	BaseURL        string              `json:"base_url"`
	Layers         map[string][]Layer  `json:"layers"`
	Collections    []Layer             `json:"collections"`
	CollectionList map[string]string   `json:"collection_list"`
	Dimensions     map[string][]string `json:"dimensions"`
	Wavelengths    map[string][]string `json:"wavelengths"`
	CRSList        []CRS               `json:"crs_list"`
}

// xml tags carry no namespace so encoding/xml matches on local names only
type xmlDocument struct {
	Capability struct {
		Layer struct {
			CRS    []string   `xml:"CRS"`
			Layers []xmlLayer `xml:"Layer"`
		} `xml:"Layer"`
	} `xml:"Capability"`
}

type xmlLayer struct {
	Name       string         `xml:"Name"`
	Title      string         `xml:"Title"`
	Abstract   *string        `xml:"Abstract"`
	Styles     []xmlStyle     `xml:"Style"`
	Dimensions []xmlDimension `xml:"Dimension"`
	Layers     []xmlLayer     `xml:"Layer"`
}

type xmlStyle struct {
	Name string `xml:"Name"`
}

type xmlDimension struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

func (l xmlLayer) dimension(name string) []string {
	for _, d := range l.Dimensions {
		if d.Name != name {
			continue
		}
		if strings.TrimSpace(d.Value) == "" {
			return []string{}
		}
		return strings.Split(d.Value, ",")
	}
	return []string{}
}

func (l xmlLayer) toLayer() Layer {
	styles := make([]string, 0, len(l.Styles))
	for _, s := range l.Styles {
		styles = append(styles, s.Name)
	}
	info := ""
	if l.Abstract != nil {
		info = *l.Abstract
	}
	return Layer{ID: l.Name, Name: l.Title, Info: info, Styles: styles}
}

// ParseXML builds a catalog from a GetCapabilities XML response.
func ParseXML(baseURL string, doc []byte) (*Capabilities, error) {
	var root xmlDocument
	if err := xml.NewDecoder(bytes.NewReader(doc)).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCapabilities, err)
	}

	c := &Capabilities{
		BaseURL:        baseURL,
		Layers:         map[string][]Layer{},
		Collections:    []Layer{},
		CollectionList: map[string]string{},
		Dimensions:     map[string][]string{},
		Wavelengths:    map[string][]string{},
		CRSList:        []CRS{},
	}

	for _, node := range root.Capability.Layer.Layers {
		name := node.Title
		c.Wavelengths[name] = node.dimension("dim_wavelengths")
		c.Dimensions[name] = node.dimension("dim_bands")
		c.CollectionList[name] = node.Name
		c.Collections = append(c.Collections, node.toLayer())

		var sub []Layer
		if len(node.Layers) == 0 {
			sub = []Layer{node.toLayer()}
		} else {
			sub = make([]Layer, 0, len(node.Layers))
			for _, child := range node.Layers {
				sub = append(sub, child.toLayer())
			}
		}
		sortByName(sub)
		c.Layers[name] = sub
	}
	sortByName(c.Collections)

	for _, code := range root.Capability.Layer.CRS {
		code = strings.TrimSpace(code)
		c.CRSList = append(c.CRSList, CRS{ID: code, Name: strings.Replace(code, ":", ": ", 1)})
	}
	c.CRSList = sortCRS(c.CRSList)
	return c, nil
}

func sortByName(layers []Layer) {
	sort.SliceStable(layers, func(i, j int) bool { return layers[i].Name < layers[j].Name })
}

// sortCRS moves EPSG:3857 then EPSG:4326 to the front, keeping document order otherwise.
func sortCRS(list []CRS) []CRS {
	out := make([]CRS, 0, len(list))
	taken := make([]bool, len(list))
	for _, main := range []string{PopularWebMercator, WGS84} {
		for i, crs := range list {
			if !taken[i] && crs.ID == main {
				out = append(out, crs)
				taken[i] = true
			}
		}
	}
	for i, crs := range list {
		if !taken[i] {
			out = append(out, crs)
		}
	}
	return out
}

// MergeJSON fills Layer.DataSource from the JSON capabilities response.
// On any problem the input catalog is returned unchanged along with the
// reason; callers treat the error as informational.
func MergeJSON(c *Capabilities, doc []byte) (*Capabilities, error) {
	if c == nil {
		return nil, errors.New("merge json: nil capabilities")
	}
	if len(bytes.TrimSpace(doc)) == 0 {
		return c, fmt.Errorf("merge json: %w", ErrNoJSONLayers)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(doc, &root); err != nil {
		return c, fmt.Errorf("merge json: %w", err)
	}
	raw, ok := root["layers"]
	if !ok {
		return c, fmt.Errorf("merge json: %w", ErrNoJSONLayers)
	}
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return c, fmt.Errorf("merge json layers: %w", err)
	}

	byID := make(map[string]map[string]json.RawMessage, len(records))
	for i, rec := range records {
		var id string
		if err := decodeField(rec, "id", &id); err != nil {
			return c, fmt.Errorf("merge json layer %d: %w", i, err)
		}
		byID[id] = rec
	}

	datasets := map[string]string{}
	resolve := func(id string) (string, bool, error) {
		if ds, ok := datasets[id]; ok {
			return ds, true, nil
		}
		rec, ok := byID[id]
		if !ok {
			return "", false, nil
		}
		var ds string
		if err := decodeField(rec, "dataset", &ds); err != nil {
			return "", false, fmt.Errorf("merge json layer %q: %w", id, err)
		}
		datasets[id] = ds
		return ds, true, nil
	}

	out := c.clone()
	apply := func(layers []Layer) error {
		for i := range layers {
			ds, ok, err := resolve(layers[i].ID)
			if err != nil {
				return err
			}
			if ok {
				layers[i].DataSource = ds
			}
		}
		return nil
	}
	for _, layers := range out.Layers {
		if err := apply(layers); err != nil {
			return c, err
		}
	}
	if err := apply(out.Collections); err != nil {
		return c, err
	}
	return out, nil
}

func decodeField(rec map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := rec[key]
	if !ok {
		return fmt.Errorf("missing %q", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return nil
}

func (c *Capabilities) clone() *Capabilities {
	out := &Capabilities{
		BaseURL:        c.BaseURL,
		Layers:         make(map[string][]Layer, len(c.Layers)),
		Collections:    cloneLayers(c.Collections),
		CollectionList: make(map[string]string, len(c.CollectionList)),
		Dimensions:     make(map[string][]string, len(c.Dimensions)),
		Wavelengths:    make(map[string][]string, len(c.Wavelengths)),
		CRSList:        append([]CRS(nil), c.CRSList...),
	}
	for k, v := range c.Layers {
		out.Layers[k] = cloneLayers(v)
	}
	for k, v := range c.CollectionList {
		out.CollectionList[k] = v
	}
	for k, v := range c.Dimensions {
		out.Dimensions[k] = append([]string(nil), v...)
	}
	for k, v := range c.Wavelengths {
		out.Wavelengths[k] = append([]string(nil), v...)
	}
	return out
}

func cloneLayers(in []Layer) []Layer {
	out := make([]Layer, len(in))
	for i, l := range in {
		l.Styles = append([]string(nil), l.Styles...)
		out[i] = l
	}
	return out
}

// LayersOf returns the layers of a collection by display name.
func (c *Capabilities) LayersOf(collection string) []Layer {
	return c.Layers[collection]
}

func (c *Capabilities) CollectionID(collection string) string {
	return c.CollectionList[collection]
}

func (c *Capabilities) DimensionsOf(collection string) []string {
	return c.Dimensions[collection]
}

func (c *Capabilities) WavelengthsOf(collection string) []string {
	return c.Wavelengths[collection]
}

// Collection looks up a top-level collection by display name.
func (c *Capabilities) Collection(name string) (Layer, bool) {
	for _, l := range c.Collections {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

// CRSIndex returns the position of a CRS id in CRSList, or -1.
func (c *Capabilities) CRSIndex(id string) int {
	for i, crs := range c.CRSList {
		if crs.ID == id {
			return i
		}
	}
	return -1
}
