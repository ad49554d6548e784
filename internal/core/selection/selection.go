// Package selection tracks how layers of the active collection are
// requested: by named layer, by three dimension bands, or by three
// wavelengths. Exactly one mode is active at a time.
package selection

import (
	"fmt"
	"strings"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/ogc"
)

// Slots is the number of band/wavelength selectors (one per RGB channel).
const Slots = 3

// Mode is one of LayerMode, DimensionMode or WavelengthMode.
type Mode interface {
	isMode()
	Name() string
}

type LayerMode struct {
	Index int
	Style string
}

type DimensionMode struct {
	Bands [Slots]string
}

type WavelengthMode struct {
	Wavelengths [Slots]string
}

func (LayerMode) isMode()      {}
func (DimensionMode) isMode()  {}
func (WavelengthMode) isMode() {}

func (LayerMode) Name() string      { return "layers" }
func (DimensionMode) Name() string  { return "dimensions" }
func (WavelengthMode) Name() string { return "wavelengths" }

// State is the selection for one collection. Transitions return a new value.
type State struct {
	Collection   string
	CollectionID string
	Mode         Mode
}

// Reset starts a fresh selection on a collection in layer mode.
func Reset(collection, id string) State {
	return State{Collection: collection, CollectionID: id, Mode: LayerMode{}}
}

func (s State) UseLayers() State {
	s.Mode = LayerMode{}
	return s
}

// UseDimensions switches to band selection with every slot preset to the
// first option.
func (s State) UseDimensions(options []string) State {
	s.Mode = DimensionMode{Bands: fill(options)}
	return s
}

func (s State) UseWavelengths(options []string) State {
	s.Mode = WavelengthMode{Wavelengths: fill(options)}
	return s
}

func fill(options []string) [Slots]string {
	var out [Slots]string
	if len(options) == 0 {
		return out
	}
	for i := range out {
		out[i] = options[0]
	}
	return out
}

// SelectLayer picks a layer by index and clears the style.
func (s State) SelectLayer(i int) (State, error) {
	if _, ok := s.Mode.(LayerMode); !ok {
		return s, fmt.Errorf("select layer: %s mode is active", s.modeName())
	}
	if i < 0 {
		return s, fmt.Errorf("select layer: negative index %d", i)
	}
	s.Mode = LayerMode{Index: i}
	return s, nil
}

func (s State) SelectStyle(style string) (State, error) {
	m, ok := s.Mode.(LayerMode)
	if !ok {
		return s, fmt.Errorf("select style: %s mode is active", s.modeName())
	}
	m.Style = style
	s.Mode = m
	return s, nil
}

func (s State) SetBand(slot int, v string) (State, error) {
	m, ok := s.Mode.(DimensionMode)
	if !ok {
		return s, fmt.Errorf("set band: %s mode is active", s.modeName())
	}
	if slot < 0 || slot >= Slots {
		return s, fmt.Errorf("set band: slot %d out of range", slot)
	}
	m.Bands[slot] = v
	s.Mode = m
	return s, nil
}

func (s State) SetWavelength(slot int, v string) (State, error) {
	m, ok := s.Mode.(WavelengthMode)
	if !ok {
		return s, fmt.Errorf("set wavelength: %s mode is active", s.modeName())
	}
	if slot < 0 || slot >= Slots {
		return s, fmt.Errorf("set wavelength: slot %d out of range", slot)
	}
	m.Wavelengths[slot] = v
	s.Mode = m
	return s, nil
}

func (s State) modeName() string {
	if s.Mode == nil {
		return LayerMode{}.Name()
	}
	return s.Mode.Name()
}

// LayersParam is the value of the "layers" request parameter: the selected
// layer id in layer mode, the collection id otherwise.
func (s State) LayersParam(layers []ogc.Layer) string {
	m, ok := s.Mode.(LayerMode)
	if !ok {
		return s.CollectionID
	}
	if m.Index < len(layers) {
		return layers[m.Index].ID
	}
	return s.CollectionID
}

// Style returns the style of the selected layer, "" outside layer mode.
func (s State) Style() string {
	if m, ok := s.Mode.(LayerMode); ok {
		return m.Style
	}
	return ""
}

// DimBands is the comma list of selected bands, "" unless bands are active.
func (s State) DimBands() string {
	if m, ok := s.Mode.(DimensionMode); ok {
		return strings.Join(m.Bands[:], ",")
	}
	return ""
}

func (s State) DimWavelengths() string {
	if m, ok := s.Mode.(WavelengthMode); ok {
		return strings.Join(m.Wavelengths[:], ",")
	}
	return ""
}

// Label names the selection for display: the layer title in layer mode,
// the selector list otherwise.
func (s State) Label(layers []ogc.Layer) string {
	switch m := s.Mode.(type) {
	case DimensionMode:
		return s.DimBands()
	case WavelengthMode:
		return s.DimWavelengths()
	case LayerMode:
		if m.Index < len(layers) {
			return layers[m.Index].Name
		}
	}
	return ""
}
