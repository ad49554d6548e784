// Package session holds the state of one interactive client: the chosen
// service, its catalog, the current selections and the download settings.
// Every transition either applies completely or leaves the previous state
// in place.
//
// A Session is not safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/executor"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/geo"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/ogc"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/selection"
	"github.com/eurodatacube/edc-qgis-plugin/internal/settings"
)

var (
	ErrMissingURL         = errors.New("please provide a valid URL")
	ErrInvalidDate        = errors.New("please insert a valid date in format YYYY-MM-DD")
	ErrDateOrder          = errors.New("start date must not be larger than end date")
	ErrNotNumeric         = errors.New("please input a numerical value")
	ErrMissingResolution  = errors.New("spatial resolution parameters are not set")
	ErrMissingCustomBBox  = errors.New("custom bounding box parameters are missing")
	ErrNoDestination      = errors.New("download canceled: no destination set")
	ErrFolderNotFound     = errors.New("folder does not exist")
	ErrNoCatalog          = errors.New("no capabilities loaded")
	ErrUnknownInstance    = errors.New("unknown instance")
	ErrUnknownCollection  = errors.New("unknown collection")
	ErrUnknownCRS         = errors.New("crs not offered by the service")
	ErrUnknownStyle       = errors.New("style not offered by the layer")
	ErrUnknownOption      = errors.New("value not offered by the collection")
	ErrInvalidChoice      = errors.New("value is not one of the offered choices")
	ErrCloudCoverOutRange = errors.New("max cloud coverage must be between 0 and 100")
)

// Calendar targets for PickDate.
const (
	Time0 = "time0"
	Time1 = "time1"
)

// CustomBBox holds the user-entered WGS84 limits as typed.
type CustomBBox struct {
	LatMin string
	LatMax string
	LngMin string
	LngMax string
}

func (c CustomBBox) complete() bool {
	return c.LatMin != "" && c.LatMax != "" && c.LngMin != "" && c.LngMax != ""
}

type Session struct {
	logger   *slog.Logger
	exec     executor.Interface
	store    settings.Persister
	defaults ogc.Defaults
	now      func() time.Time

	saved settings.Settings

	baseURL    string
	serviceURL string
	instances  []executor.Instance
	instance   string
	catalog    *ogc.Capabilities
	sel        selection.State

	crs      string
	priority string
	maxcc    int
	format   string
	resX     string
	resY     string

	time0 string
	time1 string
	exact bool

	customExtent   bool
	custom         CustomBBox
	downloadFolder string
}

// New restores persisted settings from store. No request is made until
// ChangeBaseURL or Restore is called.
func New(logger *slog.Logger, exec executor.Interface, store settings.Persister) (*Session, error) {
	saved, err := store.Load()
	if err != nil {
		return nil, err
	}
	d := ogc.DefaultParams()
	return &Session{
		logger:         logger,
		exec:           exec,
		store:          store,
		defaults:       d,
		now:            time.Now,
		saved:          saved,
		baseURL:        saved.ServiceURL,
		downloadFolder: saved.DownloadFolder,
		crs:            ogc.PopularWebMercator,
		priority:       ogc.Priorities[0].Value,
		maxcc:          100,
		format:         d.WCS.Get("format"),
		resX:           d.WCS.Get("resx"),
		resY:           d.WCS.Get("resy"),
	}, nil
}

// Restore loads instances and catalog of the persisted base URL.
func (s *Session) Restore(ctx context.Context) error {
	base := strings.TrimSpace(s.baseURL)
	if base == "" {
		return ErrMissingURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return s.load(ctx, base)
}

// ChangeBaseURL switches to a new service base URL. The URL is persisted
// only once its instances and default catalog have loaded.
func (s *Session) ChangeBaseURL(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrMissingURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	if raw == s.baseURL && s.catalog != nil {
		return nil
	}
	if err := s.load(ctx, raw); err != nil {
		s.logger.InfoContext(ctx, "base url kept", "base_url", s.baseURL, "rejected", raw, "err", err)
		return err
	}

	next := s.saved
	next.ServiceURL = raw
	if err := s.store.Save(next); err != nil {
		s.logger.WarnContext(ctx, "base url not persisted", "err", err)
		return nil
	}
	s.saved = next
	return nil
}

func (s *Session) load(ctx context.Context, base string) error {
	instances, err := s.exec.FetchInstances(ctx, base)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return fmt.Errorf("%w: empty instance list", ErrUnknownInstance)
	}
	inst := instances[0]
	svc := ogc.ServiceURL(base, inst.ID)
	cat, err := s.exec.FetchCapabilities(ctx, svc, "wms")
	if err != nil {
		return err
	}
	s.baseURL = base
	s.instances = instances
	s.applyCatalog(inst.Name, svc, cat)
	s.logger.InfoContext(ctx, "new url and layers set", "service_url", svc, "collections", len(cat.Collections))
	return nil
}

func (s *Session) applyCatalog(instance, serviceURL string, cat *ogc.Capabilities) {
	s.instance = instance
	s.serviceURL = serviceURL
	s.catalog = cat
	s.sel = selection.State{Mode: selection.LayerMode{}}
	if len(cat.Collections) > 0 {
		first := cat.Collections[0]
		s.sel = selection.Reset(first.Name, first.ID)
		s.selectFirstStyle()
	}
	if cat.CRSIndex(s.crs) < 0 && len(cat.CRSList) > 0 {
		s.crs = cat.CRSList[0].ID
	}
}

// ChangeInstance switches to another instance of the current base URL.
func (s *Session) ChangeInstance(ctx context.Context, name string) error {
	if s.baseURL == "" {
		return ErrMissingURL
	}
	idx := slices.IndexFunc(s.instances, func(i executor.Instance) bool { return i.Name == name })
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownInstance, name)
	}
	svc := ogc.ServiceURL(s.baseURL, s.instances[idx].ID)
	cat, err := s.exec.FetchCapabilities(ctx, svc, "wms")
	if err != nil {
		return err
	}
	s.applyCatalog(name, svc, cat)
	s.logger.InfoContext(ctx, "instance changed", "instance", name, "service_url", svc)
	return nil
}

func (s *Session) BaseURL() string                { return s.baseURL }
func (s *Session) ServiceURL() string             { return s.serviceURL }
func (s *Session) Instances() []executor.Instance { return s.instances }
func (s *Session) Instance() string               { return s.instance }
func (s *Session) Catalog() *ogc.Capabilities     { return s.catalog }
func (s *Session) Selection() selection.State     { return s.sel }
func (s *Session) CRS() string                    { return s.crs }
func (s *Session) DownloadFolder() string         { return s.downloadFolder }
func (s *Session) ExactDate() bool                { return s.exact }
func (s *Session) CustomExtent() bool             { return s.customExtent }
func (s *Session) Custom() CustomBBox             { return s.custom }

// Dates returns the start and end dates as set.
func (s *Session) Dates() (string, string) { return s.time0, s.time1 }

// Resolution returns resx and resy as set, without unit.
func (s *Session) Resolution() (string, string) { return s.resX, s.resY }

func (s *Session) layers() []ogc.Layer {
	if s.catalog == nil {
		return nil
	}
	return s.catalog.LayersOf(s.sel.Collection)
}

// SelectCollection starts a fresh layer-mode selection on a collection.
func (s *Session) SelectCollection(name string) error {
	if s.catalog == nil {
		return ErrNoCatalog
	}
	c, ok := s.catalog.Collection(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	s.sel = selection.Reset(c.Name, c.ID)
	s.selectFirstStyle()
	return nil
}

// SelectLayer picks a layer of the active collection; its first style
// becomes the selected style.
func (s *Session) SelectLayer(i int) error {
	if s.catalog == nil {
		return ErrNoCatalog
	}
	if i >= len(s.layers()) {
		return fmt.Errorf("select layer: index %d out of range", i)
	}
	next, err := s.sel.SelectLayer(i)
	if err != nil {
		return err
	}
	s.sel = next
	s.selectFirstStyle()
	return nil
}

func (s *Session) selectFirstStyle() {
	m, ok := s.sel.Mode.(selection.LayerMode)
	if !ok {
		return
	}
	layers := s.layers()
	if m.Index >= len(layers) || len(layers[m.Index].Styles) == 0 {
		return
	}
	if next, err := s.sel.SelectStyle(layers[m.Index].Styles[0]); err == nil {
		s.sel = next
	}
}

func (s *Session) SelectStyle(style string) error {
	m, ok := s.sel.Mode.(selection.LayerMode)
	if ok {
		layers := s.layers()
		if m.Index >= len(layers) || !slices.Contains(layers[m.Index].Styles, style) {
			return fmt.Errorf("%w: %q", ErrUnknownStyle, style)
		}
	}
	next, err := s.sel.SelectStyle(style)
	if err != nil {
		return err
	}
	s.sel = next
	return nil
}

// SelectCRS picks a CRS offered by the loaded catalog.
func (s *Session) SelectCRS(id string) error {
	if s.catalog == nil {
		return ErrNoCatalog
	}
	if s.catalog.CRSIndex(id) < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownCRS, id)
	}
	s.crs = id
	return nil
}

func (s *Session) UseLayers() {
	s.sel = s.sel.UseLayers()
	s.selectFirstStyle()
}

func (s *Session) UseDimensions() error {
	if s.catalog == nil {
		return ErrNoCatalog
	}
	s.sel = s.sel.UseDimensions(s.catalog.DimensionsOf(s.sel.Collection))
	return nil
}

func (s *Session) UseWavelengths() error {
	if s.catalog == nil {
		return ErrNoCatalog
	}
	s.sel = s.sel.UseWavelengths(s.catalog.WavelengthsOf(s.sel.Collection))
	return nil
}

func (s *Session) SetBand(slot int, band string) error {
	if s.catalog == nil {
		return ErrNoCatalog
	}
	if !slices.Contains(s.catalog.DimensionsOf(s.sel.Collection), band) {
		return fmt.Errorf("%w: band %q", ErrUnknownOption, band)
	}
	next, err := s.sel.SetBand(slot, band)
	if err != nil {
		return err
	}
	s.sel = next
	return nil
}

func (s *Session) SetWavelength(slot int, wavelength string) error {
	if s.catalog == nil {
		return ErrNoCatalog
	}
	if !slices.Contains(s.catalog.WavelengthsOf(s.sel.Collection), wavelength) {
		return fmt.Errorf("%w: wavelength %q", ErrUnknownOption, wavelength)
	}
	next, err := s.sel.SetWavelength(slot, wavelength)
	if err != nil {
		return err
	}
	s.sel = next
	return nil
}

// SetDates replaces both dates. Blank means open.
func (s *Session) SetDates(time0, time1 string) error {
	t0, ok0 := ogc.ParseDate(time0)
	t1, ok1 := ogc.ParseDate(time1)
	if !ok0 || !ok1 {
		return ErrInvalidDate
	}
	if t0 != "" && t1 != "" && t0 > t1 && !s.exact {
		return ErrDateOrder
	}
	s.time0, s.time1 = t0, t1
	return nil
}

// SetExactDate toggles single-day mode. Leaving it drops an end date that
// now precedes the start date.
func (s *Session) SetExactDate(on bool) {
	s.exact = on
	if !on && s.time0 != "" && s.time1 != "" && s.time0 > s.time1 {
		s.time1 = ""
	}
}

// PickDate sets the active calendar date (Time0 or Time1) unless it would
// invert the range.
func (s *Session) PickDate(active, date string) error {
	d, ok := ogc.ParseDate(date)
	if !ok || d == "" {
		return ErrInvalidDate
	}
	switch active {
	case Time0:
		if s.exact || s.time1 == "" || d <= s.time1 {
			s.time0 = d
			return nil
		}
	case Time1:
		if s.time0 == "" || s.time0 <= d {
			s.time1 = d
			return nil
		}
	default:
		return fmt.Errorf("pick date: unknown target %q", active)
	}
	return ErrDateOrder
}

// ShowMonth sets the date range to a whole calendar month.
func (s *Session) ShowMonth(year int, month time.Month) {
	parts := strings.Split(ogc.MonthInterval(year, month), "/")
	s.time0, s.time1 = parts[0], parts[1]
}

func (s *Session) SetPriority(p string) error {
	if !ogc.ValidChoice(ogc.Priorities, p) {
		return fmt.Errorf("%w: priority %q", ErrInvalidChoice, p)
	}
	s.priority = p
	return nil
}

func (s *Session) SetMaxCC(v int) error {
	if v < 0 || v > 100 {
		return ErrCloudCoverOutRange
	}
	s.maxcc = v
	return nil
}

// SetFormat picks the download image format by mime value.
func (s *Session) SetFormat(f string) error {
	if !ogc.ValidChoice(ogc.ImageFormats, f) {
		return fmt.Errorf("%w: format %q", ErrInvalidChoice, f)
	}
	s.format = f
	return nil
}

// numeric reports whether every value is blank or a float.
func numeric(values ...string) bool {
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
	}
	return true
}

// SetResolution sets resx/resy in metres. Blank clears a value.
func (s *Session) SetResolution(resX, resY string) error {
	resX, resY = strings.TrimSpace(resX), strings.TrimSpace(resY)
	if !numeric(resX, resY) {
		return ErrNotNumeric
	}
	s.resX, s.resY = resX, resY
	return nil
}

func (s *Session) SetCustomBBox(c CustomBBox) error {
	c = CustomBBox{
		LatMin: strings.TrimSpace(c.LatMin),
		LatMax: strings.TrimSpace(c.LatMax),
		LngMin: strings.TrimSpace(c.LngMin),
		LngMax: strings.TrimSpace(c.LngMax),
	}
	if !numeric(c.LatMin, c.LatMax, c.LngMin, c.LngMax) {
		return ErrNotNumeric
	}
	s.custom = c
	return nil
}

// UseCustomExtent chooses between the custom bbox and the caller's window
// for downloads.
func (s *Session) UseCustomExtent(on bool) { s.customExtent = on }

// SetDownloadFolder accepts "" or an existing directory and persists it.
func (s *Session) SetDownloadFolder(dir string) error {
	if dir == s.downloadFolder {
		return nil
	}
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("%w: %s", ErrFolderNotFound, dir)
		}
	}
	next := s.saved
	next.DownloadFolder = dir
	if err := s.store.Save(next); err != nil {
		return err
	}
	s.saved = next
	s.downloadFolder = dir
	return nil
}

// Request assembles the request configuration from the current state.
func (s *Session) Request() ogc.Request {
	layers := s.layers()
	param := s.sel.LayersParam(layers)
	title := s.sel.Collection
	if m, ok := s.sel.Mode.(selection.LayerMode); ok && m.Index < len(layers) {
		title = layers[m.Index].Name
	}
	return ogc.Request{
		ServiceURL:     s.serviceURL,
		Title:          title,
		Layers:         param,
		Styles:         s.sel.Style(),
		CRS:            s.crs,
		Time:           ogc.TimeExpression(s.time0, s.time1, s.exact, s.now()),
		DimBands:       s.sel.DimBands(),
		DimWavelengths: s.sel.DimWavelengths(),
		Priority:       s.priority,
		MaxCC:          strconv.Itoa(s.maxcc),
		Format:         s.format,
		ResX:           s.resX,
		ResY:           s.resY,
		Coverage:       param,
	}
}

// LayerURI returns the data source string of a new map layer.
func (s *Session) LayerURI() (string, error) {
	if s.serviceURL == "" {
		return "", ErrMissingURL
	}
	return ogc.LayerURI(s.defaults, s.Request()), nil
}

// GetMapURL returns a plain GetMap URL for window, given in the session CRS.
func (s *Session) GetMapURL(window orb.Bound, width, height int) (string, error) {
	if s.serviceURL == "" {
		return "", ErrMissingURL
	}
	r := s.Request()
	r.BBox = geo.FormatBBox(window, s.crs)
	r.Width, r.Height = width, height
	return ogc.GetMapURL(s.defaults, r), nil
}

func (s *Session) LayerName() string {
	r := s.Request()
	return ogc.LayerName(s.sel.Collection, s.sel.Label(s.layers()),
		ogc.TimeName(r.Time, s.exact), r.Styles, r.CRS, r.Priority, r.MaxCC)
}

// coverageBBox returns the download bbox string and the CRS override: the
// custom WGS84 box when enabled, window in the session CRS otherwise.
func (s *Session) coverageBBox(window orb.Bound) (string, string, error) {
	if !s.customExtent {
		return geo.FormatBBox(window, s.crs), "", nil
	}
	if !s.custom.complete() {
		return "", "", ErrMissingCustomBBox
	}
	b, err := geo.CustomBBox(s.custom.LatMin, s.custom.LatMax, s.custom.LngMin, s.custom.LngMax)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrNotNumeric, err)
	}
	return geo.FormatBBox(b, ogc.WGS84), ogc.WGS84, nil
}

// CoverageURL returns the GetCoverage URL for window (session CRS) or the
// custom extent.
func (s *Session) CoverageURL(window orb.Bound) (string, error) {
	if s.serviceURL == "" {
		return "", ErrMissingURL
	}
	bbox, crs, err := s.coverageBBox(window)
	if err != nil {
		return "", err
	}
	r := s.Request()
	r.BBox = bbox
	return ogc.GetCoverageURL(s.defaults, r, crs), nil
}

// FeatureURL returns the GetFeature URL for window over the selected dates.
func (s *Session) FeatureURL(window orb.Bound) (string, error) {
	if s.serviceURL == "" {
		return "", ErrMissingURL
	}
	r := s.Request()
	return ogc.GetFeatureURL(s.defaults, r, geo.FormatBBox(window, s.crs), r.Time), nil
}

// Download fetches the coverage of window (or the custom extent) into the
// download folder and returns the written path.
func (s *Session) Download(ctx context.Context, window orb.Bound, progress executor.Progress) (string, error) {
	if s.serviceURL == "" {
		return "", ErrMissingURL
	}
	if s.resX == "" || s.resY == "" {
		return "", ErrMissingResolution
	}
	if s.customExtent && !s.custom.complete() {
		return "", ErrMissingCustomBBox
	}
	if s.downloadFolder == "" {
		return "", ErrNoDestination
	}

	bbox, crs, err := s.coverageBBox(window)
	if err != nil {
		return "", err
	}
	r := s.Request()
	r.BBox = bbox
	u := ogc.GetCoverageURL(s.defaults, r, crs)
	name := ogc.Filename(s.sel.Collection, r.Layers, r.MaxCC, r.Priority, bbox, r.Format)
	path := filepath.Join(s.downloadFolder, name)

	if _, err := s.exec.Download(ctx, u, path, progress); err != nil {
		s.logger.ErrorContext(ctx, "download failed", "url", u, "path", path, "err", err)
		return "", err
	}
	return path, nil
}

// Probe requests a built URL and returns the service's complaint about it,
// nil when the service accepts it.
func (s *Session) Probe(ctx context.Context, u string) error {
	if err := s.exec.Probe(ctx, u); err != nil {
		s.logger.WarnContext(ctx, "service rejected request", "url", u, "err", err)
		return err
	}
	return nil
}
