// Package server is the HTTP facade: it serves capabilities, instance
// lists and built request URLs to clients that cannot talk OGC directly.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/executor"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/geo"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/health"
	middleware "github.com/eurodatacube/edc-qgis-plugin/internal/core/middleware"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/ogc"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/router"
	"github.com/eurodatacube/edc-qgis-plugin/internal/events"
	mylog "github.com/eurodatacube/edc-qgis-plugin/internal/logger"
)

// Catalogs serves parsed capabilities, usually a *catalog.Cache.
type Catalogs interface {
	Get(ctx context.Context, serviceURL, service string) (*ogc.Capabilities, error)
	Invalidate(ctx context.Context, serviceURL, service string) error
}

// Instances lists the instances of a base URL, usually an *executor.Executor.
type Instances interface {
	FetchInstances(ctx context.Context, base string) ([]executor.Instance, error)
}

type Deps struct {
	Logger    *slog.Logger
	Catalogs  Catalogs
	Instances Instances
	Events    events.Sink
	H3Res     int
	Ready     map[string]health.Pinger
	Now       func() time.Time
}

type api struct {
	Deps
	defaults ogc.Defaults
}

// URLResponse is the body of /urls/{kind}.
type URLResponse struct {
	Kind      string `json:"kind"`
	URL       string `json:"url"`
	LayerName string `json:"layer_name"`
	Filename  string `json:"filename,omitempty"`
}

// NewHandler builds the facade router.
func NewHandler(d Deps) http.Handler {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	a := &api{Deps: d, defaults: ogc.DefaultParams()}

	r := chi.NewRouter()
	r.Use(middleware.Recover(d.Logger))
	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(time.Second, d.Ready))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/instances", a.instances)
	r.Get("/capabilities", a.capabilities)
	r.Get("/urls/{kind}", a.urls)
	return r
}

func (a *api) instances(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimSpace(r.URL.Query().Get("base"))
	if base == "" {
		http.Error(w, "missing required parameter: base", http.StatusBadRequest)
		return
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	list, err := a.Instances.FetchInstances(r.Context(), base)
	if err != nil {
		a.upstreamError(w, r, err)
		return
	}
	writeJSON(w, list)
}

func (a *api) capabilities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	svc := strings.TrimSpace(q.Get("url"))
	if svc == "" {
		http.Error(w, "missing required parameter: url", http.StatusBadRequest)
		return
	}
	service := strings.ToLower(strings.TrimSpace(q.Get("service")))
	switch service {
	case "":
		service = "wms"
	case "wms", "wcs", "wfs":
	default:
		http.Error(w, fmt.Sprintf("unsupported service %q", service), http.StatusBadRequest)
		return
	}
	ctx := mylog.WithServiceURL(r.Context(), svc)

	if q.Get("refresh") == "true" {
		if err := a.Catalogs.Invalidate(ctx, svc, service); err != nil {
			a.Logger.WarnContext(ctx, "catalog invalidate failed", "err", err)
		}
	}
	cat, err := a.Catalogs.Get(ctx, svc, service)
	if err != nil {
		a.upstreamError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, cat)
}

func (a *api) urls(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	switch kind {
	case "wms", "layer-uri", "wcs", "wfs":
	default:
		http.Error(w, fmt.Sprintf("unknown url kind %q", kind), http.StatusNotFound)
		return
	}

	p, warn, err := router.ParseRequest(r, a.Now())
	if warn != "" {
		a.Logger.WarnContext(r.Context(), warn)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if (kind == "wcs" || kind == "wfs") && !p.HasBBox {
		http.Error(w, "missing required parameter: bbox", http.StatusBadRequest)
		return
	}

	ctx := mylog.WithServiceURL(r.Context(), p.Request.ServiceURL)
	cat, err := a.Catalogs.Get(ctx, p.Request.ServiceURL, "wms")
	if err != nil {
		a.upstreamError(w, r.WithContext(ctx), err)
		return
	}
	collection, label, err := resolve(cat, &p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx = mylog.WithCollection(ctx, collection)

	req := p.Request
	out := URLResponse{
		Kind: kind,
		LayerName: ogc.LayerName(collection, label, ogc.TimeName(req.Time, p.Exact),
			req.Styles, req.CRS, req.Priority, req.MaxCC),
	}
	switch kind {
	case "wms":
		out.URL = ogc.GetMapURL(a.defaults, req)
	case "layer-uri":
		out.URL = ogc.LayerURI(a.defaults, req)
	case "wcs":
		out.URL = ogc.GetCoverageURL(a.defaults, req, "")
		out.Filename = ogc.Filename(collection, req.Layers, req.MaxCC, req.Priority, req.BBox, req.Format)
	case "wfs":
		out.URL = ogc.GetFeatureURL(a.defaults, req, req.BBox, req.Time)
	}

	a.publish(ctx, kind, collection, p)
	writeJSON(w, out)
}

// resolve checks the parsed selection against the catalog, fills the
// default layer and title, and returns the collection display name and the
// selection label.
func resolve(cat *ogc.Capabilities, p *router.Parsed) (string, string, error) {
	collection := ""
	if p.Collection != "" {
		for _, c := range cat.Collections {
			if c.Name == p.Collection || c.ID == p.Collection {
				collection = c.Name
				break
			}
		}
		if collection == "" {
			return "", "", fmt.Errorf("unknown collection %q", p.Collection)
		}
	}

	if p.Selector() {
		p.Request.Layers = cat.CollectionID(collection)
		p.Request.Coverage = p.Request.Layers
		p.Request.Title = collection
		label := p.Request.DimBands
		options := cat.DimensionsOf(collection)
		if p.Request.DimWavelengths != "" {
			label = p.Request.DimWavelengths
			options = cat.WavelengthsOf(collection)
		}
		for _, v := range strings.Split(label, ",") {
			if !slices.Contains(options, v) {
				return "", "", fmt.Errorf("%q is not offered by %s", v, collection)
			}
		}
		return collection, label, nil
	}

	for _, c := range cat.Collections {
		name := c.Name
		if collection != "" && name != collection {
			continue
		}
		for i, l := range cat.LayersOf(name) {
			if (p.Layer == "" && i == 0) || l.ID == p.Layer {
				p.Request.Layers, p.Request.Coverage, p.Request.Title = l.ID, l.ID, l.Name
				if p.Request.Styles != "" && !slices.Contains(l.Styles, p.Request.Styles) {
					return "", "", fmt.Errorf("style %q is not offered by layer %s", p.Request.Styles, l.ID)
				}
				return name, l.Name, nil
			}
		}
	}
	return "", "", fmt.Errorf("unknown layer %q", p.Layer)
}

func (a *api) publish(ctx context.Context, kind, collection string, p router.Parsed) {
	ev := events.Event{
		Kind:       kind,
		Collection: collection,
		Layers:     p.Request.Layers,
		CRS:        p.Request.CRS,
		Time:       p.Request.Time,
		TS:         a.Now().UTC(),
	}
	if p.HasBBox {
		if c, ok := geo.ToWGS84Center(p.BBox, p.Request.CRS); ok {
			ev.Lon, ev.Lat = c.X(), c.Y()
			ev.Cell = events.CellFor(c.X(), c.Y(), a.H3Res)
		}
	}
	a.Events.Publish(ev)
	a.Logger.DebugContext(ctx, "request url built", "kind", kind, "cell", ev.Cell)
}

// upstreamError answers 404 for an unknown instance and 502 for every
// other upstream failure.
func (a *api) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	status := http.StatusBadGateway
	if errors.Is(err, executor.ErrInvalidInstance) {
		status = http.StatusNotFound
	}
	a.Logger.WarnContext(r.Context(), "upstream request failed", "status", status, "err", err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves h on addr until ctx is done.
func Run(ctx context.Context, addr string, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
