package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eurodatacube/edc-qgis-plugin/internal/cache/catalog"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/executor"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/httpclient"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/ogc"
	"github.com/eurodatacube/edc-qgis-plugin/internal/events"
)

const capsXML = `<WMS_Capabilities><Capability><Layer>
<CRS>EPSG:4326</CRS><CRS>EPSG:3857</CRS>
<Layer><Name>S2L2A</Name><Title>Sentinel-2 L2A</Title>
  <Dimension name="dim_bands">B02,B03,B04</Dimension>
  <Layer><Name>TRUE_COLOR</Name><Title>True color</Title><Style><Name>default</Name></Style></Layer>
  <Layer><Name>NDVI</Name><Title>NDVI</Title></Layer>
</Layer>
<Layer><Name>DEM</Name><Title>Copernicus DEM</Title></Layer>
</Layer></Capability></WMS_Capabilities>`

type recordingSink struct {
	mu  sync.Mutex
	evs []events.Event
}

func (s *recordingSink) Publish(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = append(s.evs, ev)
}

type fixture struct {
	api      *httptest.Server
	upstream *httptest.Server
	capsHits atomic.Int32
	sink     *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{sink: &recordingSink{}}
	f.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ogc/instances.json":
			_, _ = w.Write([]byte(`[{"name":"Mine","id":"abc"}]`))
		case r.URL.Path == "/ogc/bad":
			w.WriteHeader(http.StatusBadRequest)
		case r.URL.Query().Get("format") == "application/json":
			w.WriteHeader(http.StatusNotFound)
		default:
			f.capsHits.Add(1)
			_, _ = w.Write([]byte(capsXML))
		}
	}))
	t.Cleanup(f.upstream.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := executor.New(logger, httpclient.NewOutbound(5*time.Second, httpclient.ProxyConfig{}), "edc-ogc/test", "")
	h := NewHandler(Deps{
		Logger:    logger,
		Catalogs:  catalog.New(logger, exec, nil, catalog.Config{}),
		Instances: exec,
		Events:    f.sink,
		H3Res:     6,
		Now:       func() time.Time { return time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	f.api = httptest.NewServer(h)
	t.Cleanup(f.api.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string, q url.Values) (*http.Response, []byte) {
	t.Helper()
	u := f.api.URL + path
	if q != nil {
		u += "?" + q.Encode()
	}
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.get(t, "/healthz", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	resp, _ = f.get(t, "/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status=%d", resp.StatusCode)
	}
}

func TestInstances(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/instances", url.Values{"base": {f.upstream.URL + "/ogc"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var list []executor.Instance
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[0].Name != executor.PreconfiguredLayers || list[1].ID != "abc" {
		t.Fatalf("instances=%+v", list)
	}

	resp, _ = f.get(t, "/instances", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing base status=%d", resp.StatusCode)
	}
}

func TestCapabilities_CachedAndRefreshed(t *testing.T) {
	f := newFixture(t)
	q := url.Values{"url": {f.upstream.URL + "/ogc/abc"}}

	for range 2 {
		resp, body := f.get(t, "/capabilities", q)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d body=%s", resp.StatusCode, body)
		}
		var cat ogc.Capabilities
		if err := json.Unmarshal(body, &cat); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(cat.Collections) != 2 || cat.CRSList[0].ID != "EPSG:3857" {
			t.Fatalf("catalog=%+v", cat)
		}
	}
	if f.capsHits.Load() != 1 {
		t.Fatalf("capabilities fetched %d times, want 1", f.capsHits.Load())
	}

	q.Set("refresh", "true")
	f.get(t, "/capabilities", q)
	if f.capsHits.Load() != 2 {
		t.Fatalf("refresh did not refetch")
	}

	resp, _ := f.get(t, "/capabilities", url.Values{"url": {f.upstream.URL + "/ogc/bad"}})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("invalid instance status=%d", resp.StatusCode)
	}
	resp, _ = f.get(t, "/capabilities", url.Values{"url": {"x"}, "service": {"wmts"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("service status=%d", resp.StatusCode)
	}
}

func decodeURL(t *testing.T, body []byte) URLResponse {
	t.Helper()
	var out URLResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return out
}

func TestURLs_WMSDefaultsToFirstLayer(t *testing.T) {
	f := newFixture(t)
	svc := f.upstream.URL + "/ogc/abc"
	resp, body := f.get(t, "/urls/wms", url.Values{
		"url":        {svc},
		"collection": {"Sentinel-2 L2A"},
		"bbox":       {"1000,2000,3000,4000"},
		"width":      {"256"},
		"height":     {"256"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	out := decodeURL(t, body)
	if !strings.HasPrefix(out.URL, svc+"?service=WMS&styles=&request=GetMap") {
		t.Fatalf("url=%s", out.URL)
	}
	for _, want := range []string{"title=NDVI", "layers=NDVI", "bbox=1000.0,2000.0,3000.0,4000.0", "width=256"} {
		if !strings.Contains(out.URL, want) {
			t.Fatalf("url %s missing %s", out.URL, want)
		}
	}
	if out.LayerName != "Sentinel-2 L2A_[NDVI] (-/-, , EPSG:3857, mostRecent, 100%)" {
		t.Fatalf("layer name=%q", out.LayerName)
	}

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	if len(f.sink.evs) != 1 {
		t.Fatalf("events=%d", len(f.sink.evs))
	}
	ev := f.sink.evs[0]
	if ev.Kind != "wms" || ev.Collection != "Sentinel-2 L2A" || ev.Cell == "" {
		t.Fatalf("event=%+v", ev)
	}
}

func TestURLs_WCSWithBands(t *testing.T) {
	f := newFixture(t)
	resp, body := f.get(t, "/urls/wcs", url.Values{
		"url":        {f.upstream.URL + "/ogc/abc"},
		"collection": {"S2L2A"},
		"bands":      {"B04,B03,B02"},
		"crs":        {"EPSG:4326"},
		"bbox":       {"14.5,46.0,14.6,46.1"},
		"resx":       {"20"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	out := decodeURL(t, body)
	for _, want := range []string{"layers=S2L2A", "coverage=S2L2A", "resx=20m", "dim_bands=B04,B03,B02", "crs=EPSG:4326"} {
		if !strings.Contains(out.URL, want) {
			t.Fatalf("url %s missing %s", out.URL, want)
		}
	}
	if !strings.HasSuffix(out.URL, "&bbox=46.0,14.5,46.1,14.6") {
		t.Fatalf("url=%s", out.URL)
	}
	if out.Filename != "Sentinel-2L2A_S2L2A_100_mostRecent_46.0_14.5_46.1_14.6.png" {
		t.Fatalf("filename=%q", out.Filename)
	}
}

func TestURLs_Rejects(t *testing.T) {
	f := newFixture(t)
	svc := f.upstream.URL + "/ogc/abc"
	cases := map[string]struct {
		path   string
		q      url.Values
		status int
	}{
		"kind":        {"/urls/wmts", url.Values{"url": {svc}, "layer": {"DEM"}}, http.StatusNotFound},
		"wcs no bbox": {"/urls/wcs", url.Values{"url": {svc}, "layer": {"DEM"}}, http.StatusBadRequest},
		"layer":       {"/urls/wms", url.Values{"url": {svc}, "layer": {"NOPE"}}, http.StatusBadRequest},
		"collection":  {"/urls/wms", url.Values{"url": {svc}, "collection": {"Landsat"}}, http.StatusBadRequest},
		"band":        {"/urls/wms", url.Values{"url": {svc}, "collection": {"S2L2A"}, "bands": {"B01,B02,B03"}}, http.StatusBadRequest},
		"style":       {"/urls/wms", url.Values{"url": {svc}, "layer": {"TRUE_COLOR"}, "style": {"sepia"}}, http.StatusBadRequest},
		"upstream":    {"/urls/wms", url.Values{"url": {f.upstream.URL + "/ogc/bad"}, "layer": {"DEM"}}, http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := f.get(t, tc.path, tc.q)
			if resp.StatusCode != tc.status {
				t.Fatalf("status=%d want %d body=%s", resp.StatusCode, tc.status, body)
			}
		})
	}
}

func TestURLs_LayerURIAndWFS(t *testing.T) {
	f := newFixture(t)
	svc := f.upstream.URL + "/ogc/abc"

	_, body := f.get(t, "/urls/layer-uri", url.Values{"url": {svc}, "layer": {"TRUE_COLOR"}, "style": {"default"}})
	out := decodeURL(t, body)
	if !strings.HasPrefix(out.URL, "IgnoreGetFeatureInfoUrl=1&IgnoreGetMapUrl=1&contextualWMSLegend=0&") ||
		!strings.Contains(out.URL, "&url="+url.QueryEscape(svc+"?Time=")) {
		t.Fatalf("layer uri=%s", out.URL)
	}

	_, body = f.get(t, "/urls/wfs", url.Values{"url": {svc}, "layer": {"DEM"}, "bbox": {"1,2,3,4"}, "time0": {"2020-01-01"}, "time1": {"2020-01-31"}})
	out = decodeURL(t, body)
	if !strings.HasSuffix(out.URL, "&bbox=1.0,2.0,3.0,4.0&time=2020-01-01/2020-01-31/P1D&srsname=EPSG:3857") {
		t.Fatalf("wfs=%s", out.URL)
	}
}
