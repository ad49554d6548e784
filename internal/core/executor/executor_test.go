package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/httpclient"
)

const capsXML = `<WMS_Capabilities xmlns="http://www.opengis.net/wms"><Capability><Layer>
<CRS>EPSG:4326</CRS><CRS>EPSG:3857</CRS>
<Layer><Name>DEM</Name><Title>Copernicus DEM</Title></Layer>
</Layer></Capability></WMS_Capabilities>`

type upstreamRecorder struct {
	mu        sync.Mutex
	userAgent string
	queries   []string
}

func (u *upstreamRecorder) record(r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.userAgent = r.Header.Get("User-Agent")
	u.queries = append(u.queries, r.URL.RawQuery)
}

func newExec(t *testing.T, h http.Handler) (*Executor, *httptest.Server) {
	t.Helper()
	up := httptest.NewServer(h)
	t.Cleanup(up.Close)
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), httpclient.NewOutbound(5*time.Second, httpclient.ProxyConfig{}), "edc-ogc/test", ""), up
}

func TestFetchCapabilities_MergesJSON(t *testing.T) {
	rec := &upstreamRecorder{}
	exec, up := newExec(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		if r.URL.Query().Get("format") == "application/json" {
			_, _ = w.Write([]byte(`{"layers":[{"id":"DEM","dataset":"DEM_30"}]}`))
			return
		}
		_, _ = w.Write([]byte(capsXML))
	}))

	c, err := exec.FetchCapabilities(context.Background(), up.URL+"/abc", "wms")
	if err != nil {
		t.Fatalf("FetchCapabilities: %v", err)
	}
	if c.CRSList[0].ID != "EPSG:3857" {
		t.Fatalf("crs order: %+v", c.CRSList)
	}
	if got := c.LayersOf("Copernicus DEM")[0].DataSource; got != "DEM_30" {
		t.Fatalf("data source=%q", got)
	}
	if rec.userAgent != "edc-ogc/test" {
		t.Fatalf("user agent=%q", rec.userAgent)
	}
	want := []string{
		"service=WMS&request=GetCapabilities&version=1.3.0",
		"service=WMS&request=GetCapabilities&version=1.3.0&format=application/json",
	}
	if diff := cmp.Diff(want, rec.queries); diff != "" {
		t.Fatalf("queries (-want +got):\n%s", diff)
	}
}

func TestFetchCapabilities_JSONFailureIsIgnored(t *testing.T) {
	exec, up := newExec(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(capsXML))
	}))
	c, err := exec.FetchCapabilities(context.Background(), up.URL, "wms")
	if err != nil {
		t.Fatalf("json failure must not be fatal: %v", err)
	}
	if len(c.Collections) != 1 || c.Collections[0].DataSource != "" {
		t.Fatalf("unexpected catalog %+v", c.Collections)
	}
}

func TestFetchCapabilities_InvalidInstance(t *testing.T) {
	exec, up := newExec(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	_, err := exec.FetchCapabilities(context.Background(), up.URL, "wms")
	if !errors.Is(err, ErrInvalidInstance) {
		t.Fatalf("want ErrInvalidInstance, got %v", err)
	}
}

func TestFetchCapabilities_MalformedXML(t *testing.T) {
	exec, up := newExec(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<WMS_Capabilities><Capability>"))
	}))
	if _, err := exec.FetchCapabilities(context.Background(), up.URL, "wms"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestConnectionError_CarriesProxyHint(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	addr := up.URL
	up.Close()

	exec := New(slog.New(slog.NewTextHandler(io.Discard, nil)), httpclient.NewOutbound(time.Second, httpclient.ProxyConfig{}), "", "proxy.local:3128")
	_, err := exec.FetchInstances(context.Background(), addr)
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConnectionError, got %T %v", err, err)
	}
	if !strings.HasSuffix(ce.Error(), "Configured to use proxy: proxy.local:3128") {
		t.Fatalf("message=%q", ce.Error())
	}
}

func TestFetchInstances_PrefixesPreconfigured(t *testing.T) {
	exec, up := newExec(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ogc/instances.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"name":"Sentinel","id":"abc"},{"name":"Landsat","id":"def"}]`))
	}))
	got, err := exec.FetchInstances(context.Background(), up.URL+"/ogc/")
	if err != nil {
		t.Fatalf("FetchInstances: %v", err)
	}
	want := []Instance{{Name: PreconfiguredLayers}, {Name: "Sentinel", ID: "abc"}, {Name: "Landsat", ID: "def"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("instances (-want +got):\n%s", diff)
	}
}

func TestProbe_ServiceExceptionText(t *testing.T) {
	report := `<?xml version="1.0"?><ServiceExceptionReport version="1.3.0">
  <ServiceException>
	Layer FOO not found
  </ServiceException></ServiceExceptionReport>`
	exec, up := newExec(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(report))
	}))
	err := exec.Probe(context.Background(), up.URL+"?service=WMS")
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("want ServiceError, got %v", err)
	}
	if se.Status != http.StatusBadRequest || se.Message != "Layer FOO not found" {
		t.Fatalf("service error %+v", se)
	}
	if se.Error() != `HTTPError: server response: "Layer FOO not found"` {
		t.Fatalf("message=%q", se.Error())
	}
}

func TestProbe_EmbeddedJSONError(t *testing.T) {
	exec, up := newExec(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`request failed: {"error":{"status":400,"message":"Invalid BBOX"}}`))
	}))
	err := exec.Probe(context.Background(), up.URL)
	var se *ServiceError
	if !errors.As(err, &se) || se.Message != "Invalid BBOX" {
		t.Fatalf("want Invalid BBOX, got %v", err)
	}
}

func TestServiceMessage(t *testing.T) {
	cases := map[string]string{
		"plain text":   "  \n Not authorised \t",
		"instance id":  `<ServiceExceptionReport><ServiceException>Config instance "instance.abc-123" cannot be found.</ServiceException></ServiceExceptionReport>`,
		"non ascii":    "Ungültig",
		"two elements": `<r><ServiceException>a</ServiceException><Other>x</Other><ServiceException> b</ServiceException></r>`,
	}
	want := map[string]string{
		"plain text":   "Not authorised",
		"instance id":  "Invalid url: abc-123",
		"non ascii":    "Ungltig",
		"two elements": "ab",
	}
	for name, body := range cases {
		if got := ServiceMessage([]byte(body)); got != want[name] {
			t.Fatalf("%s: got %q want %q", name, got, want[name])
		}
	}
}

func TestJSONErrorMessage(t *testing.T) {
	if msg, ok := JSONErrorMessage(`x {'error': {'message': 'quoted'}} y`); !ok || msg != "quoted" {
		t.Fatalf("single quotes: %q %v", msg, ok)
	}
	if _, ok := JSONErrorMessage("no json here"); ok {
		t.Fatalf("expected no match")
	}
	if _, ok := JSONErrorMessage(`{"other":1}`); ok {
		t.Fatalf("object without error.message must not match")
	}
}

type countingProgress struct {
	total    int64
	added    int
	finished bool
}

func (p *countingProgress) Start(total int64) { p.total = total }
func (p *countingProgress) Add(n int)         { p.added += n }
func (p *countingProgress) Finish()           { p.finished = true }

func TestDownload_StreamsToFile(t *testing.T) {
	payload := strings.Repeat("x", 3*ChunkSize+17)
	exec, up := newExec(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/tiff")
		_, _ = io.WriteString(w, payload)
	}))
	path := filepath.Join(t.TempDir(), "out.tiff")
	p := &countingProgress{}

	n, err := exec.Download(context.Background(), up.URL, path, p)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != int64(len(payload)) || p.added != len(payload) || !p.finished {
		t.Fatalf("n=%d progress=%+v", n, p)
	}
	b, err := os.ReadFile(path)
	if err != nil || string(b) != payload {
		t.Fatalf("file content mismatch (err=%v len=%d)", err, len(b))
	}
}

func TestDownload_RemovesPartialFile(t *testing.T) {
	exec, up := newExec(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100000")
		_, _ = io.WriteString(w, strings.Repeat("x", 5000))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	path := filepath.Join(t.TempDir(), "partial.tiff")
	if _, err := exec.Download(context.Background(), up.URL, path, nil); err == nil {
		t.Fatalf("expected truncated download to fail")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind: %v", err)
	}
}

func TestDownload_ServiceErrorCreatesNoFile(t *testing.T) {
	exec, up := newExec(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "<ServiceExceptionReport><ServiceException>too large</ServiceException></ServiceExceptionReport>", http.StatusBadRequest)
	}))
	path := filepath.Join(t.TempDir(), "never.png")
	_, err := exec.Download(context.Background(), up.URL, path, nil)
	var se *ServiceError
	if !errors.As(err, &se) || se.Message != "too large" {
		t.Fatalf("want service error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file created for failed request")
	}
}

func TestDownload_SlowBodyOutlastsHeaderTimeout(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f, _ := w.(http.Flusher)
		for i := 0; i < 10; i++ {
			_, _ = w.Write([]byte(strings.Repeat("x", ChunkSize)))
			if f != nil {
				f.Flush()
			}
			time.Sleep(60 * time.Millisecond)
		}
	}))
	t.Cleanup(up.Close)
	exec := New(slog.New(slog.NewTextHandler(io.Discard, nil)), httpclient.NewOutbound(200*time.Millisecond, httpclient.ProxyConfig{}), "", "")

	path := filepath.Join(t.TempDir(), "slow.tiff")
	n, err := exec.Download(context.Background(), up.URL, path, nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != 10*ChunkSize {
		t.Fatalf("n=%d", n)
	}
}

func TestDownload_HeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(up.Close)
	t.Cleanup(func() { close(release) })
	exec := New(slog.New(slog.NewTextHandler(io.Discard, nil)), httpclient.NewOutbound(100*time.Millisecond, httpclient.ProxyConfig{}), "", "")

	path := filepath.Join(t.TempDir(), "stuck.tiff")
	_, err := exec.Download(context.Background(), up.URL, path, nil)
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConnectionError, got %T %v", err, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file created for stalled request")
	}
}
