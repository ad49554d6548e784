// Package executor performs the HTTP GETs against an OGC service:
// capabilities, instance lists, probes and streamed coverage downloads.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/observability"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/ogc"
)

// ChunkSize is the buffer size used when streaming downloads to disk.
const ChunkSize = 4096

// maximum error body read when extracting a service message
const maxErrorBody = 1 << 20

// PreconfiguredLayers names the instance entry that selects the base URL itself.
const PreconfiguredLayers = "pre-configured layers"

type Interface interface {
	FetchCapabilities(ctx context.Context, base, service string) (*ogc.Capabilities, error)
	FetchDocuments(ctx context.Context, base, service string) (xmlDoc, jsonDoc []byte, err error)
	Catalog(ctx context.Context, base string, xmlDoc, jsonDoc []byte) (*ogc.Capabilities, error)
	FetchInstances(ctx context.Context, base string) ([]Instance, error)
	Download(ctx context.Context, url, path string, progress Progress) (int64, error)
	Probe(ctx context.Context, url string) error
}

// Instance is one entry of <base>/instances.json.
type Instance struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Progress receives download progress. total is -1 when the size is unknown.
type Progress interface {
	Start(total int64)
	Add(n int)
	Finish()
}

type Executor struct {
	logger    *slog.Logger
	client    *http.Client
	userAgent string
	proxyHint string
	startNow  func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, userAgent, proxyHint string) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{
		logger:    logger,
		client:    client,
		userAgent: userAgent,
		proxyHint: proxyHint,
		startNow:  time.Now,
	}
}

// get issues a GET and returns the response of a 2xx status. Callers close
// the body. invalidOn400 maps HTTP 400 to ErrInvalidInstance.
func (e *Executor) get(ctx context.Context, op, url string, invalidOn400 bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	start := e.startNow()
	resp, err := e.client.Do(req)
	elapsed := time.Since(start)
	dur := elapsed.Seconds()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		observability.ObserveUpstream(op, observability.OutcomeConnection, dur)
		e.logger.DebugContext(ctx, "upstream unreachable", "op", op, "url", url, "err", err)
		return nil, &ConnectionError{URL: url, ProxyHint: e.proxyHint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if invalidOn400 && resp.StatusCode == http.StatusBadRequest {
			observability.ObserveUpstream(op, observability.OutcomeInvalidInstance, dur)
			return nil, fmt.Errorf("%s %s: %w", op, url, ErrInvalidInstance)
		}
		observability.ObserveUpstream(op, observability.OutcomeServiceError, dur)
		msg := ServiceMessage(body)
		if jm, ok := JSONErrorMessage(string(body)); ok {
			msg = jm
		}
		return nil, &ServiceError{URL: url, Status: resp.StatusCode, Message: msg}
	}

	observability.ObserveUpstream(op, observability.OutcomeOK, dur)
	e.logger.DebugContext(ctx, "upstream done", "op", op, "status", resp.StatusCode, "duration", elapsed.String())
	return resp, nil
}

func (e *Executor) fetch(ctx context.Context, op, url string, invalidOn400 bool) ([]byte, error) {
	resp, err := e.get(ctx, op, url, invalidOn400)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	return b, nil
}

// FetchDocuments downloads the XML capabilities and, best effort, the JSON
// variant. jsonDoc is nil when the JSON request failed.
func (e *Executor) FetchDocuments(ctx context.Context, base, service string) (xmlDoc, jsonDoc []byte, err error) {
	xmlDoc, err = e.fetch(ctx, "capabilities", ogc.CapabilitiesURL(base, service, false), true)
	if err != nil {
		return nil, nil, err
	}
	jsonDoc, jerr := e.fetch(ctx, "capabilities_json", ogc.CapabilitiesURL(base, service, true), true)
	if jerr != nil {
		e.logger.WarnContext(ctx, "json capabilities unavailable", "err", jerr)
		jsonDoc = nil
	}
	return xmlDoc, jsonDoc, nil
}

// Catalog parses fetched documents. A JSON merge problem is logged and the
// XML-only catalog returned.
func (e *Executor) Catalog(ctx context.Context, base string, xmlDoc, jsonDoc []byte) (*ogc.Capabilities, error) {
	c, err := ogc.ParseXML(base, xmlDoc)
	if err != nil {
		return nil, fmt.Errorf("capabilities %s: %w", base, err)
	}
	if jsonDoc == nil {
		return c, nil
	}
	merged, err := ogc.MergeJSON(c, jsonDoc)
	if err != nil {
		e.logger.WarnContext(ctx, "json capabilities not merged", "err", err)
	}
	return merged, nil
}

func (e *Executor) FetchCapabilities(ctx context.Context, base, service string) (*ogc.Capabilities, error) {
	xmlDoc, jsonDoc, err := e.FetchDocuments(ctx, base, service)
	if err != nil {
		return nil, err
	}
	return e.Catalog(ctx, base, xmlDoc, jsonDoc)
}

// FetchInstances lists the service instances under base. The first entry
// is always PreconfiguredLayers with an empty id.
func (e *Executor) FetchInstances(ctx context.Context, base string) ([]Instance, error) {
	if base == "" {
		return nil, errors.New("instances: empty base url")
	}
	b, err := e.fetch(ctx, "instances", ogc.InstancesURL(base), true)
	if err != nil {
		return nil, err
	}
	var list []Instance
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("instances: decode: %w", err)
	}
	out := make([]Instance, 0, len(list)+1)
	out = append(out, Instance{Name: PreconfiguredLayers})
	return append(out, list...), nil
}

// Download streams url into path. A partially written file is removed on
// failure. progress may be nil.
func (e *Executor) Download(ctx context.Context, url, path string, progress Progress) (int64, error) {
	resp, err := e.get(ctx, "download", url, false)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("download: create %s: %w", path, err)
	}
	if progress != nil {
		progress.Start(resp.ContentLength)
		defer progress.Finish()
	}

	n, err := copyChunks(f, resp.Body, progress)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return n, fmt.Errorf("download %s: %w", path, err)
	}
	observability.AddDownloadedBytes(n)
	e.logger.InfoContext(ctx, "download done", "path", path, "bytes", n)
	return n, nil
}

func copyChunks(dst io.Writer, src io.Reader, progress Progress) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if progress != nil {
				progress.Add(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// Probe requests a built URL and reports the service's complaint, if any.
func (e *Executor) Probe(ctx context.Context, url string) error {
	resp, err := e.get(ctx, "probe", url, false)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
