package invalidation_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/eurodatacube/edc-qgis-plugin/internal/cache/catalog"
	"github.com/eurodatacube/edc-qgis-plugin/internal/cache/keys"
	"github.com/eurodatacube/edc-qgis-plugin/internal/cache/redisstore"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/executor"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/httpclient"
	"github.com/eurodatacube/edc-qgis-plugin/internal/invalidation"
	"github.com/eurodatacube/edc-qgis-plugin/internal/invalidation/kafkaconsumer"
)

const capsXML = `<WMS_Capabilities><Capability><Layer><CRS>EPSG:4326</CRS>
<Layer><Name>DEM</Name><Title>Copernicus DEM</Title></Layer></Layer></Capability></WMS_Capabilities>`

func TestRefreshMessage_DropsBothCacheTiers(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") == "application/json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte(capsXML))
	}))
	defer upstream.Close()

	mr := miniredis.RunT(t)
	ctx := context.Background()
	rs, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	defer func() { _ = rs.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := executor.New(logger, httpclient.NewOutbound(5*time.Second, httpclient.ProxyConfig{}), "edc-ogc/test", "")
	cache := catalog.New(logger, exec, rs, catalog.Config{Size: 4, TTL: time.Minute})

	svc := upstream.URL + "/ogc/abc"
	if _, err := cache.Get(ctx, svc, "wms"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	docKey := keys.Document(keys.Catalog(svc, "wms"), "xml")
	if !mr.Exists(docKey) {
		t.Fatalf("document %s not stored in redis", docKey)
	}

	body, _ := json.Marshal(invalidation.Event{Version: 1, Op: "refresh", ServiceURL: svc, TS: time.Now().UTC()})
	c := kafkaconsumer.New(kafkaconsumer.Config{Topic: "edc-ogc-invalidation"}, logger, cache)
	if err := c.ProcessOne(ctx, &sarama.ConsumerMessage{Value: body}); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if mr.Exists(docKey) || cache.Len() != 0 {
		t.Fatalf("refresh left cached state: redis=%v len=%d", mr.Exists(docKey), cache.Len())
	}

	if _, err := cache.Get(ctx, svc, "wms"); err != nil {
		t.Fatalf("Get after refresh: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("upstream hits=%d want 2", hits.Load())
	}
}
