package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "HTTP_TIMEOUT", "CATALOG_CACHE_SIZE", "REDIS_ADDR", "KAFKA_TOPIC", "H3_RES", "PROXY_ENABLED", "INVALIDATION_TOPIC", "KAFKA_GROUP_ID"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Addr != ":8090" || cfg.HTTPTimeout != 60*time.Second {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Cache.Size != 64 || cfg.Cache.TTL != 10*time.Minute || cfg.Cache.RedisAddr != "" {
		t.Fatalf("cache defaults: %+v", cfg.Cache)
	}
	if cfg.Events.Topic != "edc-ogc-requests" || cfg.Events.H3Res != 6 || cfg.Events.Enabled {
		t.Fatalf("events defaults: %+v", cfg.Events)
	}
	if cfg.Invalidation.Enabled || cfg.Invalidation.Topic != "edc-ogc-invalidation" || cfg.Invalidation.GroupID != "edc-ogc-facade" {
		t.Fatalf("invalidation defaults: %+v", cfg.Invalidation)
	}
	if cfg.Proxy.Enabled {
		t.Fatalf("proxy enabled by default")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PROXY_ENABLED", "yes")
	t.Setenv("PROXY_HOST", "proxy.local")
	t.Setenv("PROXY_PORT", "3128")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("H3_RES", "42")
	t.Setenv("CATALOG_CACHE_SIZE", "not-a-number")

	cfg := FromEnv()
	if !cfg.Proxy.Enabled || cfg.Proxy.Host != "proxy.local" || cfg.Proxy.Port != "3128" {
		t.Fatalf("proxy: %+v", cfg.Proxy)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Fatalf("timeout=%v", cfg.HTTPTimeout)
	}
	if cfg.Events.H3Res != 15 {
		t.Fatalf("h3 res must clamp to 15, got %d", cfg.Events.H3Res)
	}
	if cfg.Cache.Size != 64 {
		t.Fatalf("invalid int must fall back to default, got %d", cfg.Cache.Size)
	}
}

func TestBrokers(t *testing.T) {
	got := Brokers(" a:9092, ,b:9092,")
	if diff := cmp.Diff([]string{"a:9092", "b:9092"}, got); diff != "" {
		t.Fatalf("brokers (-want +got):\n%s", diff)
	}
}
