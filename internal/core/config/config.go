package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/httpclient"
)

// Version is reported in the User-Agent header and by the CLI.
const Version = "2.0.0"

type EventsCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	H3Res   int
}

// InvalidationCfg configures the consumer of catalog refresh messages.
type InvalidationCfg struct {
	Enabled bool
	Topic   string
	GroupID string
}

type CatalogCacheCfg struct {
	Size      int
	TTL       time.Duration
	RedisAddr string
	OpTimeout time.Duration
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	ServiceURL     string
	DownloadFolder string
	UserAgent      string
	HTTPTimeout    time.Duration // connect and response headers only
	Proxy          httpclient.ProxyConfig
	Cache          CatalogCacheCfg
	Events         EventsCfg
	Invalidation   InvalidationCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 6)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		ServiceURL:     getenv("EDC_SERVICE_URL", ""),
		DownloadFolder: getenv("EDC_DOWNLOAD_FOLDER", ""),
		UserAgent:      getenv("EDC_USER_AGENT", "edc-ogc/"+Version),
		HTTPTimeout:    getduration("HTTP_TIMEOUT", 60*time.Second),
		Proxy: httpclient.ProxyConfig{
			Enabled:  getbool("PROXY_ENABLED", false),
			Host:     getenv("PROXY_HOST", ""),
			Port:     getenv("PROXY_PORT", ""),
			User:     getenv("PROXY_USER", ""),
			Password: getenv("PROXY_PASSWORD", ""),
		},
		Cache: CatalogCacheCfg{
			Size:      getint("CATALOG_CACHE_SIZE", 64),
			TTL:       getduration("CATALOG_CACHE_TTL", 10*time.Minute),
			RedisAddr: getenv("REDIS_ADDR", ""),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "edc-ogc-requests"),
			H3Res:   res,
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("INVALIDATION_TOPIC", "edc-ogc-invalidation"),
			GroupID: getenv("KAFKA_GROUP_ID", "edc-ogc-facade"),
		},
	}
}

// Brokers splits a comma separated broker list.
func Brokers(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
