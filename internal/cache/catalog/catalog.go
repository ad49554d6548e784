// Package catalog caches parsed capabilities for the HTTP facade: an
// in-process expirable LRU in front of an optional Redis tier holding the
// raw documents.
package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/eurodatacube/edc-qgis-plugin/internal/cache/keys"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/observability"
	"github.com/eurodatacube/edc-qgis-plugin/internal/core/ogc"
)

// Fetcher downloads and parses capabilities documents.
type Fetcher interface {
	FetchDocuments(ctx context.Context, base, service string) (xmlDoc, jsonDoc []byte, err error)
	Catalog(ctx context.Context, base string, xmlDoc, jsonDoc []byte) (*ogc.Capabilities, error)
}

// DocStore is the shared document tier, usually a *redisstore.Client.
type DocStore interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type Config struct {
	Size      int
	TTL       time.Duration
	OpTimeout time.Duration
}

// Cache is safe for concurrent use. Cached catalogs are shared between
// callers and must not be modified.
type Cache struct {
	logger *slog.Logger
	fetch  Fetcher
	docs   DocStore
	cfg    Config
	lru    *expirable.LRU[string, *ogc.Capabilities]
}

// New builds a cache. docs may be nil to disable the Redis tier.
func New(logger *slog.Logger, fetch Fetcher, docs DocStore, cfg Config) *Cache {
	if cfg.Size <= 0 {
		cfg.Size = 64
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	return &Cache{
		logger: logger,
		fetch:  fetch,
		docs:   docs,
		cfg:    cfg,
		lru:    expirable.NewLRU[string, *ogc.Capabilities](cfg.Size, nil, cfg.TTL),
	}
}

// Get returns the catalog of serviceURL, fetching it on a miss in both tiers.
func (c *Cache) Get(ctx context.Context, serviceURL, service string) (*ogc.Capabilities, error) {
	key := keys.Catalog(serviceURL, service)
	if cat, ok := c.lru.Get(key); ok {
		observability.IncCatalogCache("memory", true)
		return cat, nil
	}
	observability.IncCatalogCache("memory", false)

	if cat, ok := c.fromDocs(ctx, key, serviceURL); ok {
		c.lru.Add(key, cat)
		return cat, nil
	}

	xmlDoc, jsonDoc, err := c.fetch.FetchDocuments(ctx, serviceURL, service)
	if err != nil {
		return nil, err
	}
	cat, err := c.fetch.Catalog(ctx, serviceURL, xmlDoc, jsonDoc)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, cat)
	c.storeDocs(ctx, key, xmlDoc, jsonDoc)
	return cat, nil
}

func (c *Cache) fromDocs(ctx context.Context, key, serviceURL string) (*ogc.Capabilities, bool) {
	if c.docs == nil {
		return nil, false
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	xmlKey, jsonKey := keys.Document(key, "xml"), keys.Document(key, "json")
	got, err := c.docs.MGet(opCtx, []string{xmlKey, jsonKey})
	if err != nil {
		c.logger.WarnContext(ctx, "catalog document tier unavailable", "err", err)
		return nil, false
	}
	xmlDoc, ok := got[xmlKey]
	observability.IncCatalogCache("redis", ok)
	if !ok {
		return nil, false
	}
	cat, err := c.fetch.Catalog(ctx, serviceURL, xmlDoc, got[jsonKey])
	if err != nil {
		c.logger.WarnContext(ctx, "cached capabilities unusable", "key", key, "err", err)
		return nil, false
	}
	return cat, true
}

func (c *Cache) storeDocs(ctx context.Context, key string, xmlDoc, jsonDoc []byte) {
	if c.docs == nil {
		return
	}
	kv := map[string][]byte{keys.Document(key, "xml"): xmlDoc}
	if jsonDoc != nil {
		kv[keys.Document(key, "json")] = jsonDoc
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	if err := c.docs.MSetWithTTL(opCtx, kv, c.cfg.TTL); err != nil {
		c.logger.WarnContext(ctx, "catalog document store failed", "key", key, "err", err)
	}
}

// Invalidate drops a service URL from both tiers.
func (c *Cache) Invalidate(ctx context.Context, serviceURL, service string) error {
	key := keys.Catalog(serviceURL, service)
	c.lru.Remove(key)
	if c.docs == nil {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	return c.docs.Del(opCtx, keys.Document(key, "xml"), keys.Document(key, "json"))
}

func (c *Cache) Len() int { return c.lru.Len() }
