// internal/batch/cache.go - Grid configuration cache
package batch

import (
	"context"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/valpere/airphoto_tiler/pkg/tilegrid"
)

// Loader fetches a document by location
type Loader func(ctx context.Context, uri string) ([]byte, error)

// ConfigCache keeps parsed grid configurations for a fixed time so that one
// dispatch reads each configuration document once
type ConfigCache struct {
	cache *ccache.Cache[tilegrid.GridConfig]
	ttl   time.Duration
	load  Loader
}

// NewConfigCache creates a cache that loads missing entries with load
func NewConfigCache(ttl time.Duration, load Loader) *ConfigCache {
	return &ConfigCache{
		cache: ccache.New(ccache.Configure[tilegrid.GridConfig]().MaxSize(64)),
		ttl:   ttl,
		load:  load,
	}
}

// Get returns the parsed configuration at uri
func (c *ConfigCache) Get(ctx context.Context, uri string) (tilegrid.GridConfig, error) {
	item, err := c.cache.Fetch(uri, c.ttl, func() (tilegrid.GridConfig, error) {
		data, err := c.load(ctx, uri)
		if err != nil {
			return tilegrid.GridConfig{}, err
		}
		return tilegrid.ParseGridConfig(data)
	})
	if err != nil {
		return tilegrid.GridConfig{}, err
	}
	return item.Value(), nil
}

// Stop releases the cache's background worker
func (c *ConfigCache) Stop() {
	c.cache.Stop()
}
