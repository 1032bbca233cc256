// Package resource caches the shared lookup resources that backends load
// by key, guarding each load with a monotonic id so a superseded load never
// overwrites a newer one.
package resource

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
)

var (
	ErrStale    = errors.New("seedtiles: resource load superseded")
	ErrNotFound = errors.New("seedtiles: resource not found")
)

// Loader fetches a resource by key.
type Loader interface {
	Load(ctx context.Context, key string) ([]byte, error)
}

type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// Cache keeps every resource fetched so far and remembers which key the
// backends currently hold.
type Cache struct {
	loader Loader
	logger *slog.Logger

	mu        sync.Mutex
	blobs     map[string][]byte
	loadID    uint64
	committed string
}

func NewCache(loader Loader, opts ...Option) *Cache {
	c := &Cache{
		loader: loader,
		logger: slog.New(slog.DiscardHandler),
		blobs:  make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Committed returns the key last distributed to the backends.
func (c *Cache) Committed() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// Invalidate forgets which resource the backends hold, for example after
// the backends were replaced. Cached data is kept.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = ""
	c.loadID++
}

// Begin starts a load of key. Starting another load supersedes this one.
func (c *Cache) Begin(key string) *Load {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadID++
	return &Load{cache: c, id: c.loadID, Key: key}
}

func (c *Cache) current(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadID == id
}

// Load is one attempt to bring the backends onto a resource.
type Load struct {
	cache *Cache
	id    uint64
	Key   string
}

// Fetch returns the resource data from the cache or the loader. It fails
// with ErrStale when a newer load started meanwhile.
func (l *Load) Fetch(ctx context.Context) ([]byte, error) {
	c := l.cache
	c.mu.Lock()
	data, ok := c.blobs[l.Key]
	c.mu.Unlock()

	if !ok {
		var err error
		data, err = c.loader.Load(ctx, l.Key)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.blobs[l.Key] = data
		c.mu.Unlock()
		c.logger.Info("seedtiles: resource loaded", "key", l.Key, "size", humanize.Bytes(uint64(len(data))))
	}

	if !c.current(l.id) {
		return nil, ErrStale
	}
	return data, nil
}

// Current reports whether no newer load has started since this one.
func (l *Load) Current() bool {
	return l.cache.current(l.id)
}

// Commit records that the backends hold the resource.
func (l *Load) Commit() error {
	c := l.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadID != l.id {
		return ErrStale
	}
	c.committed = l.Key
	return nil
}
