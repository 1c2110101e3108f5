package status

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/angelmondragon/backoffice/pkg/config"
	"github.com/angelmondragon/backoffice/pkg/metrics"
)

const (
	defaultCacheTTL      = 60 * time.Second
	defaultCacheCapacity = 1000
)

// CacheOptions tunes a Cache. Zero values fall back to the package defaults.
type CacheOptions struct {
	TTL               time.Duration
	Capacity          int
	SweepProbability  float64
	ClaimsStaleWindow time.Duration
	Metrics           *metrics.GateMetrics
	Now               func() time.Time
	Rand              func() float64
}

// CacheOptionsFromConfig maps the status cache configuration onto CacheOptions.
func CacheOptionsFromConfig(cfg config.StatusCacheConfig, m *metrics.GateMetrics) CacheOptions {
	return CacheOptions{
		TTL:               cfg.TTL,
		Capacity:          cfg.Capacity,
		SweepProbability:  cfg.SweepProbability,
		ClaimsStaleWindow: cfg.ClaimsStaleWindow,
		Metrics:           m,
	}
}

// Cache is a process-local TTL cache of snapshots keyed by external id.
//
// Besides snapshots it remembers when each key was last invalidated. Session
// claims issued before that moment are stale and the resolver skips them until
// ClaimsStaleWindow has passed.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]Snapshot
	watermarks map[string]time.Time

	ttl              time.Duration
	capacity         int
	sweepProbability float64
	staleWindow      time.Duration

	metrics *metrics.GateMetrics
	now     func() time.Time
	rand    func() float64
}

// NewCache builds an empty cache.
func NewCache(opts CacheOptions) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = defaultCacheTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCacheCapacity
	}
	if opts.ClaimsStaleWindow <= 0 {
		opts.ClaimsStaleWindow = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &Cache{
		entries:          make(map[string]Snapshot),
		watermarks:       make(map[string]time.Time),
		ttl:              opts.TTL,
		capacity:         opts.Capacity,
		sweepProbability: opts.SweepProbability,
		staleWindow:      opts.ClaimsStaleWindow,
		metrics:          opts.Metrics,
		now:              opts.Now,
		rand:             opts.Rand,
	}
}

// Get returns the cached snapshot for externalID. Expired entries are reported absent.
func (c *Cache) Get(externalID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.entries[externalID]
	if !ok || c.expired(snap, c.now()) {
		c.metrics.CacheMiss()
		return Snapshot{}, false
	}
	c.metrics.CacheHit()
	return snap, true
}

// Put stores snap and evicts the oldest entries while the cache is over capacity.
func (c *Cache) Put(externalID string, snap Snapshot) {
	if externalID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sweepProbability > 0 && c.rand() < c.sweepProbability {
		c.sweepLocked(c.now())
	}

	c.entries[externalID] = snap
	for len(c.entries) > c.capacity {
		if !c.evictOldestLocked(externalID) {
			break
		}
	}
}

// Invalidate drops the entry and records the invalidation time for the claims watermark.
func (c *Cache) Invalidate(externalID string) {
	if externalID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, externalID)
	c.watermarks[externalID] = c.now()
}

// InvalidatedAt returns the last invalidation time while it is still inside the stale window.
func (c *Cache) InvalidatedAt(externalID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.watermarks[externalID]
	if !ok || c.now().Sub(at) >= c.staleWindow {
		return time.Time{}, false
	}
	return at, true
}

// Sweep removes every expired entry and watermark, returning how many entries were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) expired(snap Snapshot, now time.Time) bool {
	return now.Sub(snap.ResolvedAt) >= c.ttl
}

func (c *Cache) sweepLocked(now time.Time) int {
	removed := 0
	for key, snap := range c.entries {
		if c.expired(snap, now) {
			delete(c.entries, key)
			removed++
		}
	}
	for key, at := range c.watermarks {
		if now.Sub(at) >= c.staleWindow {
			delete(c.watermarks, key)
		}
	}
	return removed
}

// evictOldestLocked removes the entry with the oldest ResolvedAt, never the one just written.
func (c *Cache) evictOldestLocked(keep string) bool {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for key, snap := range c.entries {
		if key == keep {
			continue
		}
		if !found || snap.ResolvedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = key, snap.ResolvedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
	return found
}
