package eta

import (
	"math"
	"sync"
	"time"

	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/models"
)

// DefaultSpeedMph is the assumed average road speed when no routing engine
// is configured.
const DefaultSpeedMph = 30.0

// Client is the interface used by the matcher and tracker to get drive times.
type Client interface {
	EstimateSeconds(from, to models.Coordinate) (float64, error)
}

// Cache holds drive times per origin/destination pair. Points are bucketed
// to about a metre so jitter in repeated positions still hits.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[routeKey]cached
}

type routeKey struct {
	fromLat, fromLng, toLat, toLng int64
}

type cached struct {
	seconds float64
	expires time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, items: make(map[routeKey]cached)}
}

func bucket(v float64) int64 { return int64(math.Round(v * 1e5)) }

func keyFor(a, b models.Coordinate) routeKey {
	return routeKey{bucket(a.Lat), bucket(a.Lng), bucket(b.Lat), bucket(b.Lng)}
}

// Get reports a cached drive time. Expired entries are dropped on read.
func (c *Cache) Get(a, b models.Coordinate) (float64, bool) {
	k := keyFor(a, b)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[k]
	if !ok {
		return 0, false
	}
	if !time.Now().Before(e.expires) {
		delete(c.items, k)
		return 0, false
	}
	return e.seconds, true
}

func (c *Cache) Set(a, b models.Coordinate, seconds float64) {
	c.mu.Lock()
	c.items[keyFor(a, b)] = cached{seconds: seconds, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Minutes converts a drive time to whole minutes, never less than one:
// a provider is never quoted as already there.
func Minutes(seconds float64) int {
	m := int(math.Ceil(seconds / 60))
	if m < 1 {
		return 1
	}
	return m
}

// EstimateSeconds is the straight-line drive time at speedMph.
func EstimateSeconds(from, to models.Coordinate, speedMph float64) float64 {
	if speedMph <= 0 {
		speedMph = DefaultSpeedMph
	}
	return geo.Distance(from, to) / speedMph * 3600
}

// Estimator combines an optional routing client and cache with the naive
// fallback. The zero value uses the straight-line estimate only.
type Estimator struct {
	Client   Client
	Cache    *Cache
	SpeedMph float64
}

// Seconds returns the drive time from one point to another.
func (e *Estimator) Seconds(from, to models.Coordinate) float64 {
	if e == nil {
		return EstimateSeconds(from, to, DefaultSpeedMph)
	}
	if e.Cache != nil {
		if v, ok := e.Cache.Get(from, to); ok {
			return v
		}
	}
	if e.Client != nil {
		if v, err := e.Client.EstimateSeconds(from, to); err == nil {
			if e.Cache != nil {
				e.Cache.Set(from, to, v)
			}
			return v
		}
	}
	return EstimateSeconds(from, to, e.SpeedMph)
}

// Minutes is Seconds rounded up to whole minutes.
func (e *Estimator) Minutes(from, to models.Coordinate) int {
	return Minutes(e.Seconds(from, to))
}
