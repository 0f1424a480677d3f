package route

import (
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Match is a successful route resolution with extracted path parameters.
type Match struct {
	Route  *Route
	Params map[string]string
}

// Metrics tracks resolver and template activity for the performance report.
// Mutated only by the replay goroutine; no locking.
type Metrics struct {
	CacheHits            int64
	CacheMisses          int64
	TemplateCompilations int64
	TemplateRenders      int64
	TotalRenderTime      time.Duration
}

// AvgRenderTime returns the mean template render duration.
func (m *Metrics) AvgRenderTime() time.Duration {
	if m.TemplateRenders == 0 {
		return 0
	}
	return m.TotalRenderTime / time.Duration(m.TemplateRenders)
}

// RecordRender accumulates one render's duration.
func (m *Metrics) RecordRender(d time.Duration) {
	m.TemplateRenders++
	m.TotalRenderTime += d
}

// Sink receives resolver events; the Prometheus adapter implements it.
type Sink interface {
	RouteCacheHit()
	RouteCacheMiss()
}

// Resolver holds an insertion-ordered route table with a memoized match
// cache. First registered match wins. Misses are cached as nil entries so
// unmatched endpoints do not rescan the table on every interaction.
//
// Not safe for concurrent mutation; the route table is populated before
// replay and only read during it.
type Resolver struct {
	routes  []*Route
	cache   map[uint64]*Match
	logger  *zap.Logger
	sink    Sink
	Metrics Metrics
}

// NewResolver creates an empty resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{
		cache:  make(map[uint64]*Match),
		logger: logger,
	}
}

// SetSink attaches a metrics sink (optional).
func (r *Resolver) SetSink(sink Sink) { r.sink = sink }

// Register appends a route to the table and invalidates the match cache.
func (r *Resolver) Register(route *Route) {
	r.routes = append(r.routes, route)
	r.ClearCaches()
}

// Routes returns the table in insertion order.
func (r *Resolver) Routes() []*Route { return r.routes }

// Resolve matches a request to a route. Both hits and misses are memoized
// under the "METHOD-path" key.
func (r *Resolver) Resolve(method, path string) *Match {
	key := cacheKey(method, path)

	if match, cached := r.cache[key]; cached {
		r.Metrics.CacheHits++
		if r.sink != nil {
			r.sink.RouteCacheHit()
		}
		return match
	}

	r.Metrics.CacheMisses++
	if r.sink != nil {
		r.sink.RouteCacheMiss()
	}

	for _, route := range r.routes {
		if !route.MatchMethod(method) {
			continue
		}
		params, ok := route.MatchPath(path)
		if !ok {
			continue
		}
		match := &Match{Route: route, Params: params}
		r.cache[key] = match
		r.logger.Debug("Route matched",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("pattern", route.Pattern))
		return match
	}

	// Negative cache entry prevents repeated table scans for this key.
	r.cache[key] = nil
	return nil
}

// ClearCaches invalidates every memoized match. Called after route
// registration.
func (r *Resolver) ClearCaches() {
	r.cache = make(map[uint64]*Match)
}

func cacheKey(method, path string) uint64 {
	return xxhash.Sum64String(strings.ToUpper(method) + "-" + path)
}
