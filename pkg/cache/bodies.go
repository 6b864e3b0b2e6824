package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/l3aro/go-region-facts/internal/metrics"
	"github.com/l3aro/go-region-facts/pkg/enrich"
	"github.com/l3aro/go-region-facts/pkg/mir"
)

// Stats describes the cache usage so far.
type Stats struct {
	Length int   `json:"length" yaml:"length"`
	Hits   int64 `json:"hits" yaml:"hits"`
	Misses int64 `json:"misses" yaml:"misses"`
}

// HitRate returns the fraction of lookups served from the cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// BodyCache memoizes enrichments of the procedures of one context. All
// entries share the enrichment options given at construction, so the
// procedure id alone identifies a result.
type BodyCache struct {
	tcx     *mir.Context
	opts    []enrich.Option
	lru     *LRU[*enrich.EnrichedBody]
	group   singleflight.Group
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewBodyCache creates a cache holding at most size bodies (unbounded when
// size <= 0). m may be nil.
func NewBodyCache(tcx *mir.Context, size int, m *metrics.Metrics, opts ...enrich.Option) *BodyCache {
	return &BodyCache{
		tcx:     tcx,
		opts:    opts,
		lru:     NewLRU(Options[*enrich.EnrichedBody]{MaxSize: size}),
		metrics: m,
	}
}

// Get returns the enriched body of defID, enriching it on a miss. Concurrent
// misses on the same id share one enrichment, which is not canceled when the
// caller that started it gives up. Failures are not cached.
func (c *BodyCache) Get(ctx context.Context, defID string) (*enrich.EnrichedBody, error) {
	if eb, ok := c.lru.Get(defID); ok {
		c.hits.Add(1)
		c.metrics.CacheLookup(true)
		return eb, nil
	}
	c.misses.Add(1)
	c.metrics.CacheLookup(false)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(defID, func() (interface{}, error) {
		if eb, ok := c.lru.Get(defID); ok {
			return eb, nil
		}
		eb, err := enrich.Enrich(shared, c.tcx, defID, c.opts...)
		if err != nil {
			return nil, err
		}
		c.lru.Set(defID, eb)
		return eb, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*enrich.EnrichedBody), nil
	}
}

// GetAll looks up ids through the cache, at most workers at a time
// (unbounded when workers <= 0). Results are in the order of ids and a
// failing procedure does not stop the others. The returned error is only set
// when ctx ends early.
func (c *BodyCache) GetAll(ctx context.Context, ids []string, workers int) ([]enrich.Result, error) {
	results := make([]enrich.Result, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, id := range ids {
		g.Go(func() error {
			eb, err := c.Get(gCtx, id)
			results[i] = enrich.Result{DefID: id, Body: eb, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}

// Peek returns the cached body of defID without enriching or counting.
func (c *BodyCache) Peek(defID string) (*enrich.EnrichedBody, bool) {
	return c.lru.Peek(defID)
}

// Invalidate drops the cached body of defID.
func (c *BodyCache) Invalidate(defID string) { c.lru.Delete(defID) }

func (c *BodyCache) Len() int { return c.lru.Len() }

func (c *BodyCache) Stats() Stats {
	return Stats{Length: c.lru.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Bodies returns the cached bodies, most recently used first.
func (c *BodyCache) Bodies() []*enrich.EnrichedBody {
	entries := c.lru.Entries()
	out := make([]*enrich.EnrichedBody, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}
