package cache

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-region-facts/internal/log"
	"github.com/l3aro/go-region-facts/internal/metrics"
	"github.com/l3aro/go-region-facts/pkg/enrich"
	"github.com/l3aro/go-region-facts/pkg/facts"
	"github.com/l3aro/go-region-facts/pkg/mir"
)

func TestLRU_Basic(t *testing.T) {
	c := NewLRU(Options[string]{MaxSize: 3})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value_a", val)

	_, found = c.Get("missing")
	assert.False(t, found)
}

func TestLRU_Eviction(t *testing.T) {
	var evicted []string
	c := NewLRU(Options[int]{
		MaxSize: 3,
		OnEvict: func(key string, _ int) { evicted = append(evicted, key) },
	})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Set("d", 4)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	_, found = c.Get("a")
	assert.True(t, found, "a should still be present")
}

func TestLRU_PeekKeepsOrder(t *testing.T) {
	c := NewLRU(Options[int]{MaxSize: 2})
	c.Set("a", 1)
	c.Set("b", 2)

	v, ok := c.Peek("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Set("c", 3)
	_, found := c.Peek("a")
	assert.False(t, found, "peek must not refresh a")
}

func TestLRU_UpdateDeleteClear(t *testing.T) {
	c := NewLRU(Options[string]{MaxSize: 10})

	c.Set("a", "value1")
	c.Set("a", "value2")
	c.Set("b", "value3")

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value2", val)
	assert.Equal(t, 2, c.Len())

	keys := []string{}
	for _, e := range c.Entries() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"a", "b"}, keys)

	c.Delete("a")
	c.Delete("a")
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Entries())
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU(Options[int]{MaxSize: 8})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := string(rune('a' + (i+j)%12))
				c.Set(key, j)
				c.Get(key)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 8)
	assert.Len(t, c.Entries(), c.Len())
}

// fn id<'a>(x: &'a i32) -> &'a i32 { x }
func testContext(t *testing.T, ids ...string) *mir.Context {
	t.Helper()
	b := mir.NewContextBuilder()
	for _, id := range ids {
		b.AddProcedure(&mir.Procedure{
			ID: id,
			Signature: &mir.Signature{
				Generics: []mir.LifetimeParam{{Name: "a"}},
				Inputs:   []*mir.Ty{mir.Ref(mir.Named("a"), mir.Not, mir.Int("i32"))},
				Output:   mir.Ref(mir.Named("a"), mir.Not, mir.Int("i32")),
			},
			Body: &mir.Body{
				ArgCount: 1,
				Locals: []mir.LocalDecl{
					{Ty: mir.Ref(mir.Erased(), mir.Not, mir.Int("i32"))},
					{Ty: mir.Ref(mir.Erased(), mir.Not, mir.Int("i32"))},
				},
				Blocks: []mir.BlockData{{
					Statements: []mir.Statement{mir.Assign(mir.PlaceOf(0), mir.Use(mir.Copy(mir.PlaceOf(1))))},
					Terminator: mir.Return(),
				}},
			},
		})
	}
	tcx, err := b.Build()
	require.NoError(t, err)
	return tcx
}

func TestBodyCache_GetMemoizes(t *testing.T) {
	reg := prometheus.NewRegistry()
	bc := NewBodyCache(testContext(t, "f", "g"), 1, metrics.New(reg), enrich.WithLogger(log.Discard()))
	ctx := context.Background()

	first, err := bc.Get(ctx, "f")
	require.NoError(t, err)
	second, err := bc.Get(ctx, "f")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = bc.Get(ctx, "g")
	require.NoError(t, err)
	_, ok := bc.Peek("f")
	assert.False(t, ok, "f should have been evicted by g")
	assert.Equal(t, 1, bc.Len())

	stats := bc.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 1.0/3.0, stats.HitRate(), 1e-9)

	n, err := testutil.GatherAndCount(reg, "grf_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "hit and miss series")
}

func TestBodyCache_ErrorsAreNotCached(t *testing.T) {
	bc := NewBodyCache(testContext(t, "f"), 4, nil, enrich.WithLogger(log.Discard()))

	_, err := bc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, mir.ErrContractViolation))
	assert.Equal(t, 0, bc.Len())
}

func TestBodyCache_ConcurrentMissesShareResult(t *testing.T) {
	bc := NewBodyCache(testContext(t, "f"), 4, nil, enrich.WithLogger(log.Discard()))

	const n = 8
	results := make([]*enrich.EnrichedBody, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb, err := bc.Get(context.Background(), "f")
			if assert.NoError(t, err) {
				results[i] = eb
			}
		}()
	}
	wg.Wait()

	for _, eb := range results[1:] {
		assert.Same(t, results[0], eb)
	}
	assert.Equal(t, 1, bc.Len())
}

func TestBodyCache_CanceledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	hold := enrich.WithStageHook(func(enrich.Stage, *facts.Table) {
		once.Do(func() {
			close(started)
			<-release
		})
	})
	bc := NewBodyCache(testContext(t, "f"), 4, nil, enrich.WithLogger(log.Discard()), hold)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := bc.Get(first, "f")
		firstErr <- err
	}()
	<-started

	type result struct {
		eb  *enrich.EnrichedBody
		err error
	}
	second := make(chan result, 1)
	go func() {
		eb, err := bc.Get(context.Background(), "f")
		second <- result{eb, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled, "the canceled caller returns while the enrichment runs")

	close(release)
	got := <-second
	require.NoError(t, got.err)
	require.NotNil(t, got.eb)
	assert.Equal(t, "f", got.eb.DefID())
	assert.Equal(t, 1, bc.Len())

	_, err := bc.Get(first, "f")
	assert.NoError(t, err, "cached bodies are served without looking at ctx")
}

func TestBodyCache_Invalidate(t *testing.T) {
	bc := NewBodyCache(testContext(t, "f"), 4, nil, enrich.WithLogger(log.Discard()))

	first, err := bc.Get(context.Background(), "f")
	require.NoError(t, err)
	bc.Invalidate("f")
	again, err := bc.Get(context.Background(), "f")
	require.NoError(t, err)

	assert.NotSame(t, first, again)
	assert.NotEqual(t, first.SessionID(), again.SessionID())
	assert.Equal(t, first.Facts().Facts(), again.Facts().Facts())
}

func TestBodyCache_GetAll(t *testing.T) {
	bc := NewBodyCache(testContext(t, "f", "g", "h"), 8, nil, enrich.WithLogger(log.Discard()))

	results, err := bc.GetAll(context.Background(), []string{"h", "missing", "f", "h"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "h", results[0].DefID)
	assert.NoError(t, results[0].Err)
	assert.True(t, errors.Is(results[1].Err, mir.ErrContractViolation))
	assert.Equal(t, "f", results[2].DefID)
	assert.Same(t, results[0].Body, results[3].Body)
	assert.Equal(t, 2, bc.Len())
}

func TestSaveLoadFacts(t *testing.T) {
	bc := NewBodyCache(testContext(t, "f", "g"), 4, nil, enrich.WithLogger(log.Discard()))
	for _, id := range []string{"f", "g"} {
		_, err := bc.Get(context.Background(), id)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, SaveFacts(&buf, bc.Bodies()))

	stored, err := LoadFacts(&buf)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "g", stored[0].DefID, "most recently used first")

	f, _ := bc.Peek("f")
	assert.Equal(t, "f", stored[1].DefID)
	assert.Equal(t, f.SessionID(), stored[1].SessionID)
	assert.Equal(t, f.Facts().Facts(), stored[1].Facts.Facts())
	assert.Equal(t, f.Facts().Count(facts.SubsetBase), stored[1].Facts.Count(facts.SubsetBase))
}

func TestSaveFileLoadFile(t *testing.T) {
	bc := NewBodyCache(testContext(t, "f"), 4, nil, enrich.WithLogger(log.Discard()))
	_, err := bc.Get(context.Background(), "f")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "facts.msgpack")
	require.NoError(t, bc.SaveFile(path))

	stored, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "f", stored[0].DefID)
	assert.False(t, stored[0].SavedAt.IsZero())
}

func TestLoadFileDoesNotExist(t *testing.T) {
	stored, err := LoadFile(filepath.Join(t.TempDir(), "nonexistent.msgpack"))
	require.NoError(t, err, "loading non-existent file should not error")
	assert.Empty(t, stored)
}

func TestLoadFactsRejectsGarbage(t *testing.T) {
	_, err := LoadFacts(bytes.NewReader([]byte{0xc1}))
	assert.Error(t, err)
}
