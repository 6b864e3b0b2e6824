package enrich

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-region-facts/pkg/mir"
)

// Result is the outcome of enriching one procedure of a batch.
type Result struct {
	DefID string
	Body  *EnrichedBody
	Err   error
}

// Batch enriches ids in parallel, at most workers at a time (unbounded when
// workers <= 0). Each enrichment owns its inference session; tcx is shared
// read-only. A failing procedure does not stop the others. Results are in
// the order of ids; the returned error is only set when ctx ends early.
func Batch(ctx context.Context, tcx *mir.Context, ids []string, workers int, opts ...Option) ([]Result, error) {
	results := make([]Result, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, id := range ids {
		g.Go(func() error {
			eb, err := Enrich(gCtx, tcx, id, opts...)
			results[i] = Result{DefID: id, Body: eb, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}
