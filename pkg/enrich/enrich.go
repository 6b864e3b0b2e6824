// Package enrich runs the region enrichment pipeline on one procedure: it
// renumbers a copy of the body with fresh region variables, builds the
// universal region catalog, gathers moves and loans, solves initialization,
// type-checks the body into outlives constraints and liveness, and emits the
// relational facts a borrow-checking solver consumes.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/l3aro/go-region-facts/internal/log"
	"github.com/l3aro/go-region-facts/internal/metrics"
	"github.com/l3aro/go-region-facts/pkg/dataflow"
	"github.com/l3aro/go-region-facts/pkg/facts"
	"github.com/l3aro/go-region-facts/pkg/mir"
	"github.com/l3aro/go-region-facts/pkg/regions"
	"github.com/l3aro/go-region-facts/pkg/typeck"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageUniversalRegions Stage = "universal_regions"
	StageRenumber         Stage = "renumber"
	StageRelations        Stage = "relations"
	StageMovePaths        Stage = "move_paths"
	StageBorrows          Stage = "borrows"
	StageDataflow         Stage = "dataflow"
	StageTypeCheck        Stage = "typeck"
	StageConstraints      Stage = "constraint_generation"
	StageInvalidations    Stage = "invalidations"
	StageFacts            Stage = "facts"
)

// Stages lists the stages in execution order.
var Stages = []Stage{
	StageUniversalRegions,
	StageRenumber,
	StageRelations,
	StageMovePaths,
	StageBorrows,
	StageDataflow,
	StageTypeCheck,
	StageConstraints,
	StageInvalidations,
	StageFacts,
}

// StageHook observes the fact table after a stage. The table keeps growing
// after the hook returns and must not be modified. Batch may call a hook from
// several goroutines at once.
type StageHook func(Stage, *facts.Table)

type options struct {
	logger    log.Logger
	metrics   *metrics.Metrics
	hook      StageHook
	expandAll bool
}

// Option configures an enrichment.
type Option func(*options)

// WithLogger sets the logger. Stage timings go to debug, move errors and
// taint to warn.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records outcomes and stage durations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithStageHook calls h after every stage.
func WithStageHook(h StageHook) Option {
	return func(o *options) {
		o.hook = h
	}
}

// WithExpandAllLocations controls whether constraints holding everywhere are
// repeated at every point in subset_base (the default) or emitted once at the
// entry point.
func WithExpandAllLocations(expand bool) Option {
	return func(o *options) {
		o.expandAll = expand
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: log.Default(), expandAll: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enrich runs the pipeline on the body of defID. tcx is only read; the
// procedure's body is copied before it is renumbered. Analysis findings such
// as illegal moves or an upstream type error are part of the result; a
// malformed input is reported as an error wrapping mir.ErrContractViolation.
func Enrich(ctx context.Context, tcx *mir.Context, defID string, opts ...Option) (*EnrichedBody, error) {
	o := newOptions(opts)

	eb, err := enrich(ctx, tcx, defID, o)

	result := metrics.ResultOK
	n := 0
	switch {
	case errors.Is(err, mir.ErrContractViolation):
		result = metrics.ResultContract
	case err != nil:
		result = metrics.ResultError
	case eb.tainted:
		result = metrics.ResultTainted
	}
	if eb != nil {
		n = eb.facts.Len()
	}
	o.metrics.ObserveEnrichment(result, n)

	if err != nil {
		return nil, fmt.Errorf("enrich %s: %w", defID, err)
	}
	return eb, nil
}

// pipeline carries the state of one enrichment between stages.
type pipeline struct {
	ctx   context.Context
	opts  *options
	defID string
	facts *facts.Table
}

func (p *pipeline) run(s Stage, f func() error) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	if err := f(); err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	d := time.Since(start)

	p.opts.logger.Debug("stage done", "def", p.defID, "stage", s, "duration", d, "facts", p.facts.Len())
	p.opts.metrics.ObserveStage(string(s), d)
	if p.opts.hook != nil {
		p.opts.hook(s, p.facts)
	}
	return nil
}

func enrich(ctx context.Context, tcx *mir.Context, defID string, o *options) (*EnrichedBody, error) {
	proc, err := tcx.Procedure(defID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mir.ErrContractViolation, err)
	}
	if proc.Body == nil {
		return nil, mir.Contractf("procedure %s has no body", defID)
	}
	if err := proc.Body.Validate(); err != nil {
		return nil, err
	}

	p := &pipeline{ctx: ctx, opts: o, defID: defID, facts: facts.NewTable()}
	body := proc.Body.Clone()
	infcx := regions.NewInferCtxt()
	cs := &regions.ConstraintSet{}

	var (
		ur         *regions.UniversalRegions
		rel        *regions.UniversalRegionRelations
		lt         *mir.LocationTable
		md         *dataflow.MoveData
		moveErrors []dataflow.MoveError
		borrows    *typeck.BorrowSet
		flow       *dataflow.Flow
		env        *typeck.Env
	)

	// Universal regions take the first variables, ahead of the body's own.
	if err := p.run(StageUniversalRegions, func() (err error) {
		ur, err = regions.NewUniversalRegions(infcx, tcx, proc)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.run(StageRenumber, func() error {
		regions.Renumber(infcx, body)
		lt = mir.NewLocationTable(body)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.run(StageRelations, func() (err error) {
		if rel, err = regions.CreateRelations(ur, proc.Signature, cs); err != nil {
			return err
		}
		typeck.EmitUniversalFacts(ur, rel, p.facts)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.run(StageMovePaths, func() error {
		md, moveErrors = dataflow.GatherMoves(body)
		for _, me := range moveErrors {
			o.logger.Warn("illegal move", "def", defID, "place", me.Place, "location", me.Location, "kind", me.Kind)
		}
		o.metrics.AddMoveErrors(len(moveErrors))
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.run(StageBorrows, func() (err error) {
		borrows, err = typeck.BuildBorrowSet(tcx, body, body.Kind.IsFnOrClosure())
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.run(StageDataflow, func() error {
		flow = dataflow.ComputeFlow(body, md)
		return nil
	}); err != nil {
		return nil, err
	}

	env = &typeck.Env{
		Tcx:         tcx,
		Infcx:       infcx,
		Proc:        proc,
		Body:        body,
		Universal:   ur,
		Relations:   rel,
		Table:       lt,
		Borrows:     borrows,
		Flow:        flow,
		Upvars:      typeck.ResolveUpvars(proc.Signature, ur),
		Constraints: cs,
		Liveness:    regions.NewLivenessValues(lt),
		Facts:       p.facts,
	}

	if err := p.run(StageTypeCheck, func() error {
		if err := typeck.TypeCheck(env); err != nil {
			return err
		}
		if infcx.TaintedByErrors() {
			o.logger.Warn("procedure tainted by earlier type errors", "def", defID)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.run(StageConstraints, func() error {
		typeck.GenerateConstraints(env)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.run(StageInvalidations, func() error {
		typeck.GenerateInvalidations(env)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.run(StageFacts, func() error {
		typeck.EmitSubsetBase(lt, cs, p.facts, o.expandAll)
		typeck.EmitMoveFacts(body, lt, md, moveErrors, p.facts)
		typeck.EmitOriginLiveAt(lt, env.Liveness, p.facts)
		typeck.EmitPlaceholders(ur, borrows, p.facts)
		return nil
	}); err != nil {
		return nil, err
	}

	return newEnrichedBody(defID, infcx, env, moveErrors), nil
}
