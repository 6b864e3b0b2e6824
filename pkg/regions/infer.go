// Package regions holds the per-procedure region inference state: the
// inference context that allocates region variables, body renumbering, the
// universal region catalog with its known-outlives relation, and the
// append-only outlives and liveness constraint sets.
package regions

import (
	"github.com/google/uuid"

	"github.com/l3aro/go-region-facts/pkg/mir"
)

// RegionOrigin records why a region variable was allocated.
type RegionOrigin uint8

const (
	// OriginUniversal marks a region of the catalog: a lifetime parameter, an
	// anonymous signature region, 'static or the body scope.
	OriginUniversal RegionOrigin = iota
	// OriginExistential marks a region introduced by renumbering or by
	// instantiating a callee signature.
	OriginExistential
)

func (o RegionOrigin) String() string {
	if o == OriginUniversal {
		return "universal"
	}
	return "existential"
}

// InferCtxt is the inference session of one enrichment. It owns the unified
// region counter; region variables it hands out are meaningless outside it.
// An InferCtxt is not safe for concurrent use.
type InferCtxt struct {
	id      uuid.UUID
	origins []RegionOrigin
	tainted bool
}

// NewInferCtxt starts a fresh inference session.
func NewInferCtxt() *InferCtxt {
	return &InferCtxt{id: uuid.New()}
}

// SessionID identifies the session in logs.
func (c *InferCtxt) SessionID() string { return c.id.String() }

// NextRegionVar allocates the next region variable.
func (c *InferCtxt) NextRegionVar(origin RegionOrigin) mir.RegionVid {
	c.origins = append(c.origins, origin)
	return mir.RegionVid(len(c.origins) - 1)
}

// FreshRegion allocates an existential region variable.
func (c *InferCtxt) FreshRegion() mir.Region {
	return mir.Var(c.NextRegionVar(OriginExistential))
}

// NumRegionVars returns how many region variables have been allocated.
func (c *InferCtxt) NumRegionVars() int { return len(c.origins) }

// Origin returns the origin of vid and whether vid was allocated here.
func (c *InferCtxt) Origin(vid mir.RegionVid) (RegionOrigin, bool) {
	if int(vid) >= len(c.origins) {
		return 0, false
	}
	return c.origins[vid], true
}

// SetTaintedByErrors marks the session as analysing an erroneous procedure.
func (c *InferCtxt) SetTaintedByErrors() { c.tainted = true }

// TaintedByErrors reports whether SetTaintedByErrors was called.
func (c *InferCtxt) TaintedByErrors() bool { return c.tainted }
