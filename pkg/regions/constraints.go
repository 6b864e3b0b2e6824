package regions

import (
	"fmt"
	"sort"

	"github.com/l3aro/go-region-facts/pkg/mir"
)

// Locations says where an outlives constraint must hold.
type Locations struct {
	All bool
	At  mir.Location
}

// AllLocations is the span of constraints that hold everywhere in the body.
func AllLocations() Locations { return Locations{All: true} }

// Single returns the span of a constraint arising at loc.
func Single(loc mir.Location) Locations { return Locations{At: loc} }

func (l Locations) String() string {
	if l.All {
		return "All"
	}
	return l.At.String()
}

// ConstraintCategory names the source of a constraint for diagnostics.
type ConstraintCategory string

const (
	CategoryUniversal   ConstraintCategory = "universal"
	CategoryBoring      ConstraintCategory = "boring"
	CategoryAssignment  ConstraintCategory = "assignment"
	CategoryReborrow    ConstraintCategory = "reborrow"
	CategoryCallArg     ConstraintCategory = "call_argument"
	CategoryReturn      ConstraintCategory = "return"
	CategoryCallBound   ConstraintCategory = "call_bound"
	CategoryUpvar       ConstraintCategory = "closure_upvar"
	CategoryEntryInputs ConstraintCategory = "entry_inputs"
)

// OutlivesConstraint records Sup: Sub, that is Sup must be valid at least as
// long as Sub, as required at Locations.
type OutlivesConstraint struct {
	Sup       mir.RegionVid
	Sub       mir.RegionVid
	Locations Locations
	Category  ConstraintCategory
}

func (c OutlivesConstraint) String() string {
	return fmt.Sprintf("(%s: %s) due to %s", c.Sup, c.Sub, c.Locations)
}

// ConstraintSet accumulates outlives constraints. It only grows.
type ConstraintSet struct {
	constraints []OutlivesConstraint
}

// Push appends c. A region trivially outlives itself, so Sup == Sub is dropped.
func (cs *ConstraintSet) Push(c OutlivesConstraint) {
	if c.Sup == c.Sub {
		return
	}
	cs.constraints = append(cs.constraints, c)
}

// Len returns the number of recorded constraints.
func (cs *ConstraintSet) Len() int { return len(cs.constraints) }

// Constraints returns the constraints in the order they were pushed.
func (cs *ConstraintSet) Constraints() []OutlivesConstraint {
	return append([]OutlivesConstraint(nil), cs.constraints...)
}

// LivenessValues records, per region, the locations at which the region must
// be live. Elements are only ever added.
type LivenessValues struct {
	table  *mir.LocationTable
	points map[mir.RegionVid]map[mir.LocationIndex]struct{}
}

// NewLivenessValues returns an empty liveness map over the locations of table.
func NewLivenessValues(table *mir.LocationTable) *LivenessValues {
	return &LivenessValues{
		table:  table,
		points: make(map[mir.RegionVid]map[mir.LocationIndex]struct{}),
	}
}

// AddElement records that r is live at loc. It reports whether this was new.
func (lv *LivenessValues) AddElement(r mir.RegionVid, loc mir.Location) bool {
	set, ok := lv.points[r]
	if !ok {
		set = make(map[mir.LocationIndex]struct{})
		lv.points[r] = set
	}
	idx := lv.table.Index(loc)
	if _, seen := set[idx]; seen {
		return false
	}
	set[idx] = struct{}{}
	return true
}

// AddAllPoints records that r is live everywhere.
func (lv *LivenessValues) AddAllPoints(r mir.RegionVid) {
	for _, loc := range lv.table.Locations() {
		lv.AddElement(r, loc)
	}
}

// Contains reports whether r is live at loc.
func (lv *LivenessValues) Contains(r mir.RegionVid, loc mir.Location) bool {
	idx, ok := lv.table.Lookup(loc)
	if !ok {
		return false
	}
	_, live := lv.points[r][idx]
	return live
}

// Locations returns the locations at which r is live, in location order.
func (lv *LivenessValues) Locations(r mir.RegionVid) []mir.Location {
	set := lv.points[r]
	idxs := make([]mir.LocationIndex, 0, len(set))
	for idx := range set {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	out := make([]mir.Location, len(idxs))
	for i, idx := range idxs {
		out[i] = lv.table.Location(idx)
	}
	return out
}

// Regions returns the regions with at least one live location, sorted.
func (lv *LivenessValues) Regions() []mir.RegionVid {
	out := make([]mir.RegionVid, 0, len(lv.points))
	for r, set := range lv.points {
		if len(set) > 0 {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the total number of (region, location) elements.
func (lv *LivenessValues) Len() int {
	n := 0
	for _, set := range lv.points {
		n += len(set)
	}
	return n
}
