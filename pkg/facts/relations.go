// Package facts holds the relational fact table emitted for one enriched body.
// Every fact is a tuple of dense indices: regions (origins), loans, rich
// points, locals (variables) and move paths.
package facts

// Relation names a fact relation.
type Relation string

const (
	LoanIssuedAt           Relation = "loan_issued_at"            // (origin, loan, point)
	UniversalRegion        Relation = "universal_region"          // (origin)
	CfgEdge                Relation = "cfg_edge"                  // (point, point)
	LoanKilledAt           Relation = "loan_killed_at"            // (loan, point)
	SubsetBase             Relation = "subset_base"               // (origin, origin, point)
	LoanInvalidatedAt      Relation = "loan_invalidated_at"       // (point, loan)
	VarUsedAt              Relation = "var_used_at"               // (variable, point)
	VarDefinedAt           Relation = "var_defined_at"            // (variable, point)
	VarDroppedAt           Relation = "var_dropped_at"            // (variable, point)
	UseOfVarDerefsOrigin   Relation = "use_of_var_derefs_origin"  // (variable, origin)
	DropOfVarDerefsOrigin  Relation = "drop_of_var_derefs_origin" // (variable, origin)
	ChildPath              Relation = "child_path"                // (path, parent path)
	PathIsVar              Relation = "path_is_var"               // (path, variable)
	PathAssignedAtBase     Relation = "path_assigned_at_base"     // (path, point)
	PathMovedAtBase        Relation = "path_moved_at_base"        // (path, point)
	PathAccessedAtBase     Relation = "path_accessed_at_base"     // (path, point)
	KnownPlaceholderSubset Relation = "known_placeholder_subset"  // (origin, origin)
	Placeholder            Relation = "placeholder"               // (origin, loan)
	OriginLiveAt           Relation = "origin_live_at"            // (origin, point)
	MoveErrorAt            Relation = "move_error"                // (variable, point, kind)
)

// RelationInfo describes the shape of a relation.
type RelationInfo struct {
	Arity       int
	Description string
}

// Schema lists every relation the table accepts.
var Schema = map[Relation]RelationInfo{
	LoanIssuedAt:           {3, "loan created by a borrow, with the origin of the reference"},
	UniversalRegion:        {1, "origin free in the body"},
	CfgEdge:                {2, "control may flow between the points"},
	LoanKilledAt:           {2, "loan's borrowed place is overwritten"},
	SubsetBase:             {3, "first origin outlives the second at the point"},
	LoanInvalidatedAt:      {2, "an access at the point conflicts with the loan"},
	VarUsedAt:              {2, "local is read at the point"},
	VarDefinedAt:           {2, "local is overwritten or its storage ends at the point"},
	VarDroppedAt:           {2, "local is dropped at the point"},
	UseOfVarDerefsOrigin:   {2, "using the local may dereference the origin"},
	DropOfVarDerefsOrigin:  {2, "dropping the local may dereference the origin"},
	ChildPath:              {2, "move path is a direct child of the other"},
	PathIsVar:              {2, "move path is the root of the local"},
	PathAssignedAtBase:     {2, "move path is initialized at the point"},
	PathMovedAtBase:        {2, "move path is moved out at the point"},
	PathAccessedAtBase:     {2, "move path is read at the point"},
	KnownPlaceholderSubset: {2, "universal origin known to outlive the other"},
	Placeholder:            {2, "universal origin with its placeholder loan"},
	OriginLiveAt:           {2, "origin must be live at the point"},
	MoveErrorAt:            {3, "illegal move out of a place of the local"},
}

// Order is the canonical relation order used by Facts and the encoders.
var Order = []Relation{
	LoanIssuedAt,
	UniversalRegion,
	CfgEdge,
	LoanKilledAt,
	SubsetBase,
	LoanInvalidatedAt,
	VarUsedAt,
	VarDefinedAt,
	VarDroppedAt,
	UseOfVarDerefsOrigin,
	DropOfVarDerefsOrigin,
	ChildPath,
	PathIsVar,
	PathAssignedAtBase,
	PathMovedAtBase,
	PathAccessedAtBase,
	KnownPlaceholderSubset,
	Placeholder,
	OriginLiveAt,
	MoveErrorAt,
}
