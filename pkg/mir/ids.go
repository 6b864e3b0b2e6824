// Package mir defines the control-flow body model consumed by the region
// enrichment engine: locals, places, region-carrying types, statements,
// terminators and the read-only ambient context shared by all procedures.
package mir

import (
	"errors"
	"fmt"
)

// ErrContractViolation marks malformed input: a body or signature that an
// earlier compilation phase should never have produced. It aborts the
// current enrichment.
var ErrContractViolation = errors.New("contract violation")

// ErrUnknownProcedure is returned when a procedure id cannot be resolved.
var ErrUnknownProcedure = errors.New("unknown procedure")

// Contractf wraps ErrContractViolation with a formatted message.
func Contractf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...))
}

// Local identifies a local variable of a body. Local 0 is the return place,
// locals 1..ArgCount are the arguments.
type Local uint32

// ReturnPlace is the local holding the return value.
const ReturnPlace Local = 0

func (l Local) String() string { return fmt.Sprintf("_%d", uint32(l)) }

// BasicBlock identifies a block of a body by its index.
type BasicBlock uint32

// StartBlock is the entry block of every body.
const StartBlock BasicBlock = 0

func (b BasicBlock) String() string { return fmt.Sprintf("bb%d", uint32(b)) }

// RegionVid is an inference region variable.
type RegionVid uint32

func (r RegionVid) String() string { return fmt.Sprintf("'?%d", uint32(r)) }

// Location is a statement or terminator occurrence. Statement equal to the
// number of statements of the block denotes the terminator.
type Location struct {
	Block     BasicBlock `json:"block" yaml:"block" msgpack:"block"`
	Statement int        `json:"statement" yaml:"statement" msgpack:"statement"`
}

// StartLocation is the first location of a body.
var StartLocation = Location{Block: StartBlock}

func (l Location) String() string {
	return fmt.Sprintf("%s[%d]", l.Block, l.Statement)
}

// Successor returns the location following l inside the same block.
func (l Location) Successor() Location {
	return Location{Block: l.Block, Statement: l.Statement + 1}
}
