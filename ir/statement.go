package ir

import (
	"fmt"
)

// Instruction represents one instruction of a function body.
// Instructions execute in body order; Result is NoValue for instructions
// that do not produce a value.
type Instruction struct {
	Op     Op
	Result ValueHandle
	Meta   Meta
}

// Meta carries optional per-instruction metadata.
type Meta struct {
	// Align is the explicit byte alignment of the access, 0 for ABI default.
	Align uint32
	// NonTemporal marks streaming accesses that should bypass caches.
	NonTemporal bool
	// Ordering is the atomic ordering, NotAtomic for plain accesses.
	Ordering Ordering
	// Scope is the named synchronization scope ("" for the default).
	Scope string
}

// Op represents the operation performed by an instruction.
type Op interface {
	opKind()
	// Operands returns pointers to every operand slot, in a fixed order.
	// Optional operands holding NoValue are included.
	Operands() []*ValueHandle
}

// Load reads a value through a pointer.
// With a non-NotAtomic ordering it is an atomic load.
type Load struct {
	Ptr ValueHandle
}

func (*Load) opKind() {}

// Operands implements Op.
func (o *Load) Operands() []*ValueHandle { return []*ValueHandle{&o.Ptr} }

// Store writes Value through a pointer.
// With a non-NotAtomic ordering it is an atomic store.
type Store struct {
	Ptr   ValueHandle
	Value ValueHandle
}

func (*Store) opKind() {}

// Operands implements Op.
func (o *Store) Operands() []*ValueHandle { return []*ValueHandle{&o.Ptr, &o.Value} }

// AtomicRMW atomically applies Fun to the pointee and Value.
// The result is the previous value.
type AtomicRMW struct {
	Fun   RMWOp
	Ptr   ValueHandle
	Value ValueHandle
}

func (*AtomicRMW) opKind() {}

// Operands implements Op.
func (o *AtomicRMW) Operands() []*ValueHandle { return []*ValueHandle{&o.Ptr, &o.Value} }

// AtomicCmpXchg atomically replaces the pointee with New if it equals
// Expected. The instruction result is the previous value and Success is an
// i1 result set when the exchange happened.
type AtomicCmpXchg struct {
	Ptr      ValueHandle
	Expected ValueHandle
	New      ValueHandle
	Success  ValueHandle
}

func (*AtomicCmpXchg) opKind() {}

// Operands implements Op. Success is a result, not an operand.
func (o *AtomicCmpXchg) Operands() []*ValueHandle {
	return []*ValueHandle{&o.Ptr, &o.Expected, &o.New}
}

// Fence orders memory accesses to Space according to the instruction's
// ordering and scope. SpaceGeneric fences both global and local memory.
type Fence struct {
	Space AddressSpace
}

func (*Fence) opKind() {}

// Operands implements Op.
func (*Fence) Operands() []*ValueHandle { return nil }

// Gather loads one element per lane from a vector of pointers.
// Lanes with a false Mask bit take their value from Passthru. Mask and
// Passthru are optional.
type Gather struct {
	Ptrs     ValueHandle
	Mask     ValueHandle
	Passthru ValueHandle
}

func (*Gather) opKind() {}

// Operands implements Op.
func (o *Gather) Operands() []*ValueHandle {
	return []*ValueHandle{&o.Ptrs, &o.Mask, &o.Passthru}
}

// Scatter stores one element per enabled lane through a vector of pointers.
type Scatter struct {
	Value ValueHandle
	Ptrs  ValueHandle
	Mask  ValueHandle
}

func (*Scatter) opKind() {}

// Operands implements Op.
func (o *Scatter) Operands() []*ValueHandle {
	return []*ValueHandle{&o.Value, &o.Ptrs, &o.Mask}
}

// CastKind selects a conversion.
type CastKind uint8

const (
	CastBitcast  CastKind = iota // same bit size reinterpretation, any shape
	CastZExt                     // per-lane zero extension
	CastTrunc                    // per-lane truncation
	CastPtrToInt                 // per-lane pointer to integer of pointer width
	CastIntToPtr                 // per-lane integer to pointer
)

var castNames = [...]string{
	CastBitcast:  "bitcast",
	CastZExt:     "zext",
	CastTrunc:    "trunc",
	CastPtrToInt: "ptrtoint",
	CastIntToPtr: "inttoptr",
}

func (k CastKind) String() string { return castNames[k] }

// Cast converts X to the instruction's result type.
type Cast struct {
	Kind CastKind
	X    ValueHandle
}

func (*Cast) opKind() {}

// Operands implements Op.
func (o *Cast) Operands() []*ValueHandle { return []*ValueHandle{&o.X} }

// BinaryKind selects an integer arithmetic operation.
type BinaryKind uint8

const (
	BinaryAdd BinaryKind = iota
	BinaryMul
)

func (k BinaryKind) String() string {
	if k == BinaryMul {
		return "mul"
	}
	return "add"
}

// Binary applies an integer operation lane-wise.
type Binary struct {
	Kind BinaryKind
	X, Y ValueHandle
}

func (*Binary) opKind() {}

// Operands implements Op.
func (o *Binary) Operands() []*ValueHandle { return []*ValueHandle{&o.X, &o.Y} }

// Compare tests X and Y for bitwise equality lane-wise, yielding i1 lanes.
type Compare struct {
	X, Y ValueHandle
}

func (*Compare) opKind() {}

// Operands implements Op.
func (o *Compare) Operands() []*ValueHandle { return []*ValueHandle{&o.X, &o.Y} }

// Select picks lanes of X where Cond is set and of Y otherwise.
type Select struct {
	Cond, X, Y ValueHandle
}

func (*Select) opKind() {}

// Operands implements Op.
func (o *Select) Operands() []*ValueHandle { return []*ValueHandle{&o.Cond, &o.X, &o.Y} }

// Shuffle builds a vector from lanes of X selected by Indices.
// A single index produces a one-lane vector.
type Shuffle struct {
	X       ValueHandle
	Indices []int
}

func (*Shuffle) opKind() {}

// Operands implements Op.
func (o *Shuffle) Operands() []*ValueHandle { return []*ValueHandle{&o.X} }

// Concat joins vectors of the same element type end to end.
type Concat struct {
	Parts []ValueHandle
}

func (*Concat) opKind() {}

// Operands implements Op.
func (o *Concat) Operands() []*ValueHandle {
	ops := make([]*ValueHandle, len(o.Parts))
	for i := range o.Parts {
		ops[i] = &o.Parts[i]
	}
	return ops
}

// Splat broadcasts a scalar to every lane of the result vector.
type Splat struct {
	X ValueHandle
}

func (*Splat) opKind() {}

// Operands implements Op.
func (o *Splat) Operands() []*ValueHandle { return []*ValueHandle{&o.X} }

// PackMask packs an i1 vector into an integer container, lane i in bit i.
// Bits above the lane count are zero.
type PackMask struct {
	X ValueHandle
}

func (*PackMask) opKind() {}

// Operands implements Op.
func (o *PackMask) Operands() []*ValueHandle { return []*ValueHandle{&o.X} }

// UnpackMask is the inverse of PackMask; the result type gives the lane count.
type UnpackMask struct {
	X ValueHandle
}

func (*UnpackMask) opKind() {}

// Operands implements Op.
func (o *UnpackMask) Operands() []*ValueHandle { return []*ValueHandle{&o.X} }

// Return returns from the function, optionally with a value.
type Return struct {
	Value ValueHandle
}

func (*Return) opKind() {}

// Operands implements Op.
func (o *Return) Operands() []*ValueHandle { return []*ValueHandle{&o.Value} }

// Intrinsic calls a target primitive. Imms are compile-time immediates
// (message tags); Args are runtime operands.
type Intrinsic struct {
	Name string
	Imms []int64
	Args []ValueHandle
}

func (*Intrinsic) opKind() {}

// Operands implements Op.
func (o *Intrinsic) Operands() []*ValueHandle {
	ops := make([]*ValueHandle, len(o.Args))
	for i := range o.Args {
		ops[i] = &o.Args[i]
	}
	return ops
}

// RMWOp represents read-modify-write functions.
type RMWOp uint8

const (
	RMWXchg RMWOp = iota
	RMWAdd
	RMWSub
	RMWAnd
	RMWNand
	RMWOr
	RMWXor
	RMWMax
	RMWMin
	RMWUMax
	RMWUMin
	RMWFAdd
	RMWFSub
	RMWFMax
	RMWFMin
	RMWUIncWrap
	RMWUDecWrap
)

var rmwNames = [...]string{
	RMWXchg:     "xchg",
	RMWAdd:      "add",
	RMWSub:      "sub",
	RMWAnd:      "and",
	RMWNand:     "nand",
	RMWOr:       "or",
	RMWXor:      "xor",
	RMWMax:      "max",
	RMWMin:      "min",
	RMWUMax:     "umax",
	RMWUMin:     "umin",
	RMWFAdd:     "fadd",
	RMWFSub:     "fsub",
	RMWFMax:     "fmax",
	RMWFMin:     "fmin",
	RMWUIncWrap: "uinc_wrap",
	RMWUDecWrap: "udec_wrap",
}

func (op RMWOp) String() string {
	if int(op) < len(rmwNames) {
		return rmwNames[op]
	}
	return fmt.Sprintf("rmw(%d)", op)
}

// ParseRMWOp parses a read-modify-write function name.
func ParseRMWOp(s string) (RMWOp, error) {
	for i, name := range rmwNames {
		if name == s {
			return RMWOp(i), nil
		}
	}
	return RMWXchg, fmt.Errorf("unknown atomicrmw function %q", s)
}

// IsMemoryOp reports whether op is one of the memory operations rewritten
// by lowering.
func IsMemoryOp(op Op) bool {
	switch op.(type) {
	case *Load, *Store, *AtomicRMW, *AtomicCmpXchg, *Fence, *Gather, *Scatter:
		return true
	}
	return false
}
