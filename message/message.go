// Package message emits hardware memory messages as IR intrinsic calls.
//
// Two families implement the same abstract operations: Legacy (oword
// blocks, scaled gather/scatter, dword atomics) and LSC (load/store cache
// messages with explicit per-level cache controls). A target uses exactly
// one family for a whole compilation.
//
// Emitters only append to an ir.Builder; the caller places the built
// instructions where the original operation was.
package message

import (
	"errors"
	"fmt"

	"github.com/gogpu/memlower/bridge"
	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/plan"
	"github.com/gogpu/memlower/target"
)

// Sentinel errors for fatal emission failures. They are always wrapped
// with context; test with errors.Is.
var (
	// ErrUnsupported reports an address space or shape the family cannot
	// encode.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrShapeMismatch reports inconsistent predicate, address and payload
	// widths.
	ErrShapeMismatch = bridge.ErrShapeMismatch
	// ErrNoSuchAtomicOp reports an atomic opcode the family lacks.
	ErrNoSuchAtomicOp = errors.New("no such atomic op")
)

// Request holds the operands shared by every message.
type Request struct {
	Space target.HWAddrSpace
	// Pred is an i1 (blocks, atomics) or per-lane <N x i1> predicate.
	// NoValue enables every lane.
	Pred ir.ValueHandle
	// Addr is a scalar address (blocks, atomics) or per-lane addresses.
	Addr ir.ValueHandle
	// Payload is the data written by stores, or the value of disabled
	// lanes for loads (NoValue for undefined).
	Payload ir.ValueHandle
	Cache   target.CacheControls
	Align   int
}

// Lanes describes the lane layout of a gather or scatter.
type Lanes struct {
	// Bytes is the memory size of one lane.
	Bytes int
	// Split breaks 8-byte lanes into two dword sub-messages.
	Split bool
}

// AtomicOp is a hardware atomic opcode, independent of family encoding.
type AtomicOp uint8

const (
	AtomicInc AtomicOp = iota
	AtomicDec
	AtomicAdd
	AtomicSub
	AtomicXchg
	AtomicAnd
	AtomicOr
	AtomicXor
	AtomicSMin
	AtomicSMax
	AtomicUMin
	AtomicUMax
	AtomicFAdd
	AtomicFSub
	AtomicFMin
	AtomicFMax
	AtomicCAS
)

var atomicNames = [...]string{
	AtomicInc:  "inc",
	AtomicDec:  "dec",
	AtomicAdd:  "add",
	AtomicSub:  "sub",
	AtomicXchg: "xchg",
	AtomicAnd:  "and",
	AtomicOr:   "or",
	AtomicXor:  "xor",
	AtomicSMin: "smin",
	AtomicSMax: "smax",
	AtomicUMin: "umin",
	AtomicUMax: "umax",
	AtomicFAdd: "fadd",
	AtomicFSub: "fsub",
	AtomicFMin: "fmin",
	AtomicFMax: "fmax",
	AtomicCAS:  "cas",
}

func (op AtomicOp) String() string {
	if int(op) < len(atomicNames) {
		return atomicNames[op]
	}
	return fmt.Sprintf("atomic(%d)", op)
}

// Sources returns the number of data operands the opcode takes.
func (op AtomicOp) Sources() int {
	switch op {
	case AtomicInc, AtomicDec:
		return 0
	case AtomicCAS:
		return 2
	}
	return 1
}

// AtomicRequest describes one atomic message.
type AtomicRequest struct {
	Request
	Op AtomicOp
	// Src0 and Src1 are the data operands; CAS takes (expected, new).
	Src0, Src1 ir.ValueHandle
	// Type is the integer wire type of the memory location.
	Type ir.Type
}

// FlushOp selects the cache maintenance of a fence.
type FlushOp uint8

const (
	FlushNone FlushOp = iota
	// FlushEvict writes back and invalidates the nearest cache level.
	FlushEvict
)

func (f FlushOp) String() string {
	if f == FlushEvict {
		return "evict"
	}
	return "none"
}

// FenceRequest describes one fence message.
type FenceRequest struct {
	// Local fences shared local memory instead of global memory.
	Local bool
	Scope target.Scope
	Flush FlushOp
}

// Emitter builds the messages of one family.
type Emitter interface {
	Kind() target.MessageKind
	// BlockLoad loads blk and returns its BlockType value.
	BlockLoad(b *ir.Builder, req Request, blk plan.Block) ir.ValueHandle
	// BlockStore writes req.Payload, a BlockType value, as blk.
	BlockStore(b *ir.Builder, req Request, blk plan.Block)
	// GatherLoad loads one lane per address and returns lane registers
	// (bridge.LaneType).
	GatherLoad(b *ir.Builder, req Request, lanes Lanes) ir.ValueHandle
	// ScatterStore writes lane registers to one address per lane.
	ScatterStore(b *ir.Builder, req Request, lanes Lanes)
	// Atomic performs an atomic and returns the previous value.
	Atomic(b *ir.Builder, req AtomicRequest) ir.ValueHandle
	// Fence orders memory accesses.
	Fence(b *ir.Builder, req FenceRequest)
}

// New returns the emitter of the given family.
func New(kind target.MessageKind, t target.Target) Emitter {
	if kind == target.LSC {
		return &LSC{target: t}
	}
	return &Legacy{target: t}
}

// BlockType returns the register type moved by a block message.
func BlockType(blk plan.Block) ir.Type {
	if blk.ElemBits == 128 {
		return ir.Vec(blk.Count*4, ir.I32)
	}
	return ir.Vec(blk.Count, ir.Int(blk.ElemBits))
}

// predicate returns req.Pred or an all-true predicate of the given width.
func predicate(b *ir.Builder, pred ir.ValueHandle, lanes int) ir.ValueHandle {
	if pred != ir.NoValue {
		return pred
	}
	if lanes == 1 {
		return b.Const(ir.Bool, 1)
	}
	return b.Const(ir.Vec(lanes, ir.Bool), 1)
}

// checkLanes verifies that the predicate, addresses and payload agree on
// the number of lanes.
func checkLanes(b *ir.Builder, req Request, lanes int) bool {
	check := func(h ir.ValueHandle, what string) bool {
		if h == ir.NoValue {
			return true
		}
		if got := ir.Lanes(b.TypeOf(h)); got != lanes {
			b.Fail(fmt.Errorf("%w: %s has %d lanes, message has %d", ErrShapeMismatch, what, got, lanes))
			return false
		}
		return true
	}
	return check(req.Pred, "predicate") && check(req.Addr, "address") && check(req.Payload, "payload")
}

// checkBlock verifies that a block request carries a scalar address and a
// block element size the family can encode.
func checkBlock(b *ir.Builder, req Request, blk plan.Block, legal ...int) bool {
	if req.Addr == ir.NoValue || ir.Lanes(b.TypeOf(req.Addr)) != 1 {
		b.Fail(fmt.Errorf("%w: block message needs a scalar address", ErrShapeMismatch))
		return false
	}
	for _, bits := range legal {
		if blk.ElemBits == bits {
			return true
		}
	}
	b.Fail(fmt.Errorf("%w: block element size %d bits", ErrUnsupported, blk.ElemBits))
	return false
}

// checkAddr rejects hardware address spaces outside {A32, A64, SLM} and
// addresses whose width does not match the space.
func checkAddr(b *ir.Builder, req Request) bool {
	switch req.Space {
	case target.A32, target.A64, target.SLM:
	default:
		b.Fail(fmt.Errorf("%w: address space %s", ErrUnsupported, req.Space))
		return false
	}
	if req.Addr == ir.NoValue {
		b.Fail(fmt.Errorf("%w: missing address", ErrShapeMismatch))
		return false
	}
	if got := ir.ElemBits(b.TypeOf(req.Addr)); got != req.Space.AddrBits() {
		b.Fail(fmt.Errorf("%w: %d-bit address in %s", ErrShapeMismatch, got, req.Space))
		return false
	}
	return true
}

// passthru returns req.Payload or an undefined value of typ.
func passthru(b *ir.Builder, payload ir.ValueHandle, typ ir.Type) ir.ValueHandle {
	if payload != ir.NoValue {
		return payload
	}
	return b.Undef(typ)
}

// splitAddrs returns the low and high dword addresses of 8-byte lanes.
func splitAddrs(b *ir.Builder, addrs ir.ValueHandle) (lo, hi ir.ValueHandle) {
	t := b.TypeOf(addrs)
	four := b.Const(t, 4)
	return addrs, b.Add(addrs, four)
}

// evenOdd returns shuffle indices selecting even and odd lanes of a
// 2n-lane vector.
func evenOdd(n int) (even, odd []int) {
	even = make([]int, n)
	odd = make([]int, n)
	for i := 0; i < n; i++ {
		even[i] = 2 * i
		odd[i] = 2*i + 1
	}
	return even, odd
}

// interleave returns indices zipping two n-lane halves of a concatenation.
func interleave(n int) []int {
	idx := make([]int, 2*n)
	for i := 0; i < n; i++ {
		idx[2*i] = i
		idx[2*i+1] = n + i
	}
	return idx
}

// atomicType checks that an atomic operates on an integer scalar.
func atomicType(b *ir.Builder, t ir.Type) (ir.ScalarType, bool) {
	s, ok := t.(ir.ScalarType)
	if !ok || s.Kind != ir.ScalarInt {
		b.Fail(fmt.Errorf("%w: atomic on %v", ErrUnsupported, t))
		return ir.ScalarType{}, false
	}
	return s, true
}

func meta(align int) ir.Meta {
	return ir.Meta{Align: uint32(max(align, 0))}
}
