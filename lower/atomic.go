package lower

import (
	"fmt"

	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/message"
	"github.com/gogpu/memlower/plan"
	"github.com/gogpu/memlower/target"
)

// MapRMW returns the hardware opcode of a read-modify-write function.
// Adding or subtracting the constant one reduces to increment or
// decrement; one reports whether the operand is that constant.
func MapRMW(fun ir.RMWOp, one bool) (message.AtomicOp, error) {
	switch fun {
	case ir.RMWXchg:
		return message.AtomicXchg, nil
	case ir.RMWAdd:
		if one {
			return message.AtomicInc, nil
		}
		return message.AtomicAdd, nil
	case ir.RMWSub:
		if one {
			return message.AtomicDec, nil
		}
		return message.AtomicSub, nil
	case ir.RMWAnd:
		return message.AtomicAnd, nil
	case ir.RMWOr:
		return message.AtomicOr, nil
	case ir.RMWXor:
		return message.AtomicXor, nil
	case ir.RMWMax:
		return message.AtomicSMax, nil
	case ir.RMWMin:
		return message.AtomicSMin, nil
	case ir.RMWUMax:
		return message.AtomicUMax, nil
	case ir.RMWUMin:
		return message.AtomicUMin, nil
	case ir.RMWFAdd:
		return message.AtomicFAdd, nil
	case ir.RMWFSub:
		return message.AtomicFSub, nil
	case ir.RMWFMax:
		return message.AtomicFMax, nil
	case ir.RMWFMin:
		return message.AtomicFMin, nil
	}
	return 0, fmt.Errorf("%w: atomicrmw %s", message.ErrNoSuchAtomicOp, fun)
}

// FencePattern tells which fences surround an atomic operation.
type FencePattern uint8

const (
	FencesNone FencePattern = 0
	FencePre   FencePattern = 1 << 0
	FencePost  FencePattern = 1 << 1
	FencesBoth              = FencePre | FencePost
)

func (p FencePattern) String() string {
	switch p {
	case FencesNone:
		return "none"
	case FencePre:
		return "pre"
	case FencePost:
		return "post"
	}
	return "both"
}

// FencePlan decides the fences around a memory operation. Non-atomic
// operations, private memory and suppressed local memory are never
// fenced. Release semantics need a fence before the access, acquire
// semantics one after it.
func FencePlan(ord ir.Ordering, space ir.AddressSpace, atomicity target.Atomicity, t target.Target) FencePattern {
	if atomicity != target.Atomic || space == ir.SpacePrivate {
		return FencesNone
	}
	if space == ir.SpaceLocal && t.SuppressesLocalMemoryFences() {
		return FencesNone
	}
	var p FencePattern
	switch ord {
	case ir.Release, ir.AcqRel, ir.SeqCst:
		p |= FencePre
	}
	switch ord {
	case ir.Acquire, ir.AcqRel, ir.SeqCst:
		p |= FencePost
	}
	return p
}

// fence emits the fences ordering space at the given side. Generic memory
// is fenced as both global and local memory; a suppressed local fence is
// dropped.
func (l *lowering) fence(b *ir.Builder, scopeName string, side target.FenceSide, space ir.AddressSpace) {
	scope, err := target.ResolveScope(scopeName, side, l.target)
	if err != nil {
		b.Fail(unsupported("%v", err))
		return
	}
	if space != ir.SpaceLocal {
		flush := message.FlushNone
		if scope.WiderThanGroup() {
			flush = message.FlushEvict
		}
		l.emit.Fence(b, message.FenceRequest{Scope: scope, Flush: flush})
	}
	if (space == ir.SpaceLocal || space == ir.SpaceGeneric) && !l.target.SuppressesLocalMemoryFences() {
		l.emit.Fence(b, message.FenceRequest{Local: true, Scope: scope})
	}
}

func lowerFence(l *lowering, b *ir.Builder, inst *ir.Instruction, c Class) {
	scope := inst.Meta.Scope
	switch inst.Meta.Ordering {
	case ir.Acquire:
		l.fence(b, scope, target.SideAcquire, c.Logical)
	case ir.Release:
		l.fence(b, scope, target.SideRelease, c.Logical)
	case ir.AcqRel, ir.SeqCst:
		// System scope has no single two-sided fence.
		hw, err := target.ResolveScope(scope, target.SideRelease, l.target)
		if err != nil {
			b.Fail(unsupported("%v", err))
			return
		}
		l.fence(b, scope, target.SideRelease, c.Logical)
		if hw == target.ScopeSystemRelease {
			l.fence(b, scope, target.SideAcquire, c.Logical)
		}
	default:
		b.Fail(unsupported("fence with %s ordering", inst.Meta.Ordering))
	}
}

// wireScalar returns the integer type an atomic operates on for a value of
// type t: integers as is, floats and pointers as integers of their width.
func wireScalar(b *ir.Builder, t ir.Type) (ir.ScalarType, bool) {
	switch e := t.(type) {
	case ir.ScalarType:
		if e.Bits >= 8 {
			return ir.Int(int(e.Bits)), true
		}
	case ir.PointerType:
		return ir.Int(int(e.Bits)), true
	}
	b.Fail(unsupported("atomic on %v", t))
	return ir.ScalarType{}, false
}

func toWire(b *ir.Builder, v ir.ValueHandle, wire ir.ScalarType) ir.ValueHandle {
	if ir.IsPointer(b.TypeOf(v)) {
		return b.PtrToInt(v)
	}
	return b.Bitcast(v, wire)
}

func fromWire(b *ir.Builder, v ir.ValueHandle, orig ir.Type) ir.ValueHandle {
	if ir.IsPointer(orig) {
		return b.Cast(ir.CastIntToPtr, v, orig)
	}
	return b.Bitcast(v, orig)
}

// atomic emits one atomic message surrounded by the fences its ordering
// requires, and returns the previous value.
func (l *lowering) atomic(b *ir.Builder, inst *ir.Instruction, c Class, op message.AtomicOp, src0, src1 ir.ValueHandle, wire ir.ScalarType) ir.ValueHandle {
	meta := inst.Meta
	scope, err := target.ResolveScope(meta.Scope, target.SideRelease, l.target)
	if err != nil {
		b.Fail(unsupported("%v", err))
		return ir.NoValue
	}
	cache := l.caches(meta)
	if scope.WiderThanGroup() && len(cache) > 0 {
		cache[0] = target.CacheUncached
	}

	pattern := FencePlan(meta.Ordering, c.Logical, c.Atomicity, l.target)
	if pattern&FencePre != 0 {
		l.fence(b, meta.Scope, target.SideRelease, c.Logical)
	}
	old := l.emit.Atomic(b, message.AtomicRequest{
		Request: message.Request{
			Space:   c.Space,
			Pred:    ir.NoValue,
			Addr:    address(b, l.value(c.Ptr), c.Space),
			Payload: ir.NoValue,
			Cache:   cache,
			Align:   plan.NaturalAlign(int(meta.Align), int(wire.Bits)/8),
		},
		Op:   op,
		Src0: src0,
		Src1: src1,
		Type: wire,
	})
	if pattern&FencePost != 0 {
		l.fence(b, meta.Scope, target.SideAcquire, c.Logical)
	}
	return old
}

// lowerAtomicLoad reads atomically as an OR with zero.
func lowerAtomicLoad(l *lowering, b *ir.Builder, inst *ir.Instruction, c Class) {
	typ, ok := l.resultType(b, inst, "atomic load")
	if !ok {
		return
	}
	wire, ok := wireScalar(b, typ)
	if !ok {
		return
	}
	old := l.atomic(b, inst, c, message.AtomicOr, b.Const(wire, 0), ir.NoValue, wire)
	l.replace(inst.Result, fromWire(b, old, typ))
}

// lowerAtomicStore writes atomically as an exchange whose result is unused.
func lowerAtomicStore(l *lowering, b *ir.Builder, inst *ir.Instruction, c Class) {
	op := inst.Op.(*ir.Store)
	v := l.value(op.Value)
	wire, ok := wireScalar(b, b.TypeOf(v))
	if !ok {
		return
	}
	l.atomic(b, inst, c, message.AtomicXchg, toWire(b, v, wire), ir.NoValue, wire)
}

func lowerRMW(l *lowering, b *ir.Builder, inst *ir.Instruction, c Class) {
	op := inst.Op.(*ir.AtomicRMW)
	v := l.value(op.Value)
	typ := b.TypeOf(v)
	hw, err := MapRMW(op.Fun, l.fn.IsConstInt(v, 1))
	if err != nil {
		b.Fail(err)
		return
	}
	wire, ok := wireScalar(b, typ)
	if !ok {
		return
	}
	src := ir.NoValue
	if hw != message.AtomicInc && hw != message.AtomicDec {
		src = toWire(b, v, wire)
	}
	old := l.atomic(b, inst, c, hw, src, ir.NoValue, wire)
	l.replace(inst.Result, fromWire(b, old, typ))
}

// lowerCmpXchg uses the compare-and-swap opcode; success is the equality
// of the previous value and the expected one.
func lowerCmpXchg(l *lowering, b *ir.Builder, inst *ir.Instruction, c Class) {
	op := inst.Op.(*ir.AtomicCmpXchg)
	nv := l.value(op.New)
	typ := b.TypeOf(nv)
	wire, ok := wireScalar(b, typ)
	if !ok {
		return
	}
	expected := toWire(b, l.value(op.Expected), wire)
	old := l.atomic(b, inst, c, message.AtomicCAS, expected, toWire(b, nv, wire), wire)
	l.replace(inst.Result, fromWire(b, old, typ))
	l.replace(op.Success, b.Compare(old, expected))
}
