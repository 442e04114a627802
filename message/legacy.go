package message

import (
	"fmt"

	"github.com/gogpu/memlower/bridge"
	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/plan"
	"github.com/gogpu/memlower/target"
)

// Binding table indices of the legacy surfaces.
const (
	SLMIndex       = 254
	StatelessIndex = 255
)

// Legacy fence mask bits.
const (
	FenceCommit     = 1 << 0
	FenceEvictL1    = 1 << 1
	FenceFlushL3    = 1 << 2
	FenceLocal      = 1 << 3
	FenceGlobalWide = 1 << 4
)

// legacyAtomics encodes atomic opcodes. Legacy messages have no floating
// point add or subtract.
var legacyAtomics = map[AtomicOp]int64{
	AtomicAnd:  1,
	AtomicOr:   2,
	AtomicXor:  3,
	AtomicXchg: 4,
	AtomicInc:  5,
	AtomicDec:  6,
	AtomicAdd:  7,
	AtomicSub:  8,
	AtomicSMax: 10,
	AtomicSMin: 11,
	AtomicUMax: 12,
	AtomicUMin: 13,
	AtomicCAS:  14,
	AtomicFMax: 17,
	AtomicFMin: 18,
}

// Legacy emits oword block, scaled gather/scatter and dword atomic
// messages.
//
// A32 and SLM messages address a binding table surface with 32-bit byte
// offsets; A64 messages use the shared virtual memory variants with 64-bit
// addresses. Legacy messages carry no cache controls.
type Legacy struct {
	target target.Target
}

var _ Emitter = (*Legacy)(nil)

func (*Legacy) Kind() target.MessageKind { return target.Legacy }

// surface returns the binding table operand of A32/SLM messages.
func surface(b *ir.Builder, space target.HWAddrSpace) ir.ValueHandle {
	if space == target.SLM {
		return b.Const(ir.I32, SLMIndex)
	}
	return b.Const(ir.I32, StatelessIndex)
}

func (m *Legacy) block(b *ir.Builder, req Request, blk plan.Block, op string) (string, []ir.ValueHandle, bool) {
	if !checkAddr(b, req) || !checkBlock(b, req, blk, 128) {
		return "", nil, false
	}
	if blk.Count < 1 || blk.Count > 8 || blk.Count&(blk.Count-1) != 0 {
		b.Fail(fmt.Errorf("%w: block of %d owords", ErrUnsupported, blk.Count))
		return "", nil, false
	}
	if req.Space == target.SLM && !m.target.SupportsSLMBlockMessages() {
		b.Fail(fmt.Errorf("%w: block message on slm", ErrUnsupported))
		return "", nil, false
	}
	if blk.Unaligned {
		op += ".unaligned"
	}
	if req.Space == target.A64 {
		return "legacy.svm.block." + op, []ir.ValueHandle{req.Addr}, true
	}
	return "legacy.oword." + op, []ir.ValueHandle{surface(b, req.Space), req.Addr}, true
}

func (m *Legacy) BlockLoad(b *ir.Builder, req Request, blk plan.Block) ir.ValueHandle {
	name, args, ok := m.block(b, req, blk, "ld")
	if !ok {
		return ir.NoValue
	}
	return b.Intrinsic(name, []int64{int64(blk.Count)}, args, BlockType(blk), meta(req.Align))
}

func (m *Legacy) BlockStore(b *ir.Builder, req Request, blk plan.Block) {
	if blk.Unaligned {
		b.Fail(fmt.Errorf("%w: unaligned oword write", ErrUnsupported))
		return
	}
	name, args, ok := m.block(b, req, blk, "st")
	if !ok {
		return
	}
	if req.Payload == ir.NoValue || b.TypeOf(req.Payload) != BlockType(blk) {
		b.Fail(fmt.Errorf("%w: block store payload must be %s", ErrShapeMismatch, BlockType(blk)))
		return
	}
	b.Intrinsic(name, []int64{int64(blk.Count)}, append(args, req.Payload), nil, meta(req.Align))
}

func (m *Legacy) lanes(b *ir.Builder, req Request, lanes Lanes) (int, bool) {
	if !checkAddr(b, req) {
		return 0, false
	}
	n := ir.Lanes(b.TypeOf(req.Addr))
	if !checkLanes(b, req, n) {
		return 0, false
	}
	switch lanes.Bytes {
	case 1, 2, 4, 8:
	default:
		b.Fail(fmt.Errorf("%w: %d-byte lanes", ErrUnsupported, lanes.Bytes))
		return 0, false
	}
	if lanes.Split && lanes.Bytes != 8 {
		b.Fail(fmt.Errorf("%w: split of %d-byte lanes", ErrUnsupported, lanes.Bytes))
		return 0, false
	}
	return n, true
}

// addressing returns the message name prefix and leading operands of a
// per-lane message.
func addressing(b *ir.Builder, req Request, pred ir.ValueHandle, op string) (string, []ir.ValueHandle) {
	if req.Space == target.A64 {
		return "legacy.svm." + op, []ir.ValueHandle{pred, req.Addr}
	}
	return "legacy." + op + ".scaled", []ir.ValueHandle{pred, surface(b, req.Space), b.Const(ir.I32, 0), req.Addr}
}

func (m *Legacy) GatherLoad(b *ir.Builder, req Request, lanes Lanes) ir.ValueHandle {
	n, ok := m.lanes(b, req, lanes)
	if !ok {
		return ir.NoValue
	}
	if lanes.Split {
		return m.splitGather(b, req, n)
	}
	typ := bridge.LaneType(n, lanes.Bytes)
	name, args := addressing(b, req, predicate(b, req.Pred, n), "gather")
	args = append(args, passthru(b, req.Payload, typ))
	return b.Intrinsic(name, []int64{int64(lanes.Bytes)}, args, typ, meta(req.Align))
}

// splitGather loads 8-byte lanes as two dword gathers of the low and high
// halves and interleaves the results.
func (m *Legacy) splitGather(b *ir.Builder, req Request, n int) ir.ValueHandle {
	halves := ir.Vec(n, ir.I32)
	lo, hi := b.Undef(halves), b.Undef(halves)
	if req.Payload != ir.NoValue {
		words := b.Bitcast(req.Payload, ir.Vec(2*n, ir.I32))
		even, odd := evenOdd(n)
		lo, hi = b.Shuffle(words, even), b.Shuffle(words, odd)
	}
	loAddr, hiAddr := splitAddrs(b, req.Addr)
	pred := predicate(b, req.Pred, n)

	half := func(addr, old ir.ValueHandle) ir.ValueHandle {
		sub := req
		sub.Addr = addr
		name, args := addressing(b, sub, pred, "gather")
		args = append(args, old)
		return b.Intrinsic(name, []int64{4}, args, halves, meta(req.Align))
	}
	loVal := half(loAddr, lo)
	hiVal := half(hiAddr, hi)
	words := b.Shuffle(b.Concat(loVal, hiVal), interleave(n))
	return b.Bitcast(words, bridge.LaneType(n, 8))
}

func (m *Legacy) ScatterStore(b *ir.Builder, req Request, lanes Lanes) {
	n, ok := m.lanes(b, req, lanes)
	if !ok {
		return
	}
	typ := bridge.LaneType(n, lanes.Bytes)
	if req.Payload == ir.NoValue || b.TypeOf(req.Payload) != typ {
		b.Fail(fmt.Errorf("%w: scatter payload must be %s", ErrShapeMismatch, typ))
		return
	}
	pred := predicate(b, req.Pred, n)
	if !lanes.Split {
		name, args := addressing(b, req, pred, "scatter")
		b.Intrinsic(name, []int64{int64(lanes.Bytes)}, append(args, req.Payload), nil, meta(req.Align))
		return
	}

	words := b.Bitcast(req.Payload, ir.Vec(2*n, ir.I32))
	even, odd := evenOdd(n)
	loAddr, hiAddr := splitAddrs(b, req.Addr)
	for _, h := range []struct {
		addr ir.ValueHandle
		idx  []int
	}{{loAddr, even}, {hiAddr, odd}} {
		sub := req
		sub.Addr = h.addr
		name, args := addressing(b, sub, pred, "scatter")
		args = append(args, b.Shuffle(words, h.idx))
		b.Intrinsic(name, []int64{4}, args, nil, meta(req.Align))
	}
}

func (m *Legacy) Atomic(b *ir.Builder, req AtomicRequest) ir.ValueHandle {
	if !checkAddr(b, req.Request) || !checkLanes(b, req.Request, 1) {
		return ir.NoValue
	}
	opcode, ok := legacyAtomics[req.Op]
	if !ok {
		b.Fail(fmt.Errorf("%w: %s on legacy", ErrNoSuchAtomicOp, req.Op))
		return ir.NoValue
	}
	typ, ok := atomicType(b, req.Type)
	if !ok {
		return ir.NoValue
	}
	if typ.Bits != 32 && (typ.Bits != 64 || req.Space != target.A64) {
		b.Fail(fmt.Errorf("%w: %s atomic in %s on legacy", ErrUnsupported, typ, req.Space))
		return ir.NoValue
	}

	src := func(h ir.ValueHandle) ir.ValueHandle {
		if h == ir.NoValue {
			return b.Undef(typ)
		}
		return h
	}
	pred := predicate(b, req.Pred, 1)
	var name string
	var args []ir.ValueHandle
	if req.Space == target.A64 {
		name = "legacy.svm.atomic"
		args = []ir.ValueHandle{pred, req.Addr}
	} else {
		name = "legacy.dword.atomic"
		args = []ir.ValueHandle{pred, surface(b, req.Space), req.Addr}
	}
	args = append(args, src(req.Src0), src(req.Src1))
	return b.Intrinsic(name, []int64{opcode}, args, typ, meta(req.Align))
}

func (m *Legacy) Fence(b *ir.Builder, req FenceRequest) {
	mask := int64(FenceCommit)
	if req.Local {
		mask |= FenceLocal
	}
	if req.Scope.WiderThanGroup() {
		mask |= FenceGlobalWide
	}
	if req.Flush == FlushEvict {
		mask |= FenceEvictL1
	}
	if req.Scope == target.ScopeSystemAcquire || req.Scope == target.ScopeSystemRelease {
		mask |= FenceFlushL3
	}
	b.Intrinsic("legacy.fence", []int64{mask}, nil, nil, ir.Meta{})
}
