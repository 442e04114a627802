package message

import (
	"fmt"

	"github.com/gogpu/memlower/bridge"
	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/plan"
	"github.com/gogpu/memlower/target"
)

// LSC address size tags.
const (
	lscAddr32 = 2
	lscAddr64 = 3
)

// LSC data size tags.
const (
	lscD32    = 3
	lscD64    = 4
	lscD8U32  = 5
	lscD16U32 = 6
)

// lscScopes encodes hardware scopes.
var lscScopes = [...]int64{
	target.ScopeGroup:         0,
	target.ScopeTile:          2,
	target.ScopeGPU:           3,
	target.ScopeAllGPUs:       4,
	target.ScopeSystemRelease: 5,
	target.ScopeSystemAcquire: 6,
}

// lscAtomics encodes atomic opcodes.
var lscAtomics = map[AtomicOp]int64{
	AtomicInc:  0x08,
	AtomicDec:  0x09,
	AtomicXchg: 0x0b,
	AtomicAdd:  0x0c,
	AtomicSub:  0x0d,
	AtomicSMin: 0x0e,
	AtomicSMax: 0x0f,
	AtomicUMin: 0x10,
	AtomicUMax: 0x11,
	AtomicCAS:  0x12,
	AtomicFAdd: 0x13,
	AtomicFSub: 0x14,
	AtomicFMin: 0x15,
	AtomicFMax: 0x16,
	AtomicAnd:  0x18,
	AtomicOr:   0x19,
	AtomicXor:  0x1a,
}

// LSC emits load/store cache messages.
//
// Every message is an intrinsic named lsc.<op>.<surface>, where surface is
// ugm for A32/A64 and slm for shared local memory. Load and store
// immediates are (address size, data size, vector size, transpose) followed
// by one cache control per level.
type LSC struct {
	target target.Target
}

var _ Emitter = (*LSC)(nil)

func (*LSC) Kind() target.MessageKind { return target.LSC }

func lscName(op string, space target.HWAddrSpace) string {
	if space == target.SLM {
		return "lsc." + op + ".slm"
	}
	return "lsc." + op + ".ugm"
}

func lscAddrSize(space target.HWAddrSpace) int64 {
	if space == target.A64 {
		return lscAddr64
	}
	return lscAddr32
}

// lscBase returns the flat base operand; addresses are absolute.
func lscBase(b *ir.Builder, space target.HWAddrSpace) ir.ValueHandle {
	return b.Const(ir.Int(space.AddrBits()), 0)
}

// lscVectorSize encodes an element count of a transposed message.
func lscVectorSize(n int) (int64, bool) {
	switch n {
	case 1, 2, 3, 4:
		return int64(n), true
	case 8:
		return 5, true
	case 16:
		return 6, true
	case 32:
		return 7, true
	case 64:
		return 8, true
	}
	return 0, false
}

// lscLaneData encodes the data size of per-lane messages.
func lscLaneData(laneBytes int) (int64, bool) {
	switch laneBytes {
	case 1:
		return lscD8U32, true
	case 2:
		return lscD16U32, true
	case 4:
		return lscD32, true
	case 8:
		return lscD64, true
	}
	return 0, false
}

func (m *LSC) imms(space target.HWAddrSpace, data, vsize, transpose int64, cache target.CacheControls) []int64 {
	imms := []int64{lscAddrSize(space), data, vsize, transpose}
	return m.appendCache(imms, cache)
}

func (m *LSC) appendCache(imms []int64, cache target.CacheControls) []int64 {
	levels := m.target.NumCacheLevels()
	for i := 0; i < levels; i++ {
		c := target.CacheDefault
		if i < len(cache) {
			c = cache[i]
		}
		imms = append(imms, int64(c))
	}
	return imms
}

func (m *LSC) block(b *ir.Builder, req Request, blk plan.Block) ([]int64, bool) {
	if !checkAddr(b, req) || !checkBlock(b, req, blk, 32, 64) {
		return nil, false
	}
	if req.Space == target.SLM && !m.target.SupportsSLMBlockMessages() {
		b.Fail(fmt.Errorf("%w: block message on slm", ErrUnsupported))
		return nil, false
	}
	vsize, ok := lscVectorSize(blk.Count)
	if !ok {
		b.Fail(fmt.Errorf("%w: block of %d elements", ErrUnsupported, blk.Count))
		return nil, false
	}
	data := int64(lscD32)
	if blk.ElemBits == 64 {
		data = lscD64
	}
	return m.imms(req.Space, data, vsize, 1, req.Cache), true
}

func (m *LSC) BlockLoad(b *ir.Builder, req Request, blk plan.Block) ir.ValueHandle {
	imms, ok := m.block(b, req, blk)
	if !ok {
		return ir.NoValue
	}
	typ := BlockType(blk)
	args := []ir.ValueHandle{predicate(b, req.Pred, 1), lscBase(b, req.Space), req.Addr, b.Undef(typ)}
	return b.Intrinsic(lscName("load", req.Space), imms, args, typ, meta(req.Align))
}

func (m *LSC) BlockStore(b *ir.Builder, req Request, blk plan.Block) {
	imms, ok := m.block(b, req, blk)
	if !ok {
		return
	}
	if req.Payload == ir.NoValue || b.TypeOf(req.Payload) != BlockType(blk) {
		b.Fail(fmt.Errorf("%w: block store payload must be %s", ErrShapeMismatch, BlockType(blk)))
		return
	}
	args := []ir.ValueHandle{predicate(b, req.Pred, 1), lscBase(b, req.Space), req.Addr, req.Payload}
	b.Intrinsic(lscName("store", req.Space), imms, args, nil, meta(req.Align))
}

func (m *LSC) lanes(b *ir.Builder, req Request, lanes Lanes) (int, []int64, bool) {
	if !checkAddr(b, req) {
		return 0, nil, false
	}
	n := ir.Lanes(b.TypeOf(req.Addr))
	if !checkLanes(b, req, n) {
		return 0, nil, false
	}
	data, ok := lscLaneData(lanes.Bytes)
	if !ok {
		b.Fail(fmt.Errorf("%w: %d-byte lanes", ErrUnsupported, lanes.Bytes))
		return 0, nil, false
	}
	return n, m.imms(req.Space, data, 1, 0, req.Cache), true
}

func (m *LSC) GatherLoad(b *ir.Builder, req Request, lanes Lanes) ir.ValueHandle {
	n, imms, ok := m.lanes(b, req, lanes)
	if !ok {
		return ir.NoValue
	}
	typ := bridge.LaneType(n, lanes.Bytes)
	args := []ir.ValueHandle{predicate(b, req.Pred, n), lscBase(b, req.Space), req.Addr, passthru(b, req.Payload, typ)}
	return b.Intrinsic(lscName("load", req.Space), imms, args, typ, meta(req.Align))
}

func (m *LSC) ScatterStore(b *ir.Builder, req Request, lanes Lanes) {
	n, imms, ok := m.lanes(b, req, lanes)
	if !ok {
		return
	}
	if req.Payload == ir.NoValue || b.TypeOf(req.Payload) != bridge.LaneType(n, lanes.Bytes) {
		b.Fail(fmt.Errorf("%w: scatter payload must be %s", ErrShapeMismatch, bridge.LaneType(n, lanes.Bytes)))
		return
	}
	args := []ir.ValueHandle{predicate(b, req.Pred, n), lscBase(b, req.Space), req.Addr, req.Payload}
	b.Intrinsic(lscName("store", req.Space), imms, args, nil, meta(req.Align))
}

func (m *LSC) Atomic(b *ir.Builder, req AtomicRequest) ir.ValueHandle {
	if !checkAddr(b, req.Request) || !checkLanes(b, req.Request, 1) {
		return ir.NoValue
	}
	opcode, ok := lscAtomics[req.Op]
	if !ok {
		b.Fail(fmt.Errorf("%w: %s on lsc", ErrNoSuchAtomicOp, req.Op))
		return ir.NoValue
	}

	typ, ok := atomicType(b, req.Type)
	if !ok {
		return ir.NoValue
	}
	// 16-bit atomics travel in 32-bit registers.
	var data int64
	reg := typ
	switch typ.Bits {
	case 16:
		data, reg = lscD16U32, ir.I32
	case 32:
		data = lscD32
	case 64:
		data = lscD64
	default:
		b.Fail(fmt.Errorf("%w: %s atomic on lsc", ErrUnsupported, typ))
		return ir.NoValue
	}

	src := func(h ir.ValueHandle) ir.ValueHandle {
		if h == ir.NoValue {
			return b.Undef(reg)
		}
		return b.ZExt(h, reg)
	}
	imms := m.appendCache([]int64{opcode, lscAddrSize(req.Space), data}, req.Cache)
	args := []ir.ValueHandle{predicate(b, req.Pred, 1), lscBase(b, req.Space), req.Addr, src(req.Src0), src(req.Src1)}
	old := b.Intrinsic(lscName("atomic", req.Space), imms, args, reg, meta(req.Align))
	return b.Trunc(old, typ)
}

func (m *LSC) Fence(b *ir.Builder, req FenceRequest) {
	space := target.A64
	if req.Local {
		space = target.SLM
	}
	if int(req.Scope) >= len(lscScopes) {
		b.Fail(fmt.Errorf("%w: fence scope %s", ErrUnsupported, req.Scope))
		return
	}
	imms := []int64{int64(req.Flush), lscScopes[req.Scope]}
	b.Intrinsic(lscName("fence", space), imms, nil, nil, ir.Meta{})
}
