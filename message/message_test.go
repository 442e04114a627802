package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/plan"
	"github.com/gogpu/memlower/target"
)

var (
	lscCaps    = target.Capabilities{Name: "lsc", LSCMessages: true, SLMBlockMessages: true, RegisterBytes: 64, CacheLevels: 2, MaxRegs: 8}
	legacyCaps = target.Capabilities{Name: "legacy", RegisterBytes: 32, CacheLevels: 2, MaxRegs: 4}
)

// fixture holds a builder over a function with 32 and 64 bit addresses.
type fixture struct {
	fn     *ir.Function
	b      *ir.Builder
	addr32 ir.ValueHandle
	addr64 ir.ValueHandle
}

func newFixture() *fixture {
	fn := ir.NewFunction("f")
	f := &fixture{
		fn:     fn,
		addr32: fn.AddArg("a32", ir.I32),
		addr64: fn.AddArg("a64", ir.I64),
	}
	f.b = ir.NewBuilder(fn)
	return f
}

func (f *fixture) arg(typ ir.Type) ir.ValueHandle {
	return f.fn.AddArg("", typ)
}

// calls returns the intrinsic calls built so far.
func (f *fixture) calls() []*ir.Intrinsic {
	var out []*ir.Intrinsic
	for _, inst := range f.b.Instructions() {
		if in, ok := inst.Op.(*ir.Intrinsic); ok {
			out = append(out, in)
		}
	}
	return out
}

func request(space target.HWAddrSpace, addr ir.ValueHandle) Request {
	return Request{
		Space:   space,
		Pred:    ir.NoValue,
		Addr:    addr,
		Payload: ir.NoValue,
	}
}

func TestNew(t *testing.T) {
	assert.IsType(t, &LSC{}, New(target.LSC, lscCaps))
	assert.IsType(t, &Legacy{}, New(target.Legacy, legacyCaps))
	assert.Equal(t, target.LSC, New(target.LSC, lscCaps).Kind())
	assert.Equal(t, target.Legacy, New(target.Legacy, legacyCaps).Kind())
}

func TestBlockType(t *testing.T) {
	assert.Equal(t, ir.Vec(8, ir.I32), BlockType(plan.Block{Count: 2, ElemBits: 128}))
	assert.Equal(t, ir.Vec(4, ir.I64), BlockType(plan.Block{Count: 4, ElemBits: 64}))
	assert.Equal(t, ir.Vec(3, ir.I32), BlockType(plan.Block{Count: 3, ElemBits: 32}))
}

func TestAtomicOp_Sources(t *testing.T) {
	assert.Equal(t, 0, AtomicInc.Sources())
	assert.Equal(t, 0, AtomicDec.Sources())
	assert.Equal(t, 1, AtomicXchg.Sources())
	assert.Equal(t, 2, AtomicCAS.Sources())
	assert.Equal(t, "cas", AtomicCAS.String())
}

func TestLSC_BlockLoad(t *testing.T) {
	f := newFixture()
	m := New(target.LSC, lscCaps)

	req := request(target.A64, f.addr64)
	req.Cache = target.CacheControls{target.CacheUncached, target.CacheDefault}
	req.Align = 16
	v := m.BlockLoad(f.b, req, plan.Block{Count: 8, ElemBits: 64})
	require.NoError(t, f.b.Err())

	assert.Equal(t, ir.Vec(8, ir.I64), f.fn.TypeOf(v))
	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "lsc.load.ugm", calls[0].Name)
	assert.Equal(t, []int64{lscAddr64, lscD64, 5, 1, 1, 0}, calls[0].Imms)
	require.Len(t, calls[0].Args, 4)
	assert.Equal(t, f.addr64, calls[0].Args[2])
	assert.Equal(t, uint32(16), f.b.Instructions()[0].Meta.Align)
}

func TestLSC_BlockStoreSLM(t *testing.T) {
	f := newFixture()
	m := New(target.LSC, lscCaps)

	req := request(target.SLM, f.addr32)
	req.Payload = f.arg(ir.Vec(4, ir.I32))
	m.BlockStore(f.b, req, plan.Block{Count: 4, ElemBits: 32})
	require.NoError(t, f.b.Err())

	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "lsc.store.slm", calls[0].Name)
	assert.Equal(t, []int64{lscAddr32, lscD32, 4, 1, 0, 0}, calls[0].Imms)
	assert.Equal(t, req.Payload, calls[0].Args[3])
}

func TestLSC_BlockErrors(t *testing.T) {
	t.Run("vector size", func(t *testing.T) {
		f := newFixture()
		New(target.LSC, lscCaps).BlockLoad(f.b, request(target.A64, f.addr64), plan.Block{Count: 5, ElemBits: 32})
		assert.ErrorIs(t, f.b.Err(), ErrUnsupported)
	})
	t.Run("oword", func(t *testing.T) {
		f := newFixture()
		New(target.LSC, lscCaps).BlockLoad(f.b, request(target.A64, f.addr64), plan.Block{Count: 1, ElemBits: 128})
		assert.ErrorIs(t, f.b.Err(), ErrUnsupported)
	})
	t.Run("address width", func(t *testing.T) {
		f := newFixture()
		New(target.LSC, lscCaps).BlockLoad(f.b, request(target.A64, f.addr32), plan.Block{Count: 1, ElemBits: 32})
		assert.ErrorIs(t, f.b.Err(), ErrShapeMismatch)
	})
	t.Run("payload type", func(t *testing.T) {
		f := newFixture()
		req := request(target.A64, f.addr64)
		req.Payload = f.arg(ir.Vec(4, ir.I32))
		New(target.LSC, lscCaps).BlockStore(f.b, req, plan.Block{Count: 2, ElemBits: 64})
		assert.ErrorIs(t, f.b.Err(), ErrShapeMismatch)
	})
	t.Run("slm without block messages", func(t *testing.T) {
		f := newFixture()
		caps := lscCaps
		caps.SLMBlockMessages = false
		New(target.LSC, caps).BlockLoad(f.b, request(target.SLM, f.addr32), plan.Block{Count: 1, ElemBits: 32})
		assert.ErrorIs(t, f.b.Err(), ErrUnsupported)
	})
}

func TestLSC_Gather(t *testing.T) {
	f := newFixture()
	m := New(target.LSC, lscCaps)

	req := request(target.A32, f.arg(ir.Vec(16, ir.I32)))
	req.Pred = f.arg(ir.Vec(16, ir.Bool))
	v := m.GatherLoad(f.b, req, Lanes{Bytes: 2})
	require.NoError(t, f.b.Err())

	assert.Equal(t, ir.Vec(16, ir.I32), f.fn.TypeOf(v))
	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "lsc.load.ugm", calls[0].Name)
	assert.Equal(t, []int64{lscAddr32, lscD16U32, 1, 0, 0, 0}, calls[0].Imms)
	assert.Equal(t, req.Pred, calls[0].Args[0])
}

func TestLSC_ScatterShapeMismatch(t *testing.T) {
	f := newFixture()
	m := New(target.LSC, lscCaps)

	req := request(target.A64, f.arg(ir.Vec(8, ir.I64)))
	req.Pred = f.arg(ir.Vec(4, ir.Bool))
	req.Payload = f.arg(ir.Vec(8, ir.I32))
	m.ScatterStore(f.b, req, Lanes{Bytes: 4})

	assert.ErrorIs(t, f.b.Err(), ErrShapeMismatch)
	assert.Empty(t, f.calls())
}

func TestLSC_Atomic16(t *testing.T) {
	f := newFixture()
	m := New(target.LSC, lscCaps)

	src := f.arg(ir.I16)
	old := m.Atomic(f.b, AtomicRequest{
		Request: request(target.A64, f.addr64),
		Op:      AtomicAdd,
		Src0:    src,
		Src1:    ir.NoValue,
		Type:    ir.I16,
	})
	require.NoError(t, f.b.Err())

	assert.Equal(t, ir.I16, f.fn.TypeOf(old))
	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "lsc.atomic.ugm", calls[0].Name)
	assert.Equal(t, []int64{0x0c, lscAddr64, lscD16U32, 0, 0}, calls[0].Imms)
	assert.Equal(t, ir.Type(ir.I32), f.fn.TypeOf(calls[0].Args[3]))
}

func TestLSC_AtomicRejectsFloatType(t *testing.T) {
	f := newFixture()
	New(target.LSC, lscCaps).Atomic(f.b, AtomicRequest{
		Request: request(target.A64, f.addr64),
		Op:      AtomicFAdd,
		Src0:    f.arg(ir.F32),
		Src1:    ir.NoValue,
		Type:    ir.F32,
	})
	assert.ErrorIs(t, f.b.Err(), ErrUnsupported)
}

func TestLSC_Fence(t *testing.T) {
	f := newFixture()
	m := New(target.LSC, lscCaps)

	m.Fence(f.b, FenceRequest{Scope: target.ScopeGPU, Flush: FlushEvict})
	m.Fence(f.b, FenceRequest{Local: true, Scope: target.ScopeGroup})
	require.NoError(t, f.b.Err())

	calls := f.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "lsc.fence.ugm", calls[0].Name)
	assert.Equal(t, []int64{1, 3}, calls[0].Imms)
	assert.Equal(t, "lsc.fence.slm", calls[1].Name)
	assert.Equal(t, []int64{0, 0}, calls[1].Imms)
}

func TestLegacy_BlockLoad(t *testing.T) {
	tests := []struct {
		space target.HWAddrSpace
		blk   plan.Block
		name  string
		args  int
	}{
		{target.A32, plan.Block{Count: 2, ElemBits: 128}, "legacy.oword.ld", 2},
		{target.A32, plan.Block{Count: 4, ElemBits: 128, Unaligned: true}, "legacy.oword.ld.unaligned", 2},
		{target.A64, plan.Block{Count: 8, ElemBits: 128}, "legacy.svm.block.ld", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			addr := f.addr32
			if tt.space == target.A64 {
				addr = f.addr64
			}
			v := New(target.Legacy, legacyCaps).BlockLoad(f.b, request(tt.space, addr), tt.blk)
			require.NoError(t, f.b.Err())

			assert.Equal(t, BlockType(tt.blk), f.fn.TypeOf(v))
			calls := f.calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.name, calls[0].Name)
			assert.Equal(t, []int64{int64(tt.blk.Count)}, calls[0].Imms)
			assert.Len(t, calls[0].Args, tt.args)
		})
	}
}

func TestLegacy_BlockErrors(t *testing.T) {
	t.Run("unaligned write", func(t *testing.T) {
		f := newFixture()
		req := request(target.A32, f.addr32)
		req.Payload = f.arg(ir.Vec(4, ir.I32))
		New(target.Legacy, legacyCaps).BlockStore(f.b, req, plan.Block{Count: 1, ElemBits: 128, Unaligned: true})
		assert.ErrorIs(t, f.b.Err(), ErrUnsupported)
	})
	t.Run("dword block", func(t *testing.T) {
		f := newFixture()
		New(target.Legacy, legacyCaps).BlockLoad(f.b, request(target.A32, f.addr32), plan.Block{Count: 4, ElemBits: 32})
		assert.ErrorIs(t, f.b.Err(), ErrUnsupported)
	})
	t.Run("slm", func(t *testing.T) {
		f := newFixture()
		New(target.Legacy, legacyCaps).BlockLoad(f.b, request(target.SLM, f.addr32), plan.Block{Count: 1, ElemBits: 128})
		assert.ErrorIs(t, f.b.Err(), ErrUnsupported)
	})
	t.Run("three owords", func(t *testing.T) {
		f := newFixture()
		New(target.Legacy, legacyCaps).BlockLoad(f.b, request(target.A32, f.addr32), plan.Block{Count: 3, ElemBits: 128})
		assert.ErrorIs(t, f.b.Err(), ErrUnsupported)
	})
}

func TestLegacy_GatherSLM(t *testing.T) {
	f := newFixture()
	m := New(target.Legacy, legacyCaps)

	v := m.GatherLoad(f.b, request(target.SLM, f.arg(ir.Vec(1, ir.I32))), Lanes{Bytes: 1})
	require.NoError(t, f.b.Err())

	assert.Equal(t, ir.Vec(1, ir.I32), f.fn.TypeOf(v))
	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "legacy.gather.scaled", calls[0].Name)
	assert.Equal(t, []int64{1}, calls[0].Imms)
	bits, ok := f.fn.ConstBits(calls[0].Args[1])
	require.True(t, ok)
	assert.Equal(t, []uint64{SLMIndex}, bits)
}

func TestLegacy_SplitScatter(t *testing.T) {
	f := newFixture()
	m := New(target.Legacy, legacyCaps)

	req := request(target.A64, f.arg(ir.Vec(4, ir.I64)))
	req.Payload = f.arg(ir.Vec(4, ir.I64))
	m.ScatterStore(f.b, req, Lanes{Bytes: 8, Split: true})
	require.NoError(t, f.b.Err())

	calls := f.calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, "legacy.svm.scatter", c.Name)
		assert.Equal(t, []int64{4}, c.Imms)
		assert.Equal(t, ir.Vec(4, ir.I32), f.fn.TypeOf(c.Args[2]))
	}
	assert.Equal(t, req.Addr, calls[0].Args[1])
	assert.NotEqual(t, req.Addr, calls[1].Args[1])
}

func TestLegacy_SplitGather(t *testing.T) {
	f := newFixture()
	m := New(target.Legacy, legacyCaps)

	v := m.GatherLoad(f.b, request(target.A32, f.arg(ir.Vec(2, ir.I32))), Lanes{Bytes: 8, Split: true})
	require.NoError(t, f.b.Err())

	assert.Equal(t, ir.Vec(2, ir.I64), f.fn.TypeOf(v))
	calls := f.calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, "legacy.gather.scaled", c.Name)
		assert.Equal(t, []int64{4}, c.Imms)
	}
}

func TestLegacy_Atomic(t *testing.T) {
	f := newFixture()
	m := New(target.Legacy, legacyCaps)

	old := m.Atomic(f.b, AtomicRequest{
		Request: request(target.A32, f.addr32),
		Op:      AtomicCAS,
		Src0:    f.arg(ir.I32),
		Src1:    f.arg(ir.I32),
		Type:    ir.I32,
	})
	require.NoError(t, f.b.Err())

	assert.Equal(t, ir.I32, f.fn.TypeOf(old))
	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "legacy.dword.atomic", calls[0].Name)
	assert.Equal(t, []int64{14}, calls[0].Imms)
	assert.Len(t, calls[0].Args, 5)
}

func TestLegacy_AtomicErrors(t *testing.T) {
	t.Run("fadd", func(t *testing.T) {
		f := newFixture()
		New(target.Legacy, legacyCaps).Atomic(f.b, AtomicRequest{
			Request: request(target.A64, f.addr64),
			Op:      AtomicFAdd,
			Src0:    f.arg(ir.I32),
			Src1:    ir.NoValue,
			Type:    ir.I32,
		})
		assert.ErrorIs(t, f.b.Err(), ErrNoSuchAtomicOp)
	})
	t.Run("qword in a32", func(t *testing.T) {
		f := newFixture()
		New(target.Legacy, legacyCaps).Atomic(f.b, AtomicRequest{
			Request: request(target.A32, f.addr32),
			Op:      AtomicAdd,
			Src0:    f.arg(ir.I64),
			Src1:    ir.NoValue,
			Type:    ir.I64,
		})
		assert.ErrorIs(t, f.b.Err(), ErrUnsupported)
	})
	t.Run("vector predicate", func(t *testing.T) {
		f := newFixture()
		req := request(target.A64, f.addr64)
		req.Pred = f.arg(ir.Vec(2, ir.Bool))
		New(target.Legacy, legacyCaps).Atomic(f.b, AtomicRequest{
			Request: req,
			Op:      AtomicInc,
			Src0:    ir.NoValue,
			Src1:    ir.NoValue,
			Type:    ir.I32,
		})
		assert.ErrorIs(t, f.b.Err(), ErrShapeMismatch)
	})
}

func TestLegacy_FenceMask(t *testing.T) {
	tests := []struct {
		req  FenceRequest
		want int64
	}{
		{FenceRequest{Scope: target.ScopeGroup}, FenceCommit},
		{FenceRequest{Local: true, Scope: target.ScopeGroup}, FenceCommit | FenceLocal},
		{FenceRequest{Scope: target.ScopeTile, Flush: FlushEvict}, FenceCommit | FenceGlobalWide | FenceEvictL1},
		{FenceRequest{Scope: target.ScopeSystemRelease, Flush: FlushEvict}, FenceCommit | FenceGlobalWide | FenceEvictL1 | FenceFlushL3},
	}
	for _, tt := range tests {
		f := newFixture()
		New(target.Legacy, legacyCaps).Fence(f.b, tt.req)
		require.NoError(t, f.b.Err())
		calls := f.calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "legacy.fence", calls[0].Name)
		assert.Equal(t, []int64{tt.want}, calls[0].Imms, "%+v", tt.req)
	}
}

func TestUnknownSpace(t *testing.T) {
	f := newFixture()
	New(target.LSC, lscCaps).BlockLoad(f.b, request(target.HWAddrSpace(7), f.addr64), plan.Block{Count: 1, ElemBits: 32})

	err := f.b.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
}
