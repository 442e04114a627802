package lower

import (
	"fmt"

	"github.com/gogpu/memlower/bridge"
	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/message"
	"github.com/gogpu/memlower/plan"
	"github.com/gogpu/memlower/target"
)

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{message.ErrUnsupported}, args...)...)
}

func shapeMismatch(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{message.ErrShapeMismatch}, args...)...)
}

// resultType returns the type of the value inst defines.
func (l *lowering) resultType(b *ir.Builder, inst *ir.Instruction, what string) (ir.Type, bool) {
	if inst.Result == ir.NoValue {
		b.Fail(shapeMismatch("%s without result", what))
		return nil, false
	}
	return l.fn.TypeOf(inst.Result), true
}

// address converts a pointer or pointer vector to hardware addresses of
// space.
func address(b *ir.Builder, ptr ir.ValueHandle, space target.HWAddrSpace) ir.ValueHandle {
	addr := b.PtrToInt(ptr)
	bits := space.AddrBits()
	switch width := ir.ElemBits(b.TypeOf(addr)); {
	case width > bits:
		addr = b.Trunc(addr, ir.Int(bits))
	case width < bits:
		addr = b.ZExt(addr, ir.Int(bits))
	}
	return addr
}

// offset returns addr + off.
func offset(b *ir.Builder, addr ir.ValueHandle, off int) ir.ValueHandle {
	if off == 0 {
		return addr
	}
	return b.Add(addr, b.Const(b.TypeOf(addr), uint64(off)))
}

// laneAddrs returns per-lane addresses base + off + i*laneBytes.
func laneAddrs(b *ir.Builder, base ir.ValueHandle, off, lanes, laneBytes int) ir.ValueHandle {
	offs := make([]uint64, lanes)
	for i := range offs {
		offs[i] = uint64(off + i*laneBytes)
	}
	typ := ir.Vec(lanes, b.TypeOf(base))
	return b.Add(b.Splat(base, lanes), b.Const(typ, offs...))
}

func (l *lowering) caches(meta ir.Meta) target.CacheControls {
	if meta.NonTemporal {
		return target.UncachedCaches(l.target)
	}
	return target.DefaultCaches(l.target)
}

func (l *lowering) plan(size, esize, align int, space target.HWAddrSpace, store bool) (plan.Plan, error) {
	p, err := plan.Compute(plan.Request{
		Size:          size,
		ElemSize:      esize,
		Align:         align,
		Kind:          l.kind,
		Space:         space,
		Store:         store,
		MaxBlockBytes: target.MaxMessageBytes(l.target),
		SLMBlocks:     l.target.SupportsSLMBlockMessages(),
	})
	if err != nil {
		return plan.Plan{}, unsupported("%v", err)
	}
	return p, nil
}

// transfer is the planned movement of one whole value.
type transfer struct {
	wire  ir.Type
	align int
	plan  plan.Plan
	base  ir.ValueHandle
	req   message.Request
}

func (l *lowering) transfer(b *ir.Builder, inst *ir.Instruction, c Class, typ ir.Type, store bool) (*transfer, bool) {
	wire := bridge.Wire(typ)
	esize := ir.ElemBytes(wire)
	align := plan.NaturalAlign(int(inst.Meta.Align), esize)
	p, err := l.plan(ir.ByteSize(wire), esize, align, c.Space, store)
	if err != nil {
		b.Fail(err)
		return nil, false
	}
	return &transfer{
		wire:  wire,
		align: align,
		plan:  p,
		base:  address(b, l.value(c.Ptr), c.Space),
		req: message.Request{
			Space:   c.Space,
			Pred:    ir.NoValue,
			Payload: ir.NoValue,
			Cache:   l.caches(inst.Meta),
		},
	}, true
}

func lowerLoad(l *lowering, b *ir.Builder, inst *ir.Instruction, c Class) {
	typ, ok := l.resultType(b, inst, "load")
	if !ok {
		return
	}
	t, ok := l.transfer(b, inst, c, typ, false)
	if !ok {
		return
	}

	var parts []ir.ValueHandle
	for _, blk := range t.plan.Blocks {
		req := t.req
		req.Addr = offset(b, t.base, blk.Offset)
		req.Align = plan.AlignAt(t.align, blk.Offset)
		parts = append(parts, l.emit.BlockLoad(b, req, blk))
	}
	if r := t.plan.Remainder; r.Bytes > 0 {
		req := t.req
		req.Addr = laneAddrs(b, t.base, r.Offset, r.Lanes(), r.LaneBytes)
		req.Align = plan.AlignAt(t.align, r.Offset)
		regs := l.emit.GatherLoad(b, req, message.Lanes{Bytes: r.LaneBytes, Split: r.Split})
		parts = append(parts, b.Trunc(regs, ir.Int(r.LaneBytes*8)))
	}
	l.replace(inst.Result, bridge.Decode(b, join(b, parts, t.wire), typ))
}

// join reassembles message results, in address order, into a value of
// type wire.
func join(b *ir.Builder, parts []ir.ValueHandle, wire ir.Type) ir.ValueHandle {
	if len(parts) == 1 {
		return b.Bitcast(parts[0], wire)
	}
	bytes := make([]ir.ValueHandle, len(parts))
	for i, part := range parts {
		bytes[i] = b.Bitcast(part, bridge.Bytes(b.TypeOf(part)))
	}
	return b.Bitcast(b.Concat(bytes...), wire)
}

func lowerStore(l *lowering, b *ir.Builder, inst *ir.Instruction, c Class) {
	op := inst.Op.(*ir.Store)
	v := l.value(op.Value)
	typ := b.TypeOf(v)
	if typ == nil {
		b.Fail(shapeMismatch("store without value"))
		return
	}
	t, ok := l.transfer(b, inst, c, typ, true)
	if !ok {
		return
	}

	pieces := slicer{b: b, whole: bridge.Encode(b, v), size: ir.ByteSize(t.wire), bytes: ir.NoValue}
	for _, blk := range t.plan.Blocks {
		req := t.req
		req.Addr = offset(b, t.base, blk.Offset)
		req.Align = plan.AlignAt(t.align, blk.Offset)
		req.Payload = b.Bitcast(pieces.take(blk.Offset, blk.Bytes()), message.BlockType(blk))
		l.emit.BlockStore(b, req, blk)
	}
	if r := t.plan.Remainder; r.Bytes > 0 {
		req := t.req
		req.Addr = laneAddrs(b, t.base, r.Offset, r.Lanes(), r.LaneBytes)
		req.Align = plan.AlignAt(t.align, r.Offset)
		narrow := b.Bitcast(pieces.take(r.Offset, r.Bytes), ir.Vec(r.Lanes(), ir.Int(r.LaneBytes*8)))
		req.Payload = b.ZExt(narrow, ir.Int(r.WireBits()))
		l.emit.ScatterStore(b, req, message.Lanes{Bytes: r.LaneBytes, Split: r.Split})
	}
}

// slicer cuts byte ranges out of a wire value. The byte view is built only
// when a piece covers less than the whole value.
type slicer struct {
	b     *ir.Builder
	whole ir.ValueHandle
	size  int
	bytes ir.ValueHandle
}

func (s *slicer) take(off, n int) ir.ValueHandle {
	if off == 0 && n == s.size {
		return s.whole
	}
	if s.bytes == ir.NoValue {
		s.bytes = s.b.Bitcast(s.whole, ir.Vec(s.size, ir.I8))
	}
	return s.b.Slice(s.bytes, off, n)
}

// lanes returns the lane layout and operands of a gather or scatter over
// elements of type elem. Elements aligned below their size are split over
// several narrower lanes, each repeating the element's predicate bit.
func (l *lowering) lanes(b *ir.Builder, inst *ir.Instruction, c Class, elem ir.Type, mask ir.ValueHandle) (message.Request, message.Lanes, bool) {
	elemBytes := ir.ElemBytes(elem)
	switch elemBytes {
	case 1, 2, 4, 8:
	default:
		b.Fail(unsupported("%d-byte gather/scatter elements", elemBytes))
		return message.Request{}, message.Lanes{}, false
	}
	align := plan.NaturalAlign(int(inst.Meta.Align), elemBytes)
	laneBytes, split := plan.Lanes(elemBytes, align, l.kind)

	addrs := address(b, l.value(c.Ptr), c.Space)
	pred := ir.NoValue
	if mask != ir.NoValue {
		pred = l.value(mask)
	}
	n := ir.Lanes(b.TypeOf(addrs))
	if pred != ir.NoValue && ir.Lanes(b.TypeOf(pred)) != n {
		b.Fail(shapeMismatch("mask has %d lanes, pointers have %d", ir.Lanes(b.TypeOf(pred)), n))
		return message.Request{}, message.Lanes{}, false
	}
	if ir.Lanes(elem) != n {
		b.Fail(shapeMismatch("%s for %d pointers", elem, n))
		return message.Request{}, message.Lanes{}, false
	}

	if k := elemBytes / laneBytes; k > 1 {
		idx := make([]int, n*k)
		offs := make([]uint64, n*k)
		for i := 0; i < n; i++ {
			for j := 0; j < k; j++ {
				idx[i*k+j] = i
				offs[i*k+j] = uint64(j * laneBytes)
			}
		}
		addrType := ir.Vec(n*k, ir.Int(c.Space.AddrBits()))
		addrs = b.Add(b.Shuffle(addrs, idx), b.Const(addrType, offs...))
		if pred != ir.NoValue {
			pred = b.Shuffle(pred, idx)
		}
	}

	req := message.Request{
		Space:   c.Space,
		Pred:    pred,
		Addr:    addrs,
		Payload: ir.NoValue,
		Cache:   l.caches(inst.Meta),
		Align:   align,
	}
	return req, message.Lanes{Bytes: laneBytes, Split: split}, true
}

func lowerGather(l *lowering, b *ir.Builder, inst *ir.Instruction, c Class) {
	op := inst.Op.(*ir.Gather)
	typ, ok := l.resultType(b, inst, "gather")
	if !ok {
		return
	}
	req, lanes, ok := l.lanes(b, inst, c, typ, op.Mask)
	if !ok {
		return
	}
	if op.Passthru != ir.NoValue {
		req.Payload = bridge.EncodeLanes(b, l.value(op.Passthru), lanes.Bytes)
	}
	regs := l.emit.GatherLoad(b, req, lanes)
	l.replace(inst.Result, bridge.DecodeLanes(b, regs, typ, lanes.Bytes))
}

func lowerScatter(l *lowering, b *ir.Builder, inst *ir.Instruction, c Class) {
	op := inst.Op.(*ir.Scatter)
	v := l.value(op.Value)
	typ := b.TypeOf(v)
	if typ == nil {
		b.Fail(shapeMismatch("scatter without value"))
		return
	}
	req, lanes, ok := l.lanes(b, inst, c, typ, op.Mask)
	if !ok {
		return
	}
	req.Payload = bridge.EncodeLanes(b, v, lanes.Bytes)
	l.emit.ScatterStore(b, req, lanes)
}
