// Package bridge normalizes values into the integer wire types carried by
// hardware messages, and restores them after loads.
//
// Normalization rules, applied in order and reversed on decode:
//
//  1. i1 and vectors of i1 become a packed bitmask container
//     (ir.MaskContainer), one bit per lane.
//  2. Pointers and pointer vectors become integers of the pointer width,
//     shape preserved.
//  3. Elements narrower than 32 bits travel zero-extended to 32 bits in
//     per-lane messages. Block messages reinterpret the transfer as their
//     own 32, 64 or 128 bit elements, which never changes the byte image.
//
// Floating point values are carried as integers of the same width.
package bridge

import (
	"errors"
	"fmt"

	"github.com/gogpu/memlower/ir"
)

// ErrShapeMismatch reports a wire or register value whose type does not
// match the type it is decoded into.
var ErrShapeMismatch = errors.New("shape mismatch")

// Wire returns the byte-size-preserving integer type that carries a value
// of type t in block and plain messages.
func Wire(t ir.Type) ir.Type {
	if ir.IsBool(t) {
		return ir.MaskContainer(ir.Lanes(t))
	}
	return ir.WithElem(t, ir.Int(ir.ElemBits(t)))
}

// Bytes returns the byte-vector type with the same size as t.
func Bytes(t ir.Type) ir.Type {
	return ir.Vec(ir.ByteSize(t), ir.I8)
}

// Encode converts v to its wire type (rules 1 and 2).
func Encode(b *ir.Builder, v ir.ValueHandle) ir.ValueHandle {
	t := b.TypeOf(v)
	switch {
	case ir.IsBool(t):
		return b.PackMask(v)
	case ir.IsPointer(t):
		return b.PtrToInt(v)
	}
	return b.Bitcast(v, Wire(t))
}

// Decode converts a wire value back to the original type orig.
func Decode(b *ir.Builder, wire ir.ValueHandle, orig ir.Type) ir.ValueHandle {
	if b.TypeOf(wire) != Wire(orig) {
		b.Fail(fmt.Errorf("%w: decode of %s into %s, expected wire type %s", ErrShapeMismatch, b.TypeOf(wire), orig, Wire(orig)))
		return ir.NoValue
	}
	switch {
	case ir.IsBool(orig):
		return b.UnpackMask(wire, orig)
	case ir.IsPointer(orig):
		return b.Cast(ir.CastIntToPtr, wire, orig)
	}
	return b.Bitcast(wire, orig)
}

// LaneType returns the register type of per-lane messages moving lanes of
// laneBytes each: lanes narrower than 32 bits are extended (rule 3).
func LaneType(lanes, laneBytes int) ir.Type {
	return ir.Vec(lanes, ir.Int(max(32, laneBytes*8)))
}

// EncodeLanes converts the element vector v into per-lane message
// registers of laneBytes memory bytes each. laneBytes may be smaller than
// the element, in which case each element spans several lanes.
func EncodeLanes(b *ir.Builder, v ir.ValueHandle, laneBytes int) ir.ValueHandle {
	t := b.TypeOf(v)
	elemBytes := ir.ElemBytes(t)
	lanes := ir.Lanes(t) * elemBytes / laneBytes

	var ints ir.ValueHandle
	switch {
	case ir.IsBool(t):
		ints = b.ZExt(v, ir.I8)
	case ir.IsPointer(t):
		ints = b.PtrToInt(v)
	default:
		ints = b.Bitcast(v, ir.WithElem(t, ir.Int(elemBytes*8)))
	}
	narrow := b.Bitcast(ints, ir.Vec(lanes, ir.Int(laneBytes*8)))
	return b.ZExt(narrow, ir.ElemType(LaneType(lanes, laneBytes)).(ir.ScalarType))
}

// DecodeLanes reverses EncodeLanes, producing a value of type orig.
func DecodeLanes(b *ir.Builder, regs ir.ValueHandle, orig ir.Type, laneBytes int) ir.ValueHandle {
	elemBytes := ir.ElemBytes(orig)
	lanes := ir.Lanes(orig) * elemBytes / laneBytes
	if b.TypeOf(regs) != LaneType(lanes, laneBytes) {
		b.Fail(fmt.Errorf("%w: lane decode of %s into %s, expected %s", ErrShapeMismatch, b.TypeOf(regs), orig, LaneType(lanes, laneBytes)))
		return ir.NoValue
	}

	narrow := b.Trunc(regs, ir.Int(laneBytes*8))
	ints := b.Bitcast(narrow, ir.WithElem(orig, ir.Int(elemBytes*8)))
	switch {
	case ir.IsBool(orig):
		return b.Trunc(ints, ir.Bool)
	case ir.IsPointer(orig):
		return b.Cast(ir.CastIntToPtr, ints, orig)
	}
	return b.Bitcast(ints, orig)
}
