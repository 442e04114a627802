package ir

import (
	"errors"
	"fmt"
)

// Builder creates instructions into a scratch list without touching the
// function body. New values are allocated in the function's arena; the
// caller splices Instructions() into the body once construction succeeds.
//
// The first construction error is recorded and returned by Err; later calls
// become no-ops returning NoValue.
type Builder struct {
	fn    *Function
	insts []Instruction
	err   error
}

// NewBuilder creates a builder for fn.
func NewBuilder(fn *Function) *Builder {
	return &Builder{
		fn:    fn,
		insts: make([]Instruction, 0, 8),
	}
}

// Func returns the function values are allocated in.
func (b *Builder) Func() *Function { return b.fn }

// Err returns the first construction error.
func (b *Builder) Err() error { return b.err }

// Instructions returns the instructions built so far.
func (b *Builder) Instructions() []Instruction { return b.insts }

// TypeOf returns the type of a value, or nil for NoValue so that callers
// can keep building after a recorded error.
func (b *Builder) TypeOf(h ValueHandle) Type {
	if int(h) >= len(b.fn.Values) {
		return nil
	}
	return b.fn.TypeOf(h)
}

// Fail records err unless an earlier error is already recorded.
func (b *Builder) Fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Emit appends an instruction with an explicit result type (nil for none).
func (b *Builder) Emit(op Op, resultType Type, meta Meta) ValueHandle {
	if b.err != nil {
		return NoValue
	}
	result := NoValue
	if resultType != nil {
		result = b.fn.NewResult(resultType)
	}
	b.insts = append(b.insts, Instruction{Op: op, Result: result, Meta: meta})
	return result
}

// emitResolved appends an instruction whose result type follows from its
// operands.
func (b *Builder) emitResolved(op Op) ValueHandle {
	if b.err != nil {
		return NoValue
	}
	typ, ok, err := ResolveResultType(b.fn, op)
	if err != nil {
		b.Fail(err)
		return NoValue
	}
	if !ok || typ == nil {
		b.Fail(fmt.Errorf("cannot resolve result type of %T", op))
		return NoValue
	}
	return b.Emit(op, typ, Meta{})
}

// Const adds a constant value.
func (b *Builder) Const(typ Type, bits ...uint64) ValueHandle {
	if !b.usable(typ) {
		return NoValue
	}
	return b.fn.Const(typ, bits...)
}

// Undef adds an undefined value.
func (b *Builder) Undef(typ Type) ValueHandle {
	if !b.usable(typ) {
		return NoValue
	}
	return b.fn.Undef(typ)
}

func (b *Builder) usable(typ Type) bool {
	if b.err != nil {
		return false
	}
	if typ == nil {
		b.Fail(errors.New("value of nil type"))
		return false
	}
	return true
}

// Cast emits a conversion of x to typ.
func (b *Builder) Cast(kind CastKind, x ValueHandle, typ Type) ValueHandle {
	if b.err != nil {
		return NoValue
	}
	from := b.fn.TypeOf(x)
	if err := checkCast(kind, from, typ); err != nil {
		b.Fail(err)
		return NoValue
	}
	return b.Emit(&Cast{Kind: kind, X: x}, typ, Meta{})
}

// Bitcast reinterprets x as typ. It returns x unchanged when the types
// already match.
func (b *Builder) Bitcast(x ValueHandle, typ Type) ValueHandle {
	if b.err == nil && b.fn.TypeOf(x) == typ {
		return x
	}
	return b.Cast(CastBitcast, x, typ)
}

// ZExt zero-extends every lane of x to elem, preserving shape.
func (b *Builder) ZExt(x ValueHandle, elem ScalarType) ValueHandle {
	if b.err == nil && ElemType(b.fn.TypeOf(x)) == Type(elem) {
		return x
	}
	return b.Cast(CastZExt, x, WithElem(b.fn.TypeOf(x), elem))
}

// Trunc truncates every lane of x to elem, preserving shape.
func (b *Builder) Trunc(x ValueHandle, elem ScalarType) ValueHandle {
	if b.err == nil && ElemType(b.fn.TypeOf(x)) == Type(elem) {
		return x
	}
	return b.Cast(CastTrunc, x, WithElem(b.fn.TypeOf(x), elem))
}

// PtrToInt converts a pointer (or pointer vector) to integers of the
// pointer width.
func (b *Builder) PtrToInt(x ValueHandle) ValueHandle {
	if b.err != nil {
		return NoValue
	}
	t := b.fn.TypeOf(x)
	p, ok := ElemType(t).(PointerType)
	if !ok {
		b.Fail(fmt.Errorf("ptrtoint of non-pointer %s", t))
		return NoValue
	}
	return b.Cast(CastPtrToInt, x, WithElem(t, Int(int(p.Bits))))
}

// Add emits lane-wise integer addition.
func (b *Builder) Add(x, y ValueHandle) ValueHandle {
	return b.emitResolved(&Binary{Kind: BinaryAdd, X: x, Y: y})
}

// Compare emits a lane-wise equality test.
func (b *Builder) Compare(x, y ValueHandle) ValueHandle {
	return b.emitResolved(&Compare{X: x, Y: y})
}

// Select emits a lane-wise select.
func (b *Builder) Select(cond, x, y ValueHandle) ValueHandle {
	return b.emitResolved(&Select{Cond: cond, X: x, Y: y})
}

// Shuffle picks lanes of x.
func (b *Builder) Shuffle(x ValueHandle, indices []int) ValueHandle {
	return b.emitResolved(&Shuffle{X: x, Indices: indices})
}

// Slice extracts n consecutive lanes starting at start, as a vector.
// It returns x unchanged when the slice covers all of it.
func (b *Builder) Slice(x ValueHandle, start, n int) ValueHandle {
	if b.err != nil {
		return NoValue
	}
	t := b.fn.TypeOf(x)
	if start == 0 && n == Lanes(t) {
		return x
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = start + i
	}
	return b.Shuffle(x, indices)
}

// Concat joins vectors end to end. A single part is returned unchanged.
func (b *Builder) Concat(parts ...ValueHandle) ValueHandle {
	if len(parts) == 1 {
		return parts[0]
	}
	return b.emitResolved(&Concat{Parts: parts})
}

// Splat broadcasts scalar x to a vector of the given lane count.
func (b *Builder) Splat(x ValueHandle, lanes int) ValueHandle {
	if b.err != nil {
		return NoValue
	}
	return b.Emit(&Splat{X: x}, Vec(lanes, b.fn.TypeOf(x)), Meta{})
}

// PackMask packs an i1 value into its bitmask container.
func (b *Builder) PackMask(x ValueHandle) ValueHandle {
	return b.emitResolved(&PackMask{X: x})
}

// UnpackMask unpacks a bitmask container into the i1 type typ.
func (b *Builder) UnpackMask(x ValueHandle, typ Type) ValueHandle {
	if b.err != nil {
		return NoValue
	}
	if MaskContainer(Lanes(typ)) != b.fn.TypeOf(x) {
		b.Fail(fmt.Errorf("unpack of %s into %s", b.fn.TypeOf(x), typ))
		return NoValue
	}
	return b.Emit(&UnpackMask{X: x}, typ, Meta{})
}

// Intrinsic emits a target primitive call.
func (b *Builder) Intrinsic(name string, imms []int64, args []ValueHandle, resultType Type, meta Meta) ValueHandle {
	return b.Emit(&Intrinsic{Name: name, Imms: imms, Args: args}, resultType, meta)
}

func checkCast(kind CastKind, from, to Type) error {
	if kind != CastBitcast && Lanes(from) != Lanes(to) {
		return fmt.Errorf("%s changes lane count: %s to %s", kind, from, to)
	}
	fromBits, toBits := ElemBits(from), ElemBits(to)
	switch kind {
	case CastBitcast:
		if Lanes(from)*fromBits != Lanes(to)*toBits {
			return fmt.Errorf("bitcast size mismatch: %s to %s", from, to)
		}
		if IsPointer(from) || IsPointer(to) {
			return fmt.Errorf("bitcast of pointer type: %s to %s", from, to)
		}
	case CastZExt:
		if toBits < fromBits {
			return fmt.Errorf("zext narrows: %s to %s", from, to)
		}
	case CastTrunc:
		if toBits > fromBits {
			return fmt.Errorf("trunc widens: %s to %s", from, to)
		}
	case CastPtrToInt:
		if !IsPointer(from) || fromBits != toBits {
			return fmt.Errorf("invalid ptrtoint: %s to %s", from, to)
		}
	case CastIntToPtr:
		if !IsPointer(to) || fromBits != toBits {
			return fmt.Errorf("invalid inttoptr: %s to %s", from, to)
		}
	}
	return nil
}
