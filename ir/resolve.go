package ir

import "fmt"

// ResolveResultType computes the result type of an instruction whose result
// type follows from its operands. The second return value is false for ops
// whose result type must be given explicitly (loads, casts, splats,
// unpacks, intrinsics and gathers without passthru).
//
//nolint:gocyclo,cyclop // Type resolution requires handling all op kinds
func ResolveResultType(fn *Function, op Op) (Type, bool, error) {
	var optional bool
	switch op.(type) {
	case *Return, *Gather, *Scatter:
		optional = true
	}
	for _, slot := range op.Operands() {
		if *slot == NoValue {
			if optional {
				continue
			}
			return nil, false, fmt.Errorf("%T has a missing operand", op)
		}
		if int(*slot) >= len(fn.Values) {
			return nil, false, fmt.Errorf("operand %d out of range (max %d)", *slot, len(fn.Values))
		}
	}

	switch o := op.(type) {
	case *Binary:
		return fn.TypeOf(o.X), true, nil
	case *Compare:
		return WithElem(fn.TypeOf(o.X), Bool), true, nil
	case *Select:
		return fn.TypeOf(o.X), true, nil
	case *Shuffle:
		return resolveShuffleType(fn, o)
	case *Concat:
		return resolveConcatType(fn, o)
	case *PackMask:
		return MaskContainer(Lanes(fn.TypeOf(o.X))), true, nil
	case *AtomicRMW:
		return fn.TypeOf(o.Value), true, nil
	case *AtomicCmpXchg:
		return fn.TypeOf(o.New), true, nil
	case *Gather:
		if o.Passthru == NoValue {
			return nil, false, nil
		}
		return fn.TypeOf(o.Passthru), true, nil
	case *Store, *Scatter, *Fence, *Return:
		return nil, true, nil
	}
	return nil, false, nil
}

func resolveShuffleType(fn *Function, s *Shuffle) (Type, bool, error) {
	src := fn.TypeOf(s.X)
	lanes := Lanes(src)
	for _, idx := range s.Indices {
		if idx < 0 || idx >= lanes {
			return nil, false, fmt.Errorf("shuffle index %d out of range for %s", idx, src)
		}
	}
	if len(s.Indices) == 0 {
		return nil, false, fmt.Errorf("shuffle with no indices")
	}
	return Vec(len(s.Indices), ElemType(src)), true, nil
}

func resolveConcatType(fn *Function, c *Concat) (Type, bool, error) {
	if len(c.Parts) == 0 {
		return nil, false, fmt.Errorf("concat with no parts")
	}
	elem := ElemType(fn.TypeOf(c.Parts[0]))
	lanes := 0
	for _, part := range c.Parts {
		t := fn.TypeOf(part)
		if ElemType(t) != elem {
			return nil, false, fmt.Errorf("concat mixes %s and %s", elem, ElemType(t))
		}
		lanes += Lanes(t)
	}
	return Vec(lanes, elem), true, nil
}

// MaskContainer returns the smallest byte-multiple integer container
// holding one bit per lane: a scalar integer when it fits a 1, 2, 4 or
// 8 byte register, otherwise a byte vector.
func MaskContainer(lanes int) Type {
	bytes := (lanes + 7) / 8
	switch bytes {
	case 1, 2, 4, 8:
		return Int(bytes * 8)
	}
	return Vec(bytes, I8)
}
