package ir

import (
	"fmt"
)

// Env maps values to their lane bit patterns during evaluation.
type Env map[ValueHandle][]uint64

// Eval interprets the data-movement instructions of insts in order,
// recording every result in env. Arguments must already be bound in env;
// constants are read from the function. Memory operations and intrinsics
// cannot be evaluated and return an error.
//
// Lanes are little-endian: lane 0 occupies the lowest bits when a value is
// reinterpreted by a bitcast or a mask pack.
//
//nolint:gocyclo,cyclop // one case per op kind
func Eval(fn *Function, insts []Instruction, env Env) error {
	for i := range insts {
		inst := &insts[i]
		var out []uint64
		var err error

		switch o := inst.Op.(type) {
		case *Cast:
			out, err = evalCast(fn, env, o, fn.TypeOf(inst.Result))
		case *Binary:
			x, y, e := evalPair(fn, env, o.X, o.Y)
			if e != nil {
				return e
			}
			width := ElemBits(fn.TypeOf(o.X))
			out = make([]uint64, len(x))
			for l := range x {
				if o.Kind == BinaryMul {
					out[l] = mask(x[l]*y[l], width)
				} else {
					out[l] = mask(x[l]+y[l], width)
				}
			}
		case *Compare:
			x, y, e := evalPair(fn, env, o.X, o.Y)
			if e != nil {
				return e
			}
			out = make([]uint64, len(x))
			for l := range x {
				if x[l] == y[l] {
					out[l] = 1
				}
			}
		case *Select:
			out, err = evalSelect(fn, env, o)
		case *Shuffle:
			x, e := lookup(fn, env, o.X)
			if e != nil {
				return e
			}
			out = make([]uint64, len(o.Indices))
			for l, idx := range o.Indices {
				out[l] = x[idx]
			}
		case *Concat:
			for _, part := range o.Parts {
				x, e := lookup(fn, env, part)
				if e != nil {
					return e
				}
				out = append(out, x...)
			}
		case *Splat:
			x, e := lookup(fn, env, o.X)
			if e != nil {
				return e
			}
			out = make([]uint64, Lanes(fn.TypeOf(inst.Result)))
			for l := range out {
				out[l] = x[0]
			}
		case *PackMask:
			x, e := lookup(fn, env, o.X)
			if e != nil {
				return e
			}
			container := fn.TypeOf(inst.Result)
			words := make([]uint64, (ByteSize(container)*8+63)/64)
			for l, v := range x {
				setBits(words, l, 1, v&1)
			}
			out = unpackLanes(words, ElemBits(container), Lanes(container))
		case *UnpackMask:
			x, e := lookup(fn, env, o.X)
			if e != nil {
				return e
			}
			words := packLanes(x, ElemBits(fn.TypeOf(o.X)))
			out = unpackLanes(words, 1, Lanes(fn.TypeOf(inst.Result)))
		default:
			return fmt.Errorf("instruction %d: cannot evaluate %T", i, inst.Op)
		}
		if err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		if inst.Result != NoValue {
			env[inst.Result] = out
		}
	}
	return nil
}

func evalCast(fn *Function, env Env, c *Cast, to Type) ([]uint64, error) {
	x, err := lookup(fn, env, c.X)
	if err != nil {
		return nil, err
	}
	from := fn.TypeOf(c.X)
	switch c.Kind {
	case CastBitcast:
		words := packLanes(x, ElemBits(from))
		return unpackLanes(words, ElemBits(to), Lanes(to)), nil
	case CastTrunc:
		out := make([]uint64, len(x))
		for l := range x {
			out[l] = mask(x[l], ElemBits(to))
		}
		return out, nil
	case CastZExt, CastPtrToInt, CastIntToPtr:
		return append([]uint64(nil), x...), nil
	}
	return nil, fmt.Errorf("unknown cast %d", c.Kind)
}

func evalSelect(fn *Function, env Env, s *Select) ([]uint64, error) {
	cond, err := lookup(fn, env, s.Cond)
	if err != nil {
		return nil, err
	}
	x, y, err := evalPair(fn, env, s.X, s.Y)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(x))
	for l := range x {
		c := cond[0]
		if len(cond) > 1 {
			c = cond[l]
		}
		if c&1 != 0 {
			out[l] = x[l]
		} else {
			out[l] = y[l]
		}
	}
	return out, nil
}

func evalPair(fn *Function, env Env, a, b ValueHandle) ([]uint64, []uint64, error) {
	x, err := lookup(fn, env, a)
	if err != nil {
		return nil, nil, err
	}
	y, err := lookup(fn, env, b)
	if err != nil {
		return nil, nil, err
	}
	if len(x) != len(y) {
		return nil, nil, fmt.Errorf("lane count mismatch: %d and %d", len(x), len(y))
	}
	return x, y, nil
}

func lookup(fn *Function, env Env, h ValueHandle) ([]uint64, error) {
	if bits, ok := fn.ConstBits(h); ok {
		return bits, nil
	}
	if v, ok := env[h]; ok {
		return v, nil
	}
	if int(h) < len(fn.Values) {
		if _, ok := fn.Values[h].Def.(UndefDef); ok {
			return make([]uint64, Lanes(fn.TypeOf(h))), nil
		}
	}
	return nil, fmt.Errorf("value %%%d is not bound", h)
}

func mask(v uint64, width int) uint64 {
	if width >= 64 {
		return v
	}
	return v & (1<<uint(width) - 1)
}

// packLanes concatenates lanes of the given width into a bit string.
func packLanes(lanes []uint64, width int) []uint64 {
	words := make([]uint64, (len(lanes)*width+63)/64)
	for l, v := range lanes {
		setBits(words, l, width, mask(v, width))
	}
	return words
}

// unpackLanes splits a bit string into n lanes of the given width.
func unpackLanes(words []uint64, width, n int) []uint64 {
	out := make([]uint64, n)
	for l := range out {
		out[l] = getBits(words, l*width, width)
	}
	return out
}

func setBits(words []uint64, lane, width int, v uint64) {
	pos := lane * width
	for b := 0; b < width; b++ {
		if v>>uint(b)&1 != 0 {
			words[(pos+b)/64] |= 1 << uint((pos+b)%64)
		}
	}
}

func getBits(words []uint64, pos, width int) uint64 {
	var v uint64
	for b := 0; b < width; b++ {
		if words[(pos+b)/64]>>uint((pos+b)%64)&1 != 0 {
			v |= 1 << uint(b)
		}
	}
	return v
}
