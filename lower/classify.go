package lower

import (
	"fmt"

	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/message"
	"github.com/gogpu/memlower/target"
)

// OpKind is the kind of a memory operation.
type OpKind uint8

const (
	OpLoad OpKind = iota
	OpStore
	OpAtomicRMW
	OpAtomicCmpXchg
	OpFence
	OpGather
	OpScatter
)

var opKindNames = [...]string{
	OpLoad:          "load",
	OpStore:         "store",
	OpAtomicRMW:     "atomicrmw",
	OpAtomicCmpXchg: "cmpxchg",
	OpFence:         "fence",
	OpGather:        "gather",
	OpScatter:       "scatter",
}

func (k OpKind) String() string {
	if int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return fmt.Sprintf("op(%d)", k)
}

// Class is the classification of one memory operation.
type Class struct {
	Op        OpKind
	Atomicity target.Atomicity
	Space     target.HWAddrSpace
	// Logical is the pointer's address space, or the fenced space of a
	// stand-alone fence.
	Logical ir.AddressSpace
	// Ptr is the pointer operand, NoValue for fences.
	Ptr ir.ValueHandle
}

// Classify maps a memory operation to its atomicity and hardware address
// space. ok is false for instructions that are not memory operations.
func Classify(fn *ir.Function, inst *ir.Instruction) (c Class, ok bool, err error) {
	switch op := inst.Op.(type) {
	case *ir.Load:
		c = Class{Op: OpLoad, Ptr: op.Ptr}
		if inst.Meta.Ordering != ir.NotAtomic {
			c.Atomicity = target.Atomic
		}
	case *ir.Store:
		c = Class{Op: OpStore, Ptr: op.Ptr}
		if inst.Meta.Ordering != ir.NotAtomic {
			c.Atomicity = target.Atomic
		}
	case *ir.AtomicRMW:
		c = Class{Op: OpAtomicRMW, Atomicity: target.Atomic, Ptr: op.Ptr}
	case *ir.AtomicCmpXchg:
		c = Class{Op: OpAtomicCmpXchg, Atomicity: target.Atomic, Ptr: op.Ptr}
	case *ir.Gather:
		c = Class{Op: OpGather, Ptr: op.Ptrs}
	case *ir.Scatter:
		c = Class{Op: OpScatter, Ptr: op.Ptrs}
	case *ir.Fence:
		c = Class{Op: OpFence, Atomicity: target.Atomic, Logical: op.Space, Ptr: ir.NoValue, Space: target.A64}
		if op.Space == ir.SpaceLocal {
			c.Space = target.SLM
		}
		return c, true, nil
	default:
		return Class{}, false, nil
	}

	if c.Ptr == ir.NoValue || int(c.Ptr) >= len(fn.Values) {
		return c, true, fmt.Errorf("%w: %s without pointer operand", message.ErrShapeMismatch, c.Op)
	}
	ptr, isPtr := ir.ElemType(fn.TypeOf(c.Ptr)).(ir.PointerType)
	if !isPtr {
		return c, true, fmt.Errorf("%w: %s through non-pointer %s", message.ErrUnsupported, c.Op, fn.TypeOf(c.Ptr))
	}
	c.Logical = ptr.Space
	switch {
	case ptr.Space == ir.SpaceLocal:
		c.Space = target.SLM
	case ptr.Bits == 32:
		c.Space = target.A32
	case ptr.Bits == 64:
		c.Space = target.A64
	default:
		return c, true, fmt.Errorf("%w: %d-bit pointer", message.ErrUnsupported, ptr.Bits)
	}
	return c, true, nil
}
