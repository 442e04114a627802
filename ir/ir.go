// Package ir defines the intermediate representation consumed and produced
// by memlower.
//
// The IR is a flat SSA instruction list per function. Memory operations
// produced by upstream passes are rewritten in place into hardware message
// intrinsics; no other instruction is reordered.
package ir

import (
	"fmt"
)

// Module holds a set of functions lowered together.
type Module struct {
	Functions []*Function
}

// Type represents a first-class value type.
// All implementations are comparable, so types can be compared with ==.
type Type interface {
	typeInner()
	String() string
}

// ScalarKind represents scalar type kinds.
type ScalarKind uint8

const (
	ScalarInt   ScalarKind = iota // Signless integer (i1 is the boolean)
	ScalarFloat                   // IEEE floating point
)

// ScalarType represents integer and floating point scalars.
type ScalarType struct {
	Kind ScalarKind
	Bits uint16
}

func (ScalarType) typeInner() {}

// AddressSpace represents the logical address space a pointer is tagged with.
type AddressSpace uint8

const (
	SpaceGlobal  AddressSpace = iota // global-default
	SpaceGeneric                     // global-generic (flat)
	SpaceLocal                       // work-group shared memory
	SpacePrivate                     // per work-item
)

// PointerType represents an opaque pointer.
type PointerType struct {
	Space AddressSpace
	Bits  uint8 // 32 or 64 for supported targets
}

func (PointerType) typeInner() {}

// VectorType represents a vector of scalars or pointers.
type VectorType struct {
	Lanes int
	Elem  Type // ScalarType or PointerType
}

func (VectorType) typeInner() {}

// Common scalar types.
var (
	Bool = ScalarType{Kind: ScalarInt, Bits: 1}
	I8   = ScalarType{Kind: ScalarInt, Bits: 8}
	I16  = ScalarType{Kind: ScalarInt, Bits: 16}
	I32  = ScalarType{Kind: ScalarInt, Bits: 32}
	I64  = ScalarType{Kind: ScalarInt, Bits: 64}
	F16  = ScalarType{Kind: ScalarFloat, Bits: 16}
	F32  = ScalarType{Kind: ScalarFloat, Bits: 32}
	F64  = ScalarType{Kind: ScalarFloat, Bits: 64}
)

// Int returns the integer scalar type of the given bit width.
func Int(bits int) ScalarType {
	return ScalarType{Kind: ScalarInt, Bits: uint16(bits)}
}

// Vec returns a vector type.
func Vec(lanes int, elem Type) VectorType {
	return VectorType{Lanes: lanes, Elem: elem}
}

// Ptr returns a pointer type.
func Ptr(space AddressSpace, bits int) PointerType {
	return PointerType{Space: space, Bits: uint8(bits)}
}

// IsBool reports whether t is i1 or a vector of i1.
func IsBool(t Type) bool {
	return ElemType(t) == Bool
}

// IsPointer reports whether t is a pointer or a vector of pointers.
func IsPointer(t Type) bool {
	_, ok := ElemType(t).(PointerType)
	return ok
}

// ElemType returns the element type of a vector, or t itself.
func ElemType(t Type) Type {
	if v, ok := t.(VectorType); ok {
		return v.Elem
	}
	return t
}

// Lanes returns the number of vector lanes, 1 for scalars and pointers.
func Lanes(t Type) int {
	if v, ok := t.(VectorType); ok {
		return v.Lanes
	}
	return 1
}

// ElemBits returns the bit width of a single element.
func ElemBits(t Type) int {
	switch e := ElemType(t).(type) {
	case ScalarType:
		return int(e.Bits)
	case PointerType:
		return int(e.Bits)
	}
	return 0
}

// ByteSize returns the in-memory size of t.
// Boolean vectors are stored packed, one bit per lane, in their mask
// container; a scalar boolean occupies one byte.
func ByteSize(t Type) int {
	if IsBool(t) {
		return ByteSize(MaskContainer(Lanes(t)))
	}
	return Lanes(t) * ElemBits(t) / 8
}

// ElemBytes returns the memory size of one element when elements are
// addressed individually; booleans take one byte.
func ElemBytes(t Type) int {
	return max(1, ElemBits(t)/8)
}

// WithElem returns t with its element type replaced, preserving shape.
func WithElem(t, elem Type) Type {
	if v, ok := t.(VectorType); ok {
		return VectorType{Lanes: v.Lanes, Elem: elem}
	}
	return elem
}

// Ordering represents an atomic memory ordering.
type Ordering uint8

const (
	NotAtomic Ordering = iota
	Unordered
	Monotonic
	Acquire
	Release
	AcqRel
	SeqCst
)

var orderingNames = [...]string{
	NotAtomic: "notatomic",
	Unordered: "unordered",
	Monotonic: "monotonic",
	Acquire:   "acquire",
	Release:   "release",
	AcqRel:    "acq_rel",
	SeqCst:    "seq_cst",
}

func (o Ordering) String() string {
	if int(o) < len(orderingNames) {
		return orderingNames[o]
	}
	return fmt.Sprintf("ordering(%d)", o)
}

// ParseOrdering parses an ordering name as printed by Ordering.String.
// "relaxed" is accepted as an alias for monotonic.
func ParseOrdering(s string) (Ordering, error) {
	switch s {
	case "":
		return NotAtomic, nil
	case "relaxed":
		return Monotonic, nil
	}
	for i, name := range orderingNames {
		if name == s {
			return Ordering(i), nil
		}
	}
	return NotAtomic, fmt.Errorf("unknown ordering %q", s)
}

var spaceNames = [...]string{
	SpaceGlobal:  "global",
	SpaceGeneric: "generic",
	SpaceLocal:   "local",
	SpacePrivate: "private",
}

func (s AddressSpace) String() string {
	if int(s) < len(spaceNames) {
		return spaceNames[s]
	}
	return fmt.Sprintf("space(%d)", s)
}

// ParseAddressSpace parses an address space name.
func ParseAddressSpace(s string) (AddressSpace, error) {
	for i, name := range spaceNames {
		if name == s {
			return AddressSpace(i), nil
		}
	}
	return SpaceGlobal, fmt.Errorf("unknown address space %q", s)
}
