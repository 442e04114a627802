package ir

// ValueHandle references a value in a function's value arena.
type ValueHandle uint32

// NoValue marks an absent optional operand or result.
const NoValue = ^ValueHandle(0)

// Value represents an SSA value.
type Value struct {
	Name string
	Type Type
	Def  ValueDef
}

// ValueDef describes where a value comes from.
type ValueDef interface {
	valueDef()
}

// ArgumentDef is a function argument.
type ArgumentDef struct {
	Index int
}

func (ArgumentDef) valueDef() {}

// ConstantDef is a constant. Bits holds one entry per lane; floats are
// stored as their IEEE bit patterns and pointers as integers.
type ConstantDef struct {
	Bits []uint64
}

func (ConstantDef) valueDef() {}

// UndefDef is an undefined value of the value's type.
type UndefDef struct{}

func (UndefDef) valueDef() {}

// ResultDef is the result of an instruction in the function body.
type ResultDef struct{}

func (ResultDef) valueDef() {}

// Function represents a function body in IR form.
type Function struct {
	Name   string
	Args   []ValueHandle
	Values []Value
	Body   []Instruction

	consts *ConstRegistry
}

// NewFunction creates an empty function.
func NewFunction(name string) *Function {
	return &Function{
		Name:   name,
		Values: make([]Value, 0, 16),
		Body:   make([]Instruction, 0, 16),
	}
}

// AddArg appends a function argument.
func (f *Function) AddArg(name string, typ Type) ValueHandle {
	h := f.newValue(name, typ, ArgumentDef{Index: len(f.Args)})
	f.Args = append(f.Args, h)
	return h
}

// Const returns a constant of the given type, reusing an identical one
// when it exists. A single lane value for a vector type is splatted.
func (f *Function) Const(typ Type, bits ...uint64) ValueHandle {
	lanes := Lanes(typ)
	if len(bits) == 1 && lanes > 1 {
		splat := make([]uint64, lanes)
		for i := range splat {
			splat[i] = bits[0]
		}
		bits = splat
	}
	if f.consts == nil {
		f.consts = NewConstRegistry()
	}
	return f.consts.GetOrCreate(typ, bits, func() ValueHandle {
		return f.newValue("", typ, ConstantDef{Bits: bits})
	})
}

// Undef adds an undefined value of the given type.
func (f *Function) Undef(typ Type) ValueHandle {
	return f.newValue("", typ, UndefDef{})
}

// Append appends an instruction to the body and returns its result,
// or NoValue when resultType is nil.
func (f *Function) Append(op Op, resultType Type, meta Meta) ValueHandle {
	result := NoValue
	if resultType != nil {
		result = f.newValue("", resultType, ResultDef{})
	}
	f.Body = append(f.Body, Instruction{Op: op, Result: result, Meta: meta})
	return result
}

// NewResult allocates a result value without placing an instruction.
// Used by builders that assemble instructions out of line.
func (f *Function) NewResult(typ Type) ValueHandle {
	return f.newValue("", typ, ResultDef{})
}

// SetName sets a debug name on a value.
func (f *Function) SetName(h ValueHandle, name string) {
	f.Values[h].Name = name
}

// TypeOf returns the type of a value.
func (f *Function) TypeOf(h ValueHandle) Type {
	return f.Values[h].Type
}

// ConstBits returns the lane bits of a constant value.
func (f *Function) ConstBits(h ValueHandle) ([]uint64, bool) {
	if h == NoValue || int(h) >= len(f.Values) {
		return nil, false
	}
	c, ok := f.Values[h].Def.(ConstantDef)
	return c.Bits, ok
}

// IsConstInt reports whether h is a constant whose every lane equals v.
func (f *Function) IsConstInt(h ValueHandle, v uint64) bool {
	bits, ok := f.ConstBits(h)
	if !ok || len(bits) == 0 {
		return false
	}
	if s, ok := ElemType(f.TypeOf(h)).(ScalarType); !ok || s.Kind != ScalarInt {
		return false
	}
	for _, b := range bits {
		if b != v {
			return false
		}
	}
	return true
}

// Checkpoint returns a mark of the value arena for Rollback.
func (f *Function) Checkpoint() int {
	return len(f.Values)
}

// Rollback discards every value allocated after checkpoint, including
// constants remembered by the registry.
func (f *Function) Rollback(checkpoint int) {
	if checkpoint >= len(f.Values) {
		return
	}
	f.Values = f.Values[:checkpoint]
	if f.consts != nil {
		f.consts.Forget(ValueHandle(checkpoint))
	}
}

func (f *Function) newValue(name string, typ Type, def ValueDef) ValueHandle {
	h := ValueHandle(len(f.Values))
	f.Values = append(f.Values, Value{Name: name, Type: typ, Def: def})
	return h
}
