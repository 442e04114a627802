package ir

import (
	"fmt"
)

// ValidationError represents a validation error.
type ValidationError struct {
	Message string
	// Optional context
	Function    string
	Value       *ValueHandle
	Instruction int
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Function != "" {
		if e.Value != nil {
			return fmt.Sprintf("in function %s, value %%%d: %s", e.Function, *e.Value, e.Message)
		}
		if e.Instruction >= 0 {
			return fmt.Sprintf("in function %s, instruction %d: %s", e.Function, e.Instruction, e.Message)
		}
		return fmt.Sprintf("in function %s: %s", e.Function, e.Message)
	}
	return e.Message
}

// Validator validates IR functions.
type Validator struct {
	errors  []ValidationError
	context validationContext
}

// validationContext holds current validation context.
type validationContext struct {
	function *Function
	// defined marks values usable by the instruction being checked.
	defined []bool
}

// Validate checks every function of the module for structural correctness.
// Returns validation errors if any, or nil if the module is valid.
func Validate(module *Module) ([]ValidationError, error) {
	if module == nil {
		return nil, fmt.Errorf("module is nil")
	}

	v := &Validator{errors: make([]ValidationError, 0)}
	names := make(map[string]bool)
	for _, fn := range module.Functions {
		if fn == nil {
			v.addError("module contains a nil function")
			continue
		}
		if names[fn.Name] {
			v.addError(fmt.Sprintf("duplicate function name %q", fn.Name))
		}
		names[fn.Name] = true
		v.ValidateFunction(fn)
	}

	if len(v.errors) > 0 {
		return v.errors, nil
	}
	return nil, nil
}

// ValidateFunction validates a single function and returns the errors
// accumulated so far.
func (v *Validator) ValidateFunction(fn *Function) []ValidationError {
	v.context = validationContext{
		function: fn,
		defined:  make([]bool, len(fn.Values)),
	}

	for i := range fn.Values {
		v.validateValue(ValueHandle(i), &fn.Values[i])
	}

	for _, arg := range fn.Args {
		if !v.isValidValueHandle(arg) {
			v.addErrorInFunction(fmt.Sprintf("argument handle %d does not exist", arg))
			continue
		}
		if _, ok := fn.Values[arg].Def.(ArgumentDef); !ok {
			v.addErrorInValue(arg, "listed as argument but not defined as one")
		}
	}

	for i := range fn.Body {
		v.validateInstruction(i, &fn.Body[i])
	}
	return v.errors
}

// validateValue checks a value's type and, for non-results, marks it
// defined from function entry.
func (v *Validator) validateValue(handle ValueHandle, val *Value) {
	if val.Type == nil {
		v.addErrorInValue(handle, "value has nil type")
		return
	}
	v.validateType(handle, val.Type)

	switch def := val.Def.(type) {
	case ArgumentDef, UndefDef:
		v.context.defined[handle] = true
	case ConstantDef:
		v.context.defined[handle] = true
		if len(def.Bits) != Lanes(val.Type) {
			v.addErrorInValue(handle, fmt.Sprintf("constant has %d lanes, type %s needs %d", len(def.Bits), val.Type, Lanes(val.Type)))
		}
	case ResultDef:
	case nil:
		v.addErrorInValue(handle, "value has no definition")
	}
}

func (v *Validator) validateType(handle ValueHandle, typ Type) {
	switch t := typ.(type) {
	case ScalarType:
		if t.Kind == ScalarFloat && t.Bits != 16 && t.Bits != 32 && t.Bits != 64 {
			v.addErrorInValue(handle, fmt.Sprintf("float width must be 16, 32 or 64 bits, got %d", t.Bits))
		}
		if t.Kind == ScalarInt && t.Bits != 1 && t.Bits != 8 && t.Bits != 16 && t.Bits != 32 && t.Bits != 64 {
			v.addErrorInValue(handle, fmt.Sprintf("integer width must be 1, 8, 16, 32 or 64 bits, got %d", t.Bits))
		}
	case PointerType:
		// Pointer widths other than 32/64 are rejected by lowering, not here.
	case VectorType:
		if t.Lanes <= 0 {
			v.addErrorInValue(handle, fmt.Sprintf("vector lane count must be positive, got %d", t.Lanes))
		}
		if _, nested := t.Elem.(VectorType); nested || t.Elem == nil {
			v.addErrorInValue(handle, "vector element must be a scalar or pointer")
			return
		}
		v.validateType(handle, t.Elem)
	}
}

// validateInstruction checks operands are defined before use and that
// inferable result types match the declared ones.
//
//nolint:gocognit,gocyclo,cyclop // one check per op kind
func (v *Validator) validateInstruction(index int, inst *Instruction) {
	fn := v.context.function
	if inst.Op == nil {
		v.addErrorInInstruction(index, "instruction has nil op")
		return
	}

	for _, slot := range inst.Op.Operands() {
		h := *slot
		if h == NoValue {
			continue
		}
		if !v.isValidValueHandle(h) {
			v.addErrorInInstruction(index, fmt.Sprintf("operand %%%d does not exist", h))
			return
		}
		if !v.context.defined[h] {
			v.addErrorInInstruction(index, fmt.Sprintf("operand %%%d used before definition", h))
		}
	}

	switch o := inst.Op.(type) {
	case *Load:
		v.requirePointer(index, o.Ptr, "load pointer")
	case *Store:
		v.requirePointer(index, o.Ptr, "store pointer")
		v.requireValue(index, o.Value, "store value")
	case *AtomicRMW:
		v.requirePointer(index, o.Ptr, "atomicrmw pointer")
		v.requireValue(index, o.Value, "atomicrmw value")
		if inst.Meta.Ordering == NotAtomic {
			v.addErrorInInstruction(index, "atomicrmw requires an atomic ordering")
		}
	case *AtomicCmpXchg:
		v.requirePointer(index, o.Ptr, "cmpxchg pointer")
		v.requireValue(index, o.Expected, "cmpxchg expected value")
		v.requireValue(index, o.New, "cmpxchg new value")
		if inst.Meta.Ordering == NotAtomic {
			v.addErrorInInstruction(index, "cmpxchg requires an atomic ordering")
		}
		if o.Success != NoValue {
			if !v.isValidValueHandle(o.Success) {
				v.addErrorInInstruction(index, fmt.Sprintf("cmpxchg success %%%d does not exist", o.Success))
			} else {
				if fn.TypeOf(o.Success) != Type(Bool) {
					v.addErrorInInstruction(index, "cmpxchg success must be i1")
				}
				v.context.defined[o.Success] = true
			}
		}
	case *Fence:
		if inst.Meta.Ordering == NotAtomic {
			v.addErrorInInstruction(index, "fence requires an atomic ordering")
		}
	case *Gather:
		v.requirePointer(index, o.Ptrs, "gather pointers")
	case *Scatter:
		v.requireValue(index, o.Value, "scatter value")
		v.requirePointer(index, o.Ptrs, "scatter pointers")
	}

	want, inferable, err := ResolveResultType(fn, inst.Op)
	if err != nil {
		v.addErrorInInstruction(index, err.Error())
	} else if inferable {
		v.checkResult(index, inst, want)
	} else if inst.Result == NoValue {
		switch inst.Op.(type) {
		case *Load, *Gather:
			v.addErrorInInstruction(index, "instruction result is missing")
		}
	}

	if inst.Result != NoValue && v.isValidValueHandle(inst.Result) {
		if _, ok := fn.Values[inst.Result].Def.(ResultDef); !ok {
			v.addErrorInInstruction(index, fmt.Sprintf("result %%%d is not an instruction result", inst.Result))
		}
		if v.context.defined[inst.Result] {
			v.addErrorInInstruction(index, fmt.Sprintf("result %%%d defined twice", inst.Result))
		}
		v.context.defined[inst.Result] = true
	}
}

func (v *Validator) checkResult(index int, inst *Instruction, want Type) {
	fn := v.context.function
	switch {
	case want == nil && inst.Result != NoValue:
		v.addErrorInInstruction(index, "instruction does not produce a value")
	case want != nil && inst.Result == NoValue:
		v.addErrorInInstruction(index, "instruction result is missing")
	case want != nil && v.isValidValueHandle(inst.Result) && fn.TypeOf(inst.Result) != want:
		v.addErrorInInstruction(index, fmt.Sprintf("result type %s, expected %s", fn.TypeOf(inst.Result), want))
	}
}

func (v *Validator) requirePointer(index int, h ValueHandle, what string) {
	if !v.requireValue(index, h, what) {
		return
	}
	if !IsPointer(v.context.function.TypeOf(h)) {
		v.addErrorInInstruction(index, fmt.Sprintf("%s must be a pointer, got %s", what, v.context.function.TypeOf(h)))
	}
}

func (v *Validator) requireValue(index int, h ValueHandle, what string) bool {
	if h == NoValue {
		v.addErrorInInstruction(index, what+" is missing")
		return false
	}
	return v.isValidValueHandle(h)
}

func (v *Validator) isValidValueHandle(handle ValueHandle) bool {
	return int(handle) < len(v.context.function.Values)
}

func (v *Validator) addError(msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:     msg,
		Instruction: -1,
	})
}

func (v *Validator) addErrorInFunction(msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:     msg,
		Function:    v.context.function.Name,
		Instruction: -1,
	})
}

func (v *Validator) addErrorInValue(handle ValueHandle, msg string) {
	h := handle
	v.errors = append(v.errors, ValidationError{
		Message:     msg,
		Function:    v.context.function.Name,
		Value:       &h,
		Instruction: -1,
	})
}

func (v *Validator) addErrorInInstruction(index int, msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:     msg,
		Function:    v.context.function.Name,
		Instruction: index,
	})
}
