package main

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/memlower/ir"
)

// functionFile is the YAML description of one function.
//
//	name: kernel
//	args:
//	  - {name: p, type: "ptr<global,64>"}
//	body:
//	  - {op: load, result: v, type: "<4 x f32>", ptr: p, align: 16}
//	  - {op: ret, value: v}
type functionFile struct {
	Name string    `yaml:"name"`
	Args []argSpec `yaml:"args"`
	Body []opSpec  `yaml:"body"`
}

type argSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type opSpec struct {
	Op     string `yaml:"op"`
	Result string `yaml:"result"`
	Type   string `yaml:"type"`

	Ptr      string `yaml:"ptr"`
	Ptrs     string `yaml:"ptrs"`
	Value    string `yaml:"value"`
	Expected string `yaml:"expected"`
	New      string `yaml:"new"`
	Success  string `yaml:"success"`
	Mask     string `yaml:"mask"`
	Passthru string `yaml:"passthru"`

	Fun   string   `yaml:"fun"`
	Space string   `yaml:"space"`
	Bits  []uint64 `yaml:"bits"`

	Align       uint32 `yaml:"align"`
	NonTemporal bool   `yaml:"nontemporal"`
	Ordering    string `yaml:"ordering"`
	Scope       string `yaml:"scope"`
}

// loader builds a function from its description, resolving operand names
// in definition order.
type loader struct {
	fn    *ir.Function
	names map[string]ir.ValueHandle
}

// LoadFunction parses a YAML function description.
func LoadFunction(data []byte) (*ir.Function, error) {
	var file functionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse function: %w", err)
	}
	if file.Name == "" {
		return nil, fmt.Errorf("function has no name")
	}

	l := &loader{fn: ir.NewFunction(file.Name), names: make(map[string]ir.ValueHandle)}
	for _, arg := range file.Args {
		typ, err := ir.ParseType(arg.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", arg.Name, err)
		}
		if err := l.define(arg.Name, l.fn.AddArg(arg.Name, typ)); err != nil {
			return nil, err
		}
	}
	for i, spec := range file.Body {
		if err := l.op(spec); err != nil {
			return nil, fmt.Errorf("body[%d] (%s): %w", i, spec.Op, err)
		}
	}
	return l.fn, nil
}

func (l *loader) define(name string, h ir.ValueHandle) error {
	if name == "" {
		return nil
	}
	if _, dup := l.names[name]; dup {
		return fmt.Errorf("value %q defined twice", name)
	}
	l.names[name] = h
	l.fn.SetName(h, name)
	return nil
}

// ref resolves an operand name; optional operands may be empty.
func (l *loader) ref(name string, optional bool) (ir.ValueHandle, error) {
	if name == "" {
		if optional {
			return ir.NoValue, nil
		}
		return ir.NoValue, fmt.Errorf("missing operand")
	}
	h, ok := l.names[name]
	if !ok {
		return ir.NoValue, fmt.Errorf("undefined value %q", name)
	}
	return h, nil
}

func (l *loader) refs(names ...string) ([]ir.ValueHandle, error) {
	hs := make([]ir.ValueHandle, len(names))
	for i, name := range names {
		h, err := l.ref(name, false)
		if err != nil {
			return nil, err
		}
		hs[i] = h
	}
	return hs, nil
}

//nolint:gocyclo,cyclop // one case per op
func (l *loader) op(spec opSpec) error {
	ordering, err := ir.ParseOrdering(spec.Ordering)
	if err != nil {
		return err
	}
	meta := ir.Meta{Align: spec.Align, NonTemporal: spec.NonTemporal, Ordering: ordering, Scope: spec.Scope}

	var typ ir.Type
	if spec.Type != "" {
		if typ, err = ir.ParseType(spec.Type); err != nil {
			return err
		}
	}
	needType := func() error {
		if typ == nil {
			return fmt.Errorf("missing result type")
		}
		return nil
	}

	var op ir.Op
	switch spec.Op {
	case "const":
		if err := needType(); err != nil {
			return err
		}
		return l.define(spec.Result, l.fn.Const(typ, spec.Bits...))
	case "undef":
		if err := needType(); err != nil {
			return err
		}
		return l.define(spec.Result, l.fn.Undef(typ))
	case "load":
		if err := needType(); err != nil {
			return err
		}
		ptr, err := l.ref(spec.Ptr, false)
		if err != nil {
			return err
		}
		op = &ir.Load{Ptr: ptr}
	case "store":
		hs, err := l.refs(spec.Ptr, spec.Value)
		if err != nil {
			return err
		}
		op, typ = &ir.Store{Ptr: hs[0], Value: hs[1]}, nil
	case "atomicrmw":
		fun, err := ir.ParseRMWOp(spec.Fun)
		if err != nil {
			return err
		}
		hs, err := l.refs(spec.Ptr, spec.Value)
		if err != nil {
			return err
		}
		op, typ = &ir.AtomicRMW{Fun: fun, Ptr: hs[0], Value: hs[1]}, l.fn.TypeOf(hs[1])
	case "cmpxchg":
		hs, err := l.refs(spec.Ptr, spec.Expected, spec.New)
		if err != nil {
			return err
		}
		success := l.fn.NewResult(ir.Bool)
		if err := l.define(spec.Success, success); err != nil {
			return err
		}
		op = &ir.AtomicCmpXchg{Ptr: hs[0], Expected: hs[1], New: hs[2], Success: success}
		typ = l.fn.TypeOf(hs[2])
	case "fence":
		space, err := ir.ParseAddressSpace(spec.Space)
		if err != nil {
			return err
		}
		op, typ = &ir.Fence{Space: space}, nil
	case "gather":
		if err := needType(); err != nil {
			return err
		}
		ptrs, err := l.ref(spec.Ptrs, false)
		if err != nil {
			return err
		}
		mask, err := l.ref(spec.Mask, true)
		if err != nil {
			return err
		}
		passthru, err := l.ref(spec.Passthru, true)
		if err != nil {
			return err
		}
		op = &ir.Gather{Ptrs: ptrs, Mask: mask, Passthru: passthru}
	case "scatter":
		hs, err := l.refs(spec.Value, spec.Ptrs)
		if err != nil {
			return err
		}
		mask, err := l.ref(spec.Mask, true)
		if err != nil {
			return err
		}
		op, typ = &ir.Scatter{Value: hs[0], Ptrs: hs[1], Mask: mask}, nil
	case "ret":
		v, err := l.ref(spec.Value, true)
		if err != nil {
			return err
		}
		op, typ = &ir.Return{Value: v}, nil
	default:
		return fmt.Errorf("unknown op %q", spec.Op)
	}

	result := l.fn.Append(op, typ, meta)
	if result == ir.NoValue {
		return nil
	}
	return l.define(spec.Result, result)
}
