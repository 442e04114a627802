package ir

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Print returns a deterministic textual form of fn.
//
// Arguments and instruction results print as %N (their value handle),
// constants inline as #bits (#[a,b,...] for vectors) and undefined values as
// undef. Each instruction with a result is prefixed by "%N:type =".
func Print(fn *Function) string {
	p := printer{fn: fn}
	p.function()
	return p.sb.String()
}

// PrintModule prints every function of m separated by blank lines.
func PrintModule(m *Module) string {
	return strings.Join(lo.Map(m.Functions, func(fn *Function, _ int) string {
		return Print(fn)
	}), "\n")
}

type printer struct {
	fn *Function
	sb strings.Builder
}

func (p *printer) function() {
	args := lo.Map(p.fn.Args, func(h ValueHandle, _ int) string {
		return p.ref(h) + ": " + p.fn.TypeOf(h).String()
	})
	p.sb.WriteString("func @" + p.fn.Name + "(" + strings.Join(args, ", ") + ") {\n")
	for i := range p.fn.Body {
		p.instruction(&p.fn.Body[i])
	}
	p.sb.WriteString("}\n")
}

func (p *printer) instruction(inst *Instruction) {
	p.sb.WriteString("  ")
	if inst.Result != NoValue {
		p.sb.WriteString(p.ref(inst.Result) + ":" + p.fn.TypeOf(inst.Result).String() + " = ")
	}
	p.sb.WriteString(p.op(inst.Op))
	p.meta(inst.Meta)
	p.sb.WriteByte('\n')
}

//nolint:gocyclo,cyclop // one case per op kind
func (p *printer) op(op Op) string {
	switch o := op.(type) {
	case *Load:
		return "load " + p.ref(o.Ptr)
	case *Store:
		return "store " + p.refs(o.Value, o.Ptr)
	case *AtomicRMW:
		return "atomicrmw " + o.Fun.String() + " " + p.refs(o.Ptr, o.Value)
	case *AtomicCmpXchg:
		return "cmpxchg " + p.refs(o.Ptr, o.Expected, o.New) + " success " + p.ref(o.Success)
	case *Fence:
		return "fence " + o.Space.String()
	case *Gather:
		return "gather " + p.refs(o.Ptrs, o.Mask, o.Passthru)
	case *Scatter:
		return "scatter " + p.refs(o.Value, o.Ptrs, o.Mask)
	case *Cast:
		return o.Kind.String() + " " + p.ref(o.X)
	case *Binary:
		return o.Kind.String() + " " + p.refs(o.X, o.Y)
	case *Compare:
		return "icmp eq " + p.refs(o.X, o.Y)
	case *Select:
		return "select " + p.refs(o.Cond, o.X, o.Y)
	case *Shuffle:
		return "shuffle " + p.ref(o.X) + " " + ints(o.Indices)
	case *Concat:
		return "concat " + p.refs(o.Parts...)
	case *Splat:
		return "splat " + p.ref(o.X)
	case *PackMask:
		return "packmask " + p.ref(o.X)
	case *UnpackMask:
		return "unpackmask " + p.ref(o.X)
	case *Return:
		if o.Value == NoValue {
			return "ret"
		}
		return "ret " + p.ref(o.Value)
	case *Intrinsic:
		imms := lo.Map(o.Imms, func(v int64, _ int) string { return strconv.FormatInt(v, 10) })
		return "call @" + o.Name + "[" + strings.Join(imms, ",") + "](" + p.refs(o.Args...) + ")"
	}
	return "unknown"
}

func (p *printer) meta(m Meta) {
	if m.Ordering != NotAtomic {
		p.sb.WriteString(" " + m.Ordering.String())
	}
	if m.Scope != "" {
		p.sb.WriteString(` syncscope("` + m.Scope + `")`)
	}
	if m.Align != 0 {
		p.sb.WriteString(", align " + strconv.FormatUint(uint64(m.Align), 10))
	}
	if m.NonTemporal {
		p.sb.WriteString(", nontemporal")
	}
}

func (p *printer) refs(hs ...ValueHandle) string {
	return strings.Join(lo.Map(hs, func(h ValueHandle, _ int) string { return p.ref(h) }), ", ")
}

func (p *printer) ref(h ValueHandle) string {
	if h == NoValue || int(h) >= len(p.fn.Values) {
		return "none"
	}
	switch def := p.fn.Values[h].Def.(type) {
	case ConstantDef:
		if len(def.Bits) == 1 && Lanes(p.fn.Values[h].Type) == 1 {
			return "#" + strconv.FormatUint(def.Bits[0], 10)
		}
		lanes := lo.Map(def.Bits, func(v uint64, _ int) string { return strconv.FormatUint(v, 10) })
		return "#[" + strings.Join(lanes, ",") + "]"
	case UndefDef:
		return "undef"
	}
	return "%" + strconv.FormatUint(uint64(h), 10)
}

func ints(vs []int) string {
	return "[" + strings.Join(lo.Map(vs, func(v int, _ int) string { return strconv.Itoa(v) }), ",") + "]"
}
