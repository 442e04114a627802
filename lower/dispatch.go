package lower

import (
	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/target"
)

// routeKey selects the lowering routine of one memory operation.
type routeKey struct {
	Space     target.HWAddrSpace
	Kind      target.MessageKind
	Atomicity target.Atomicity
	Op        OpKind
}

// handler builds the replacement of one memory operation into b.
type handler func(l *lowering, b *ir.Builder, inst *ir.Instruction, c Class)

type route struct {
	name string
	fn   handler
}

// routes is the dispatch table. Combinations missing from it, such as an
// atomic gather, are unsupported.
var routes = buildRoutes()

func buildRoutes() map[routeKey]route {
	handlers := []struct {
		atomicity target.Atomicity
		op        OpKind
		name      string
		fn        handler
	}{
		{target.NonAtomic, OpLoad, "load", lowerLoad},
		{target.NonAtomic, OpStore, "store", lowerStore},
		{target.NonAtomic, OpGather, "gather", lowerGather},
		{target.NonAtomic, OpScatter, "scatter", lowerScatter},
		{target.Atomic, OpLoad, "atomic.load", lowerAtomicLoad},
		{target.Atomic, OpStore, "atomic.store", lowerAtomicStore},
		{target.Atomic, OpAtomicRMW, "atomic.rmw", lowerRMW},
		{target.Atomic, OpAtomicCmpXchg, "atomic.cmpxchg", lowerCmpXchg},
		{target.Atomic, OpFence, "fence", lowerFence},
	}

	table := make(map[routeKey]route)
	for _, space := range []target.HWAddrSpace{target.A32, target.A64, target.SLM} {
		for _, kind := range []target.MessageKind{target.Legacy, target.LSC} {
			for _, h := range handlers {
				key := routeKey{Space: space, Kind: kind, Atomicity: h.atomicity, Op: h.op}
				table[key] = route{
					name: kind.String() + "." + space.String() + "." + h.name,
					fn:   h.fn,
				}
			}
		}
	}
	return table
}

// Route returns the name of the lowering routine selected for an
// operation, or false when the combination is unsupported.
func Route(space target.HWAddrSpace, kind target.MessageKind, atomicity target.Atomicity, op OpKind) (string, bool) {
	r, ok := routes[routeKey{Space: space, Kind: kind, Atomicity: atomicity, Op: op}]
	return r.name, ok
}
