// Package lower rewrites the memory operations of a function into hardware
// message intrinsics.
//
// Every load, store, atomic, fence, gather and scatter is classified by
// atomicity and hardware address space, dispatched to a lowering routine,
// and replaced by messages of the single family the target supports.
// Replacements are built out of line; the function body and all uses are
// rewritten in one step once every operation has lowered successfully.
package lower

import (
	"errors"
	"log/slog"

	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/message"
	"github.com/gogpu/memlower/plan"
	"github.com/gogpu/memlower/target"
)

// Options configures a lowering run.
type Options struct {
	// Target describes the hardware. Required.
	Target target.Target
	// Logger receives per-operation debug records. Nil uses slog.Default().
	Logger *slog.Logger
}

// Stats counts what a run emitted.
type Stats struct {
	Operations   int // memory operations rewritten
	Blocks       int // block messages
	LaneMessages int // gather/scatter messages, split halves counted separately
	Atomics      int // atomic messages
	Fences       int // fence messages
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Operations += other.Operations
	s.Blocks += other.Blocks
	s.LaneMessages += other.LaneMessages
	s.Atomics += other.Atomics
	s.Fences += other.Fences
}

// lowering holds the state of one run over one function.
type lowering struct {
	fn     *ir.Function
	target target.Target
	kind   target.MessageKind
	emit   message.Emitter
	// repl maps results of erased operations to their replacements.
	repl map[ir.ValueHandle]ir.ValueHandle
}

// value returns the current definition of h.
func (l *lowering) value(h ir.ValueHandle) ir.ValueHandle {
	if r, ok := l.repl[h]; ok {
		return r
	}
	return h
}

func (l *lowering) replace(old, replacement ir.ValueHandle) {
	if old != ir.NoValue {
		l.repl[old] = replacement
	}
}

// Run lowers every memory operation of fn. On error fn is left unchanged
// and the error is an *Error.
func Run(fn *ir.Function, opts Options) (Stats, error) {
	if opts.Target == nil {
		return Stats{}, errors.New("lower: no target")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var stats Stats
	kind := target.MessageKindOf(opts.Target)
	l := &lowering{
		fn:     fn,
		target: opts.Target,
		kind:   kind,
		emit:   &counting{Emitter: message.New(kind, opts.Target), stats: &stats},
		repl:   make(map[ir.ValueHandle]ir.ValueHandle),
	}

	checkpoint := fn.Checkpoint()
	fail := func(index int, err error) (Stats, error) {
		fn.Rollback(checkpoint)
		return Stats{}, diagnose(fn.Name, index, err)
	}

	body := make([]ir.Instruction, 0, len(fn.Body))
	for i := range fn.Body {
		inst := &fn.Body[i]
		c, ok, err := Classify(fn, inst)
		if err != nil {
			return fail(i, err)
		}
		if !ok {
			body = append(body, *inst)
			continue
		}
		r, found := routes[routeKey{Space: c.Space, Kind: kind, Atomicity: c.Atomicity, Op: c.Op}]
		if !found {
			return fail(i, unsupported("%s %s in %s", c.Atomicity, c.Op, c.Space))
		}

		b := ir.NewBuilder(fn)
		r.fn(l, b, inst, c)
		if err := b.Err(); err != nil {
			return fail(i, err)
		}
		emitted := b.Instructions()
		body = append(body, emitted...)
		stats.Operations++
		log.Debug("lowered memory operation",
			"function", fn.Name,
			"index", i,
			"route", r.name,
			"emitted", len(emitted))
	}

	for i := range body {
		if body[i].Op == nil {
			continue
		}
		for _, slot := range body[i].Op.Operands() {
			if r, ok := l.repl[*slot]; ok {
				*slot = r
			}
		}
	}
	fn.Body = body

	log.Debug("lowered function",
		"function", fn.Name,
		"family", kind,
		"operations", stats.Operations,
		"blocks", stats.Blocks,
		"lane_messages", stats.LaneMessages,
		"atomics", stats.Atomics,
		"fences", stats.Fences)
	return stats, nil
}

// counting is an Emitter that tallies messages into Stats.
type counting struct {
	message.Emitter
	stats *Stats
}

func (c *counting) BlockLoad(b *ir.Builder, req message.Request, blk plan.Block) ir.ValueHandle {
	c.stats.Blocks++
	return c.Emitter.BlockLoad(b, req, blk)
}

func (c *counting) BlockStore(b *ir.Builder, req message.Request, blk plan.Block) {
	c.stats.Blocks++
	c.Emitter.BlockStore(b, req, blk)
}

func (c *counting) GatherLoad(b *ir.Builder, req message.Request, lanes message.Lanes) ir.ValueHandle {
	c.stats.LaneMessages += laneMessages(lanes)
	return c.Emitter.GatherLoad(b, req, lanes)
}

func (c *counting) ScatterStore(b *ir.Builder, req message.Request, lanes message.Lanes) {
	c.stats.LaneMessages += laneMessages(lanes)
	c.Emitter.ScatterStore(b, req, lanes)
}

func (c *counting) Atomic(b *ir.Builder, req message.AtomicRequest) ir.ValueHandle {
	c.stats.Atomics++
	return c.Emitter.Atomic(b, req)
}

func (c *counting) Fence(b *ir.Builder, req message.FenceRequest) {
	c.stats.Fences++
	c.Emitter.Fence(b, req)
}

func laneMessages(lanes message.Lanes) int {
	if lanes.Split {
		return 2
	}
	return 1
}
