package memlower

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/lower"
	"github.com/gogpu/memlower/target"
)

func mustProfile(t *testing.T, name string) target.Capabilities {
	t.Helper()
	caps, err := target.Profile(name)
	require.NoError(t, err)
	return caps
}

func loadKernel(name string) *ir.Function {
	fn := ir.NewFunction(name)
	p := fn.AddArg("p", ir.Ptr(ir.SpaceGlobal, 64))
	v := fn.Append(&ir.Load{Ptr: p}, ir.Vec(4, ir.F32), ir.Meta{Align: 16})
	fn.Append(&ir.Return{Value: v}, nil, ir.Meta{})
	return fn
}

func TestDefaultOptions(t *testing.T) {
	caps := mustProfile(t, "lsc")
	opts := DefaultOptions(caps)
	assert.Equal(t, caps, opts.Target)
	assert.True(t, opts.Validate)
	assert.Nil(t, opts.Logger)
}

func TestLower(t *testing.T) {
	fn := loadKernel("kernel")
	stats, err := Lower(fn, mustProfile(t, "lsc"))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Operations)
	assert.Equal(t, 1, stats.Blocks)
	for _, inst := range fn.Body {
		assert.False(t, ir.IsMemoryOp(inst.Op))
	}
}

func TestLowerModule_SumsStats(t *testing.T) {
	module := &ir.Module{Functions: []*ir.Function{loadKernel("a"), loadKernel("b")}}
	opts := DefaultOptions(mustProfile(t, "legacy"))
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	stats, err := LowerModule(module, opts)
	require.NoError(t, err)
	assert.Equal(t, lower.Stats{Operations: 2, Blocks: 2}, stats)
}

func TestLowerModule_ValidationFailure(t *testing.T) {
	fn := ir.NewFunction("broken")
	fn.Append(&ir.Load{Ptr: ir.ValueHandle(7)}, ir.I32, ir.Meta{})

	_, err := LowerModule(&ir.Module{Functions: []*ir.Function{fn}}, DefaultOptions(mustProfile(t, "lsc")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	errs, err := Validate(&ir.Module{Functions: []*ir.Function{fn}})
	require.NoError(t, err)
	assert.NotEmpty(t, errs)
}

func TestLowerModule_StopsOnError(t *testing.T) {
	good := loadKernel("good")
	bad := ir.NewFunction("bad")
	p := bad.AddArg("p", ir.Ptr(ir.SpaceGlobal, 64))
	v := bad.AddArg("v", ir.I32)
	bad.Append(&ir.AtomicRMW{Fun: ir.RMWNand, Ptr: p, Value: v}, ir.I32, ir.Meta{Ordering: ir.Monotonic})
	before := ir.Print(bad)

	_, err := LowerModule(&ir.Module{Functions: []*ir.Function{good, bad}}, DefaultOptions(mustProfile(t, "lsc")))
	require.Error(t, err)

	var lerr *lower.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, lower.ErrCodeNoSuchAtomicOp, lerr.Code)
	assert.Equal(t, before, ir.Print(bad))
}

func TestLowerModule_Target(t *testing.T) {
	module := &ir.Module{Functions: []*ir.Function{loadKernel("k")}}

	_, err := LowerModule(module, Options{})
	assert.EqualError(t, err, "no target")

	bad := mustProfile(t, "lsc")
	bad.RegisterBytes = 48
	_, err = LowerModule(module, Options{Target: bad})
	assert.EqualError(t, err, `target "lsc": register size must be 32 or 64 bytes, got 48`)
}
