package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/plan"
	"github.com/gogpu/memlower/target"
)

const kernelYAML = `
name: kernel
args:
  - {name: p, type: "ptr<global,64>"}
  - {name: q, type: "ptr<local,32>"}
body:
  - {op: load, result: v, type: "<4 x f32>", ptr: p, align: 16}
  - {op: store, ptr: p, value: v, align: 16, nontemporal: true}
  - {op: const, result: one, type: i32, bits: [1]}
  - {op: atomicrmw, result: old, fun: add, ptr: q, value: one, ordering: seq_cst, scope: workgroup}
  - {op: cmpxchg, result: prev, success: ok, ptr: q, expected: old, new: one, ordering: acq_rel}
  - {op: fence, space: global, ordering: acquire}
  - {op: ret, value: prev}
`

func TestLoadFunction(t *testing.T) {
	fn, err := LoadFunction([]byte(kernelYAML))
	require.NoError(t, err)

	assert.Equal(t, "kernel", fn.Name)
	require.Len(t, fn.Args, 2)
	assert.Equal(t, ir.Ptr(ir.SpaceGlobal, 64), fn.TypeOf(fn.Args[0]))
	assert.Equal(t, "q", fn.Values[fn.Args[1]].Name)
	require.Len(t, fn.Body, 6)

	load, ok := fn.Body[0].Op.(*ir.Load)
	require.True(t, ok)
	assert.Equal(t, fn.Args[0], load.Ptr)
	assert.Equal(t, ir.Vec(4, ir.F32), fn.TypeOf(fn.Body[0].Result))
	assert.Equal(t, uint32(16), fn.Body[0].Meta.Align)

	assert.True(t, fn.Body[1].Meta.NonTemporal)
	assert.Equal(t, ir.NoValue, fn.Body[1].Result)

	rmw, ok := fn.Body[2].Op.(*ir.AtomicRMW)
	require.True(t, ok)
	assert.Equal(t, ir.RMWAdd, rmw.Fun)
	assert.True(t, fn.IsConstInt(rmw.Value, 1))
	assert.Equal(t, ir.SeqCst, fn.Body[2].Meta.Ordering)
	assert.Equal(t, "workgroup", fn.Body[2].Meta.Scope)
	assert.Equal(t, ir.I32, fn.TypeOf(fn.Body[2].Result))

	cas, ok := fn.Body[3].Op.(*ir.AtomicCmpXchg)
	require.True(t, ok)
	assert.Equal(t, fn.Body[2].Result, cas.Expected)
	assert.Equal(t, ir.Bool, fn.TypeOf(cas.Success))
	assert.Equal(t, "ok", fn.Values[cas.Success].Name)

	fence, ok := fn.Body[4].Op.(*ir.Fence)
	require.True(t, ok)
	assert.Equal(t, ir.SpaceGlobal, fence.Space)
	assert.Equal(t, ir.Acquire, fn.Body[4].Meta.Ordering)

	errs, err := ir.Validate(&ir.Module{Functions: []*ir.Function{fn}})
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestLoadFunction_GatherScatter(t *testing.T) {
	fn, err := LoadFunction([]byte(`
name: lanes
args:
  - {name: ptrs, type: "<8 x ptr<global,64>>"}
  - {name: mask, type: "<8 x i1>"}
body:
  - {op: gather, result: v, type: "<8 x i32>", ptrs: ptrs, mask: mask, align: 4}
  - {op: scatter, value: v, ptrs: ptrs, align: 4}
  - {op: ret}
`))
	require.NoError(t, err)
	require.Len(t, fn.Body, 3)

	g := fn.Body[0].Op.(*ir.Gather)
	assert.Equal(t, fn.Args[1], g.Mask)
	assert.Equal(t, ir.NoValue, g.Passthru)

	s := fn.Body[1].Op.(*ir.Scatter)
	assert.Equal(t, ir.NoValue, s.Mask)
	assert.Equal(t, ir.NoValue, fn.Body[2].Op.(*ir.Return).Value)
}

func TestLoadFunction_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "name: [", "parse function"},
		{"no name", "args: []", "no name"},
		{"bad arg type", "name: f\nargs: [{name: p, type: \"q32\"}]", "argument p"},
		{"duplicate", "name: f\nargs: [{name: p, type: i32}, {name: p, type: i32}]", "defined twice"},
		{"unknown op", "name: f\nbody: [{op: jump}]", `unknown op "jump"`},
		{"undefined value", "name: f\nbody: [{op: load, result: v, type: i32, ptr: nowhere}]", `undefined value "nowhere"`},
		{"missing operand", "name: f\nbody: [{op: load, result: v, type: i32}]", "missing operand"},
		{"missing type", "name: f\nargs: [{name: p, type: \"ptr<global,64>\"}]\nbody: [{op: load, ptr: p}]", "missing result type"},
		{"bad ordering", "name: f\nbody: [{op: fence, space: global, ordering: eventually}]", "unknown ordering"},
		{"bad space", "name: f\nbody: [{op: fence, space: texture, ordering: acquire}]", "texture"},
		{"bad fun", "name: f\nargs: [{name: p, type: \"ptr<global,64>\"}, {name: v, type: i32}]\nbody: [{op: atomicrmw, fun: mul, ptr: p, value: v, ordering: monotonic}]", "mul"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFunction([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseHWSpace(t *testing.T) {
	for _, space := range []target.HWAddrSpace{target.A32, target.A64, target.SLM} {
		got, err := parseHWSpace(strings.ToUpper(space.String()))
		require.NoError(t, err)
		assert.Equal(t, space, got)
	}
	_, err := parseHWSpace("a16")
	assert.Error(t, err)
}

func TestWritePlan(t *testing.T) {
	p, err := plan.Compute(plan.Request{
		Size:          37,
		ElemSize:      1,
		Align:         1,
		Kind:          target.LSC,
		Space:         target.A64,
		Store:         true,
		MaxBlockBytes: 512,
		SLMBlocks:     true,
	})
	require.NoError(t, err)

	var out bytes.Buffer
	writePlan(&out, p)
	assert.Contains(t, out.String(), "remainder        offset=0 lanes=37 lane_bytes=1")
	assert.Contains(t, out.String(), "messages=1")
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommand_Lower(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(kernelYAML), 0o600))

	out, err := runCommand(t, "--target", "lsc", "lower", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "func @kernel("), out)
	assert.Contains(t, out, "call @lsc.load.ugm[")
	assert.Contains(t, out, "call @lsc.atomic.slm[")
	assert.Contains(t, out, "call @lsc.fence.ugm[")
	assert.NotContains(t, out, " load ")

	out, err = runCommand(t, "--target", "legacy", "lower", path)
	require.NoError(t, err)
	assert.Contains(t, out, "call @legacy.svm.block.ld[")
	assert.Contains(t, out, "call @legacy.fence[")

	_, err = runCommand(t, "--target", "lsc", "lower", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCommand_Plan(t *testing.T) {
	out, err := runCommand(t, "--target", "lsc", "plan", "--size", "16", "--align", "16")
	require.NoError(t, err)
	assert.Contains(t, out, "block ")
	assert.Contains(t, out, "messages=1")

	_, err = runCommand(t, "--target", "lsc", "plan", "--size", "16", "--space", "a16")
	assert.Error(t, err)
}

func TestCommand_Targets(t *testing.T) {
	out, err := runCommand(t, "targets")
	require.NoError(t, err)
	for _, name := range target.ProfileNames() {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "family=lsc")
}

func TestCommand_UnknownTarget(t *testing.T) {
	_, err := runCommand(t, "--target", "no-such-profile", "targets")
	assert.Error(t, err)
}
