// Package memlower lowers architecture-neutral memory operations into the
// hardware message encodings of a GPU memory subsystem.
//
// Loads, stores, atomics, fences, gathers and scatters are rewritten in
// place into calls of exactly one message family, Legacy or LSC, selected
// by the target's capabilities.
//
// Example usage:
//
//	fn := ir.NewFunction("kernel")
//	p := fn.AddArg("p", ir.Ptr(ir.SpaceGlobal, 64))
//	v := fn.Append(&ir.Load{Ptr: p}, ir.Vec(4, ir.F32), ir.Meta{Align: 16})
//	fn.Append(&ir.Return{Value: v}, nil, ir.Meta{})
//
//	caps, _ := target.Profile("lsc")
//	stats, err := memlower.Lower(fn, caps)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(ir.Print(fn))
//
// Lower-level access is available through the plan, bridge, message and
// lower packages.
package memlower

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/lower"
	"github.com/gogpu/memlower/target"
)

// Options configures lowering.
type Options struct {
	// Target describes the hardware.
	Target target.Target

	// Validate enables IR validation before lowering
	Validate bool

	// Logger receives lowering diagnostics (default: slog.Default())
	Logger *slog.Logger
}

// DefaultOptions returns sensible default options for caps.
func DefaultOptions(caps target.Capabilities) Options {
	return Options{
		Target:   caps,
		Validate: true,
	}
}

// Lower lowers a single function with default options.
func Lower(fn *ir.Function, caps target.Capabilities) (lower.Stats, error) {
	return LowerModule(&ir.Module{Functions: []*ir.Function{fn}}, DefaultOptions(caps))
}

// LowerModule lowers every function of module.
//
// The pipeline is:
//  1. Validate IR (if enabled)
//  2. Lower each function; a function that fails is left unchanged and
//     stops the run
func LowerModule(module *ir.Module, opts Options) (lower.Stats, error) {
	var total lower.Stats
	if opts.Target == nil {
		return total, errors.New("no target")
	}
	if caps, ok := opts.Target.(target.Capabilities); ok {
		if err := caps.Validate(); err != nil {
			return total, err
		}
	}

	if opts.Validate {
		validationErrors, err := Validate(module)
		if err != nil {
			return total, fmt.Errorf("validation error: %w", err)
		}
		if len(validationErrors) > 0 {
			return total, fmt.Errorf("validation failed: %w", &validationErrors[0])
		}
	}

	for _, fn := range module.Functions {
		stats, err := lower.Run(fn, lower.Options{Target: opts.Target, Logger: opts.Logger})
		if err != nil {
			return total, fmt.Errorf("lowering error: %w", err)
		}
		total.Add(stats)
	}
	return total, nil
}

// Validate validates an IR module for correctness.
//
// Validation checks include:
//   - Reference validity (all handles point to valid values)
//   - Definition before use
//   - Type consistency of inferable results
//   - Pointer operands of memory operations
//
// Returns a slice of validation errors. If the slice is empty, validation passed.
func Validate(module *ir.Module) ([]ir.ValidationError, error) {
	return ir.Validate(module)
}
