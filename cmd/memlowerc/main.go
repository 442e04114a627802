// Command memlowerc lowers memory operations of IR functions into hardware
// message intrinsics.
//
// Usage:
//
//	memlowerc [--target <profile|file>] [--verbose] <command>
//
// Examples:
//
//	memlowerc lower kernel.yaml                    # Lower with the default target
//	memlowerc --target legacy lower kernel.yaml    # Lower for a legacy-only target
//	memlowerc plan --size 37 --esize 1 --align 3   # Show a block plan
//	memlowerc targets                              # List built-in profiles
//
// The environment variables MEMLOWER_TARGET and MEMLOWER_VERBOSE supply
// defaults for the global flags.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/gogpu/memlower"
	"github.com/gogpu/memlower/ir"
	"github.com/gogpu/memlower/plan"
	"github.com/gogpu/memlower/target"
)

const memlowerVersion = "0.1.0-dev"

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Target  string
	Verbose bool

	caps   target.Capabilities
	logger *slog.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "memlowerc",
		Short:   "memlowerc - GPU memory-access lowering",
		Version: memlowerVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			caps, err := target.Resolve(opts.Target)
			if err != nil {
				return err
			}
			opts.caps = caps
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Target, "target", env.Str("MEMLOWER_TARGET", "lsc"), "target profile name or profile file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", env.Bool("MEMLOWER_VERBOSE"), "log every lowered operation")

	cmd.AddCommand(newLowerCommand(opts))
	cmd.AddCommand(newPlanCommand(opts))
	cmd.AddCommand(newTargetsCommand())
	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newLowerCommand(opts *rootOptions) *cobra.Command {
	var validate bool
	cmd := &cobra.Command{
		Use:   "lower <function.yaml>",
		Short: "Lower the memory operations of a function and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read function: %w", err)
			}
			fn, err := LoadFunction(data)
			if err != nil {
				return err
			}
			stats, err := memlower.LowerModule(&ir.Module{Functions: []*ir.Function{fn}}, memlower.Options{
				Target:   opts.caps,
				Validate: validate,
				Logger:   opts.logger,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ir.Print(fn))
			opts.logger.Info("done",
				"target", opts.caps.Name,
				"operations", stats.Operations)
			return nil
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", true, "validate IR before lowering")
	return cmd
}

func newPlanCommand(opts *rootOptions) *cobra.Command {
	var (
		size, esize, align int
		store              bool
		space              string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the block plan of one transfer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hw, err := parseHWSpace(space)
			if err != nil {
				return err
			}
			p, err := plan.Compute(plan.Request{
				Size:          size,
				ElemSize:      esize,
				Align:         align,
				Kind:          target.MessageKindOf(opts.caps),
				Space:         hw,
				Store:         store,
				MaxBlockBytes: target.MaxMessageBytes(opts.caps),
				SLMBlocks:     opts.caps.SupportsSLMBlockMessages(),
			})
			if err != nil {
				return err
			}
			writePlan(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "transfer size in bytes")
	cmd.Flags().IntVar(&esize, "esize", 4, "element size in bytes (1, 2, 4, 8)")
	cmd.Flags().IntVar(&align, "align", 0, "base alignment in bytes (0 for element size)")
	cmd.Flags().BoolVar(&store, "store", false, "plan a store instead of a load")
	cmd.Flags().StringVar(&space, "space", "a64", "hardware address space (a32, a64, slm)")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}

func parseHWSpace(s string) (target.HWAddrSpace, error) {
	for _, space := range []target.HWAddrSpace{target.A32, target.A64, target.SLM} {
		if strings.EqualFold(s, space.String()) {
			return space, nil
		}
	}
	return target.A64, fmt.Errorf("unknown address space %q", s)
}

func writePlan(w io.Writer, p plan.Plan) {
	for _, b := range p.Blocks {
		kind := "block"
		if b.Unaligned {
			kind = "block.unaligned"
		}
		fmt.Fprintf(w, "%-16s offset=%d count=%d elem_bits=%d\n", kind, b.Offset, b.Count, b.ElemBits)
	}
	if r := p.Remainder; r.Bytes > 0 {
		fmt.Fprintf(w, "%-16s offset=%d lanes=%d lane_bytes=%d wire_bits=%d split=%t\n",
			"remainder", r.Offset, r.Lanes(), r.LaneBytes, r.WireBits(), r.Split)
	}
	fmt.Fprintf(w, "messages=%d cost=%d\n", p.Messages(), p.Cost())
}

func newTargetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List built-in target profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := lo.Map(target.ProfileNames(), func(name string, _ int) string {
				caps, _ := target.Profile(name)
				return fmt.Sprintf("%-14s family=%s slm_blocks=%t suppress_local_fences=%t multiple_tiles=%t max_message_bytes=%d cache_levels=%d",
					name, target.MessageKindOf(caps), caps.SLMBlockMessages, caps.SuppressLocalFences,
					caps.MultipleTiles, target.MaxMessageBytes(caps), caps.CacheLevels)
			})
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(rows, "\n"))
			return nil
		},
	}
}
