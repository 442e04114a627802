// Package ir defines the intermediate representation for memlower.
//
// The IR is designed to be:
//   - Target-neutral on input: memory operations carry only a pointer
//     address space, a value type and optional metadata
//   - Flat: a function body is one ordered instruction list; lowering
//     never alters control flow
//   - Explicit on output: hardware messages are Intrinsic calls whose
//     immediates encode the message tags
//
// # Structure
//
// A Function owns an arena of values addressed by ValueHandle. Every value
// is a function argument, a constant, an undefined value or the result of
// an instruction. Instructions reference operands by handle; Op.Operands
// exposes the operand slots so a rewrite can rebind uses in one sweep.
//
// # Translation Pipeline
//
//	upstream IR → ir.Function → lower.Run → ir.Function with message intrinsics
//
// Builder constructs replacement instructions into a scratch list; the
// lowering pass splices that list over the original memory operation.
package ir
