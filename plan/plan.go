// Package plan computes block plans: the covering of one memory transfer
// by large aligned block messages plus a single gather/scatter remainder.
//
// Blocks are chosen greedily, largest first. Block transfers are cheaper
// than per-lane gather/scatter and the covering must stay address ordered,
// so consuming the largest legal chunk at every offset minimises cost.
package plan

import (
	"fmt"
	"math/bits"

	"github.com/samber/lo"

	"github.com/gogpu/memlower/target"
)

// OwordBytes is the granule of legacy block messages.
const OwordBytes = 16

// maxLegacyOwords is the largest legacy block, in owords.
const maxLegacyOwords = 8

// maxLSCVectorSize is the largest LSC block, in elements.
const maxLSCVectorSize = 64

// Request describes one transfer to cover.
type Request struct {
	// Size is the transfer size in bytes.
	Size int
	// ElemSize is the element size in bytes (1, 2, 4 or 8).
	ElemSize int
	// Align is the byte alignment of the base address, 0 for ABI default.
	Align int
	// Kind is the target's message family.
	Kind target.MessageKind
	// Space is the hardware address space of the access.
	Space target.HWAddrSpace
	// Store selects write messages; legacy unaligned blocks are read-only.
	Store bool
	// MaxBlockBytes caps the payload of one block message.
	MaxBlockBytes int
	// SLMBlocks allows block messages on shared local memory.
	SLMBlocks bool
}

// Block is one block message of a plan.
type Block struct {
	Offset   int // bytes from the base address
	Count    int // elements transferred
	ElemBits int // 32 or 64 for LSC, 128 (oword) for legacy
	// Unaligned selects the legacy unaligned oword read.
	Unaligned bool
}

// Bytes returns the number of bytes the block transfers.
func (b Block) Bytes() int {
	return b.Count * b.ElemBits / 8
}

// Remainder is the gather/scatter tail of a plan.
type Remainder struct {
	Offset int
	Bytes  int
	// LaneBytes is the memory size of one lane.
	LaneBytes int
	// Split breaks each 8-byte lane into two dword sub-messages.
	Split bool
}

// Lanes returns the number of gather/scatter lanes.
func (r Remainder) Lanes() int {
	if r.Bytes == 0 {
		return 0
	}
	return r.Bytes / r.LaneBytes
}

// WireBits returns the register width of one lane: the lane size
// extended to at least 32 bits.
func (r Remainder) WireBits() int {
	return max(32, r.LaneBytes*8)
}

// Plan is an ordered covering of [0, Size).
type Plan struct {
	Blocks    []Block
	Remainder Remainder
}

// Covered returns the total number of bytes the plan transfers.
func (p Plan) Covered() int {
	return lo.SumBy(p.Blocks, func(b Block) int { return b.Bytes() }) + p.Remainder.Bytes
}

// Messages returns the number of messages the plan emits.
func (p Plan) Messages() int {
	n := len(p.Blocks)
	switch {
	case p.Remainder.Bytes == 0:
	case p.Remainder.Split:
		n += 2
	default:
		n++
	}
	return n
}

// Cost weighs a plan by memory transactions: one per block message and one
// per independently addressed gather/scatter lane.
func (p Plan) Cost() int {
	lanes := p.Remainder.Lanes()
	if p.Remainder.Split {
		lanes *= 2
	}
	return len(p.Blocks) + lanes
}

// Check verifies that the plan partitions [0, size) with no gap or overlap.
func (p Plan) Check(size int) error {
	off := 0
	for i, b := range p.Blocks {
		if b.Offset != off {
			return fmt.Errorf("block %d starts at %d, expected %d", i, b.Offset, off)
		}
		if b.Count <= 0 {
			return fmt.Errorf("block %d is empty", i)
		}
		off += b.Bytes()
	}
	if p.Remainder.Bytes > 0 && p.Remainder.Offset != off {
		return fmt.Errorf("remainder starts at %d, expected %d", p.Remainder.Offset, off)
	}
	if off+p.Remainder.Bytes != size {
		return fmt.Errorf("plan covers %d bytes, expected %d", off+p.Remainder.Bytes, size)
	}
	return nil
}

// NaturalAlign returns the largest power of two dividing align, or
// fallback when align is 0 (ABI default).
func NaturalAlign(align, fallback int) int {
	if align <= 0 {
		return fallback
	}
	return align & -align
}

// Compute builds the block plan for a request.
func Compute(req Request) (Plan, error) {
	if req.Size <= 0 {
		return Plan{}, fmt.Errorf("transfer size must be positive, got %d", req.Size)
	}
	switch req.ElemSize {
	case 1, 2, 4, 8:
	default:
		return Plan{}, fmt.Errorf("unsupported element size %d", req.ElemSize)
	}

	// Sizes that are not a multiple of the element are covered with the
	// largest power-of-two unit dividing both.
	esize := min(req.ElemSize, req.Size&-req.Size)
	align := NaturalAlign(req.Align, esize)

	var p Plan
	off := 0
	for _, size := range blockSizes(req, esize) {
		for req.Size-off >= size {
			b, ok := blockAt(req, off, size, AlignAt(align, off))
			if !ok {
				break
			}
			p.Blocks = append(p.Blocks, b)
			off += size
		}
	}

	if rest := req.Size - off; rest > 0 {
		laneBytes, split := Lanes(esize, AlignAt(align, off), req.Kind)
		p.Remainder = Remainder{
			Offset:    off,
			Bytes:     rest,
			LaneBytes: laneBytes,
			Split:     split,
		}
	}
	return p, nil
}

// Lanes returns the lane layout for per-lane messages of elemSize bytes at
// the given alignment. Lanes narrow to the alignment when it is below the
// element size; legacy qword lanes aligned to a dword instead keep their
// width and are split into two dword sub-messages.
func Lanes(elemSize, align int, kind target.MessageKind) (laneBytes int, split bool) {
	if align >= elemSize {
		return elemSize, false
	}
	if kind == target.Legacy && elemSize == 8 && align >= 4 {
		return 8, true
	}
	return align, false
}

// AlignAt returns the alignment of base+off given the base alignment.
func AlignAt(align, off int) int {
	if off == 0 {
		return align
	}
	return min(align, off&-off)
}

// blockSizes lists candidate block byte sizes, largest first.
func blockSizes(req Request, esize int) []int {
	if req.Space == target.SLM && !req.SLMBlocks {
		return nil
	}
	largest := 0
	if req.Kind == target.LSC {
		largest = maxLSCVectorSize * 8
	} else {
		largest = maxLegacyOwords * OwordBytes
	}
	largest = min(largest, req.MaxBlockBytes)
	if largest <= 0 {
		return nil
	}
	// round down to a power of two
	largest = 1 << (bits.Len(uint(largest)) - 1)

	smallest := OwordBytes
	if req.Kind == target.LSC {
		smallest = 4
	}
	smallest = max(smallest, esize)

	var sizes []int
	for size := largest; size >= smallest; size /= 2 {
		sizes = append(sizes, size)
	}
	return sizes
}

// blockAt returns the block of the given size usable at off, if any.
func blockAt(req Request, off, size, align int) (Block, bool) {
	if req.Kind == target.LSC {
		// Prefer 64-bit elements: fewer elements per address.
		if align >= 8 && size%8 == 0 && size/8 <= maxLSCVectorSize {
			return Block{Offset: off, Count: size / 8, ElemBits: 64}, true
		}
		if align >= 4 && size%4 == 0 && size/4 <= maxLSCVectorSize {
			return Block{Offset: off, Count: size / 4, ElemBits: 32}, true
		}
		return Block{}, false
	}

	if size%OwordBytes != 0 {
		return Block{}, false
	}
	owords := size / OwordBytes
	if align >= OwordBytes {
		return Block{Offset: off, Count: owords, ElemBits: 128}, true
	}
	// The unaligned oword read needs dword alignment and is not available
	// for writes or shared local memory.
	if !req.Store && req.Space != target.SLM && align >= 4 {
		return Block{Offset: off, Count: owords, ElemBits: 128, Unaligned: true}, true
	}
	return Block{}, false
}
