package ir

import (
	"strconv"
)

// ConstRegistry deduplicates constants within a function.
// Lowering materialises the same predicates and offsets many times; the
// registry makes every structurally identical constant share one value.
type ConstRegistry struct {
	handles map[string]ValueHandle
	keyBuf  []byte // reusable buffer for building constant keys
}

// NewConstRegistry creates an empty registry.
func NewConstRegistry() *ConstRegistry {
	return &ConstRegistry{
		handles: make(map[string]ValueHandle, 16),
		keyBuf:  make([]byte, 0, 64),
	}
}

// GetOrCreate returns the handle of an identical constant if one exists,
// otherwise calls create and remembers its result.
func (r *ConstRegistry) GetOrCreate(typ Type, bits []uint64, create func() ValueHandle) ValueHandle {
	key := r.normalizeConst(typ, bits)
	if handle, exists := r.handles[key]; exists {
		return handle
	}
	handle := create()
	r.handles[key] = handle
	return handle
}

// Count returns the number of distinct constants registered.
func (r *ConstRegistry) Count() int {
	return len(r.handles)
}

// Forget drops every constant whose handle is at or above from.
func (r *ConstRegistry) Forget(from ValueHandle) {
	for key, handle := range r.handles {
		if handle >= from {
			delete(r.handles, key)
		}
	}
}

// normalizeConst creates a unique key from a constant's type and lanes.
// Uses a reusable byte buffer to avoid fmt.Sprintf allocations.
func (r *ConstRegistry) normalizeConst(typ Type, bits []uint64) string {
	b := r.keyBuf[:0]
	b = append(b, typ.String()...)
	for _, v := range bits {
		b = append(b, ':')
		b = strconv.AppendUint(b, v, 16)
	}
	r.keyBuf = b
	return string(b)
}
