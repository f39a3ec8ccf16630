package catalog

import "strconv"

// IDAllocator enforces id uniqueness across one batch. The first occurrence
// of a base id keeps it; repeats get "__2", "__3", … in first-seen order.
// Determinism follows from feeding it records in stable listing order.
// Single-writer: callers serialize Assign behind the batch accumulator.
type IDAllocator struct {
	seen map[string]int
}

// NewIDAllocator creates an empty allocator.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{seen: make(map[string]int)}
}

// Assign returns the unique id for base, suffixing on collision.
func (a *IDAllocator) Assign(base string) string {
	count, ok := a.seen[base]
	if !ok {
		a.seen[base] = 1
		return base
	}
	a.seen[base] = count + 1
	return base + "__" + strconv.Itoa(count+1)
}
