package model

import (
	"sync"
	"sync/atomic"
)

// IndexRange is a view into the IndexBuffer owned by the same mesh.
type IndexRange struct {
	Offset uint32
	Count  uint32
}

func (r IndexRange) End() uint32 {
	return r.Offset + r.Count
}

func (r IndexRange) Empty() bool {
	return r.Count == 0
}

// IndexBuffer is an append-only index store shared by all LODs of a mesh.
// Append is serialized; Slice never blocks and issued ranges never change.
type IndexBuffer struct {
	mu   sync.Mutex
	data atomic.Pointer[[]uint32]
}

func NewIndexBuffer(capacity int) *IndexBuffer {
	b := &IndexBuffer{}
	buf := make([]uint32, 0, capacity)
	b.data.Store(&buf)
	return b
}

func (b *IndexBuffer) load() []uint32 {
	if p := b.data.Load(); p != nil {
		return *p
	}
	return nil
}

// Reserve grows the capacity to hold at least n indices.
func (b *IndexBuffer) Reserve(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.load()
	if cap(cur) >= n {
		return
	}
	buf := make([]uint32, len(cur), n)
	copy(buf, cur)
	b.data.Store(&buf)
}

// Append stores each part and returns one range per part, in order.
func (b *IndexBuffer) Append(parts ...[]uint32) []IndexRange {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.load()
	total := len(cur)
	for _, p := range parts {
		total += len(p)
	}
	buf := cur
	if total > cap(cur) {
		buf = make([]uint32, len(cur), total+total/2)
		copy(buf, cur)
	}
	ranges := make([]IndexRange, len(parts))
	for i, p := range parts {
		ranges[i] = IndexRange{Offset: uint32(len(buf)), Count: uint32(len(p))}
		buf = append(buf, p...)
	}
	b.data.Store(&buf)
	return ranges
}

// Slice returns the indices of r. The result must not be modified.
func (b *IndexBuffer) Slice(r IndexRange) []uint32 {
	cur := b.load()
	if int(r.End()) > len(cur) {
		return nil
	}
	return cur[r.Offset:r.End():r.End()]
}

func (b *IndexBuffer) Len() int {
	return len(b.load())
}

// Contains reports whether r lies within the stored indices.
func (b *IndexBuffer) Contains(r IndexRange) bool {
	return int(r.End()) <= b.Len()
}
