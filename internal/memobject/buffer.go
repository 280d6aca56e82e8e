// Package memobject provides host memory buffers that commands read, write
// and copy. A Buffer is a shared-ownership object owned by a context; every
// event referencing it keeps a reference until the event is destroyed.
package memobject

import (
	"fmt"
	"sync"

	"github.com/specialistvlad/burstqueue/internal/object"
)

// Buffer is a fixed-size byte buffer safe for concurrent use.
type Buffer struct {
	object.Object

	mu   sync.RWMutex
	data []byte
}

// New allocates a zeroed buffer of size bytes owned by parent. init, when
// non-nil, is copied into the start of the buffer.
func New(parent object.Refcounted, size int, init []byte) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", size)
	}
	if len(init) > size {
		return nil, fmt.Errorf("initial data (%d bytes) exceeds buffer size %d", len(init), size)
	}
	b := &Buffer{data: make([]byte, size)}
	copy(b.data, init)
	b.Init(b, object.TypeBuffer, parent, nil)
	return b, nil
}

// Size returns the buffer length in bytes.
func (b *Buffer) Size() int {
	return len(b.data)
}

// CheckRange reports an error unless [offset, offset+size) lies inside the
// buffer. A zero size is rejected.
func (b *Buffer) CheckRange(offset, size int) error {
	if offset < 0 || size <= 0 || offset > len(b.data)-size {
		return fmt.Errorf("range [%d, %d) outside buffer of %d bytes", offset, offset+size, len(b.data))
	}
	return nil
}

// ReadAt copies len(p) bytes starting at offset into p.
func (b *Buffer) ReadAt(p []byte, offset int) error {
	if err := b.CheckRange(offset, len(p)); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	copy(p, b.data[offset:])
	return nil
}

// WriteAt copies p into the buffer starting at offset.
func (b *Buffer) WriteAt(p []byte, offset int) error {
	if err := b.CheckRange(offset, len(p)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.data[offset:], p)
	return nil
}

// Fill repeats pattern over size bytes starting at offset. size must be a
// multiple of the pattern length.
func (b *Buffer) Fill(pattern []byte, offset, size int) error {
	if len(pattern) == 0 || size%len(pattern) != 0 {
		return fmt.Errorf("fill size %d is not a multiple of pattern size %d", size, len(pattern))
	}
	if err := b.CheckRange(offset, size); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := offset; i < offset+size; i += len(pattern) {
		copy(b.data[i:], pattern)
	}
	return nil
}

// CopyTo copies size bytes from b at srcOffset to dst at dstOffset. Copies
// within one buffer must not overlap.
func (b *Buffer) CopyTo(dst *Buffer, srcOffset, dstOffset, size int) error {
	if err := b.CheckRange(srcOffset, size); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := dst.CheckRange(dstOffset, size); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if b == dst {
		if Overlaps(srcOffset, dstOffset, size) {
			return fmt.Errorf("overlapping copy of %d bytes from %d to %d", size, srcOffset, dstOffset)
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		copy(b.data[dstOffset:dstOffset+size], b.data[srcOffset:srcOffset+size])
		return nil
	}

	tmp := make([]byte, size)
	b.mu.RLock()
	copy(tmp, b.data[srcOffset:])
	b.mu.RUnlock()

	dst.mu.Lock()
	defer dst.mu.Unlock()
	copy(dst.data[dstOffset:], tmp)
	return nil
}

// Bytes returns a copy of the whole buffer.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Update runs fn with exclusive access to the buffer contents. fn must not
// retain the slice.
func (b *Buffer) Update(fn func(data []byte) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.data)
}

// View runs fn with shared access to the buffer contents.
func (b *Buffer) View(fn func(data []byte) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fn(b.data)
}

// Overlaps reports whether the ranges [a, a+size) and [b, b+size) intersect.
func Overlaps(a, b, size int) bool {
	return a < b+size && b < a+size
}
