// Package ringbuf implements the mirrored ring buffer of spec §4.1: a
// region mapped twice at adjacent virtual addresses so a read or write
// that runs past the nominal end wraps into the beginning without a
// branch. Samples are stored as complex128 regardless of whether the
// front end is real or complex valued; real-input filters simply leave
// the imaginary half zero.
package ringbuf

import (
	"fmt"

	"github.com/sdrcore/fastconv/internal/coreerr"
)

// Buffer is a mirrored ring of complex128 samples, sized in samples
// (not bytes) for S. Size() == S; indices [0, 2S) are both valid to
// read and write, and index i and i+S always alias the same storage.
type Buffer struct {
	size int
	mem  mirror
}

// New establishes a mirrored mapping of size samples. It first tries a
// real double mmap (see mirror_linux.go); if that fails for any reason
// (no memfd support, mmap refused, running on a platform without the
// syscalls) it falls back to a plain 2*size slice with copy-on-write
// that still behaves correctly, just isn't branch-free. Only if both
// attempts fail does it return coreerr.ErrResourceExhaustion.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("ringbuf: size must be positive: %w", coreerr.ErrInvalidConfig)
	}

	if m, err := newMirrorMapping(size); err == nil {
		return &Buffer{size: size, mem: m}, nil
	}

	m, err := newFallbackMirror(size)
	if err != nil {
		return nil, fmt.Errorf("ringbuf: cannot establish mirrored buffer: %w: %v", coreerr.ErrResourceExhaustion, err)
	}
	return &Buffer{size: size, mem: m}, nil
}

// Size returns the nominal (non-mirrored) length in samples.
func (b *Buffer) Size() int { return b.size }

// Wrap folds an index that may have advanced past 2*Size back into
// [0, Size). This is the "wrap" operation of spec §4.1: if a pointer
// has advanced >= Size past the base, subtract Size.
func (b *Buffer) Wrap(i int) int {
	for i >= b.size {
		i -= b.size
	}
	for i < 0 {
		i += b.size
	}
	return i
}

// Put writes samples starting at the (already-wrapped) offset off.
// Because the mapping is mirrored, off+len(samples) may legally exceed
// Size(); the mirror makes the write land in the right place either
// way.
func (b *Buffer) Put(off int, samples []complex128) {
	b.mem.put(off, samples)
}

// View returns a slice of length n starting at off, valid to read
// without the caller needing to special-case the wrap point. For the
// real mirrored mapping this is a fresh copy read from contiguous
// mapped memory; for the fallback mirror it is a zero-copy slice of
// the full 2*size backing array.
func (b *Buffer) View(off, n int) []complex128 {
	return b.mem.view(off, n)
}

// mirror abstracts over the real double-mmap implementation and the
// portable fallback so Buffer doesn't care which one backs it.
type mirror interface {
	put(off int, samples []complex128)
	view(off, n int) []complex128
}

// fallbackMirror keeps one contiguous slice of length 2*size and
// mirrors every write into both halves, so any view of length <= size
// starting anywhere in [0, size) can be taken as a contiguous slice.
type fallbackMirror struct {
	size int
	data []complex128
}

func newFallbackMirror(size int) (*fallbackMirror, error) {
	return &fallbackMirror{size: size, data: make([]complex128, 2*size)}, nil
}

func (f *fallbackMirror) put(off int, samples []complex128) {
	for i, s := range samples {
		idx := (off + i) % f.size
		f.data[idx] = s
		f.data[idx+f.size] = s
	}
}

func (f *fallbackMirror) view(off, n int) []complex128 {
	off = off % f.size
	if off < 0 {
		off += f.size
	}
	return f.data[off : off+n]
}
