//go:build linux

package ringbuf

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const sampleBytes = 16 // complex128: two float64s

// mmapMirror is the real double-mapping of spec §4.1: a single
// memfd-backed region mapped twice at adjacent virtual addresses.
// Reading or writing up to size samples past the nominal end reads or
// writes the beginning of the same underlying memory, so callers never
// need to special-case the wrap point.
type mmapMirror struct {
	size  int
	bytes int
	full  []byte // bytes..2*bytes mapped contiguously, aliasing one memfd twice
}

func newMirrorMapping(size int) (*mmapMirror, error) {
	pageSize := unix.Getpagesize()
	bytes := size * sampleBytes
	if bytes%pageSize != 0 {
		return nil, fmt.Errorf("%d samples is not a whole number of pages", size)
	}

	fd, err := unix.MemfdCreate("fastconv-ringbuf", 0)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(bytes)); err != nil {
		return nil, fmt.Errorf("ftruncate: %w", err)
	}

	// Reserve a contiguous 2*bytes region, then release it and
	// immediately re-map the same memfd twice, back to back, at the
	// address that was just freed. There is a theoretical race with
	// another thread mapping into the gap first; in practice the
	// window is microseconds and this is the standard technique for a
	// branch-free mirrored ring buffer.
	reserve, err := unix.Mmap(-1, 0, 2*bytes, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("reserve region: %w", err)
	}
	base := uintptr(unsafe.Pointer(&reserve[0]))
	if err := unix.Munmap(reserve); err != nil {
		return nil, fmt.Errorf("release reservation: %w", err)
	}

	if _, err := mmapFixed(fd, base, bytes); err != nil {
		return nil, fmt.Errorf("map low half: %w", err)
	}
	if _, err := mmapFixed(fd, base+uintptr(bytes), bytes); err != nil {
		return nil, fmt.Errorf("map high half: %w", err)
	}

	full := unsafe.Slice((*byte)(unsafe.Pointer(base)), 2*bytes)
	return &mmapMirror{size: size, bytes: bytes, full: full}, nil
}

// mmapFixed maps fd at the exact virtual address addr using MAP_FIXED.
// golang.org/x/sys/unix.Mmap does not expose the address parameter, so
// this issues the mmap(2) syscall directly.
func mmapFixed(fd int, addr uintptr, length int) (uintptr, error) {
	r1, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, uintptr(length),
		uintptr(unix.PROT_READ|unix.PROT_WRITE), uintptr(unix.MAP_SHARED|unix.MAP_FIXED), uintptr(fd), 0)
	if errno != 0 {
		return 0, errno
	}
	return r1, nil
}

func (m *mmapMirror) put(off int, samples []complex128) {
	off = ((off % m.size) + m.size) % m.size
	for i, s := range samples {
		m.writeSample(off+i, s)
	}
}

func (m *mmapMirror) writeSample(idx int, s complex128) {
	byteOff := (idx % m.size) * sampleBytes
	buf := m.full[byteOff : byteOff+sampleBytes]
	*(*float64)(unsafe.Pointer(&buf[0])) = real(s)
	*(*float64)(unsafe.Pointer(&buf[8])) = imag(s)
	// Both the low and high mapping alias the same memfd page, so a
	// write through the low half is already visible through the high
	// half — no second write needed.
}

func (m *mmapMirror) view(off, n int) []complex128 {
	off = ((off % m.size) + m.size) % m.size
	byteOff := off * sampleBytes
	raw := m.full[byteOff : byteOff+n*sampleBytes]
	out := make([]complex128, n)
	for i := 0; i < n; i++ {
		re := *(*float64)(unsafe.Pointer(&raw[i*sampleBytes]))
		im := *(*float64)(unsafe.Pointer(&raw[i*sampleBytes+8]))
		out[i] = complex(re, im)
	}
	return out
}
