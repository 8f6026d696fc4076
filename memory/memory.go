// Package memory manages the single contiguous guest RAM region backing a
// VM: memory hot-add and live migration are both out of scope, so one
// region is all a VM ever needs.
package memory

import (
	"errors"
	"fmt"
	"io"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bobuhiro11/gokvm-arm64/kvm"
)

// Poison fills guest memory that is never addressed by placed images, so
// that a misprogrammed jump into the void traps instead of executing
// whatever garbage happened to be in the mmap'd page.
const Poison = 0x00

// ErrAddrOutOfRange is returned by ReadAt/WriteAt when the requested range
// falls outside the guest RAM region.
var ErrAddrOutOfRange = errors.New("address out of range of guest memory")

// Region is the single guest-physical-address-space RAM region of a VM. It
// implements io.ReaderAt and io.WriterAt over guest physical addresses.
type Region struct {
	base uint64
	buf  []byte
}

// New mmaps size bytes of anonymous memory, poison-fills it, and registers
// it with vmFd as guest RAM starting at guest physical address base.
func New(vmFd uintptr, base uint64, size int) (*Region, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap guest memory: %w", err)
	}

	for i := range buf {
		buf[i] = Poison
	}

	r := &kvm.UserspaceMemoryRegion{
		Slot:          0,
		GuestPhysAddr: base,
		MemorySize:    uint64(len(buf)),
		UserspaceAddr: uint64(uintptr(unsafe.Pointer(&buf[0]))),
	}

	if err := kvm.SetUserMemoryRegion(vmFd, r); err != nil {
		_ = unix.Munmap(buf)

		return nil, fmt.Errorf("register guest memory region: %w", err)
	}

	return &Region{base: base, buf: buf}, nil
}

// NewForTest builds a Region backed by plain mmap'd memory without
// registering it with any VM, for unit tests that exercise the
// ReadAt/WriteAt/LoadFile bookkeeping in isolation from a real KVM fd.
func NewForTest(base uint64, size int) (*Region, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap guest memory: %w", err)
	}

	for i := range buf {
		buf[i] = Poison
	}

	return &Region{base: base, buf: buf}, nil
}

// Base returns the guest physical address of the start of the region.
func (r *Region) Base() uint64 { return r.base }

// Size returns the size in bytes of the region.
func (r *Region) Size() uint64 { return uint64(len(r.buf)) }

// Bytes returns the raw host-side backing slice, for callers (such as the
// fault dumper's disassembler) that access guest memory directly.
func (r *Region) Bytes() []byte { return r.buf }

// Slice returns the sub-slice of guest RAM starting at guest physical
// address addr and extending length bytes.
func (r *Region) Slice(addr uint64, length uint64) ([]byte, error) {
	if addr < r.base || addr+length > r.base+r.Size() {
		return nil, ErrAddrOutOfRange
	}

	off := addr - r.base

	return r.buf[off : off+length], nil
}

// ReadAt implements io.ReaderAt over guest physical addresses.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	addr := uint64(off)
	if addr < r.base || addr+uint64(len(p)) > r.base+r.Size() {
		return 0, ErrAddrOutOfRange
	}

	n := copy(p, r.buf[addr-r.base:])

	return n, nil
}

// WriteAt implements io.WriterAt over guest physical addresses.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	addr := uint64(off)
	if addr < r.base || addr+uint64(len(p)) > r.base+r.Size() {
		return 0, ErrAddrOutOfRange
	}

	n := copy(r.buf[addr-r.base:], p)

	return n, nil
}

// LoadFile reads all of src into guest memory starting at guest physical
// address addr, returning the number of bytes written.
func (r *Region) LoadFile(addr uint64, src io.Reader) (int, error) {
	dst, err := r.Slice(addr, r.Size()-(addr-r.base))
	if err != nil {
		return 0, err
	}

	n := 0

	for {
		m, err := src.Read(dst[n:])
		n += m

		if err == io.EOF {
			return n, nil
		}

		if err != nil {
			return n, err
		}

		if m == 0 {
			return n, nil
		}
	}
}
