package kvm

import "unsafe"

// UserspaceMemoryRegion mirrors struct kvm_userspace_memory_region.
type UserspaceMemoryRegion struct {
	Slot          uint32
	Flags         uint32
	GuestPhysAddr uint64
	MemorySize    uint64
	UserspaceAddr uint64
}

// SetUserMemoryRegion registers a single guest RAM region with the VM.
func SetUserMemoryRegion(vmFd uintptr, region *UserspaceMemoryRegion) error {
	_, err := Ioctl(vmFd,
		IIOW(nrSetUserMemoryRegion, unsafe.Sizeof(*region)),
		uintptr(unsafe.Pointer(region)))

	return err
}
