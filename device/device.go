// Package device defines the MMIO device interface shared by every
// emulated MMIO peripheral (the PL011 UART) and a registry that
// dispatches guest physical addresses to the device mapped there.
package device

import "errors"

// ErrBadDataLen is returned by a device's Read/Write when called with an
// access width it does not support.
var ErrBadDataLen = errors.New("invalid data size for mmio access")

// Device describes the interface an MMIO-mapped peripheral must implement,
// regardless of which guest physical address range it is registered at.
type Device interface {
	Read(addr uint64, data []byte) error
	Write(addr uint64, data []byte) error
	Base() uint64
	Size() uint64
}

// entry pairs a Device with its registered range for fast lookup.
type entry struct {
	base uint64
	size uint64
	dev  Device
}

// Registry dispatches MMIO reads and writes to the device registered at
// the target guest physical address. An address with no registered device
// reads as all-zero and silently discards writes, matching real hardware
// buses where an unmapped decode region is simply tied off.
type Registry struct {
	entries []entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register maps dev at [dev.Base(), dev.Base()+dev.Size()).
func (r *Registry) Register(dev Device) {
	r.entries = append(r.entries, entry{base: dev.Base(), size: dev.Size(), dev: dev})
}

func (r *Registry) find(addr uint64) Device {
	for _, e := range r.entries {
		if addr >= e.base && addr < e.base+e.size {
			return e.dev
		}
	}

	return nil
}

// Read dispatches a guest MMIO read at addr into data.
func (r *Registry) Read(addr uint64, data []byte) error {
	dev := r.find(addr)
	if dev == nil {
		for i := range data {
			data[i] = 0
		}

		return nil
	}

	return dev.Read(addr, data)
}

// Write dispatches a guest MMIO write at addr.
func (r *Registry) Write(addr uint64, data []byte) error {
	dev := r.find(addr)
	if dev == nil {
		return nil
	}

	return dev.Write(addr, data)
}
