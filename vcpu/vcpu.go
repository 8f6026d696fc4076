// Package vcpu owns the per-vCPU lifecycle: creation, PSCI-enabled
// KVM_ARM_VCPU_INIT, the shared kvm_run mapping, and the core/system
// register get/set calls the boot loader and fault dumper need.
package vcpu

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bobuhiro11/gokvm-arm64/kvm"
)

// VCPU is one virtual CPU: its fd, index, and the kvm_run page KVM_RUN
// exits are reported through.
type VCPU struct {
	fd    uintptr
	index int
	run   *kvm.RunData
	mem   []byte
}

// New creates vCPU index within vmFd, runs KVM_ARM_VCPU_INIT with PSCI 0.2
// support enabled, and mmaps its kvm_run page (mmapSize bytes, as returned
// by kvm.GetVCPUMMapSize).
func New(vmFd uintptr, index int, mmapSize int) (*VCPU, error) {
	fd, err := kvm.CreateVCPU(vmFd, index)
	if err != nil {
		return nil, fmt.Errorf("create vcpu %d: %w", index, err)
	}

	init, err := kvm.PreferredTarget(vmFd)
	if err != nil {
		return nil, fmt.Errorf("preferred target for vcpu %d: %w", index, err)
	}

	init.Features[0] |= kvm.VCPUFeaturePSCI02

	if err := kvm.VCPUArmInit(fd, &init); err != nil {
		return nil, fmt.Errorf("arm vcpu init %d: %w", index, err)
	}

	mem, err := unix.Mmap(int(fd), 0, mmapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap kvm_run for vcpu %d: %w", index, err)
	}

	return &VCPU{
		fd:    fd,
		index: index,
		run:   (*kvm.RunData)(unsafe.Pointer(&mem[0])),
		mem:   mem,
	}, nil
}

// Index returns this vCPU's zero-based index within the VM.
func (v *VCPU) Index() int { return v.index }

// Run returns the shared kvm_run page.
func (v *VCPU) Run() *kvm.RunData { return v.run }

// SetReg writes a core or system register identified by id (see
// kvm.RegX/RegSP/RegPC/RegPState/RegSCTLREL1/...).
func (v *VCPU) SetReg(id uint64, val uint64) error {
	return kvm.SetOneReg(v.fd, id, val)
}

// GetReg reads a core or system register identified by id.
func (v *VCPU) GetReg(id uint64) (uint64, error) {
	var val uint64

	err := kvm.GetOneReg(v.fd, id, &val)

	return val, err
}

// SetImmediateExit arms or disarms the immediate_exit mechanism used to
// unblock a vCPU parked in WFI or about to enter KVM_RUN.
func (v *VCPU) SetImmediateExit(on bool) {
	v.run.SetImmediateExit(on)
}

// RunOnce issues one KVM_RUN. Callers inspect Run().ExitReason afterward.
func (v *VCPU) RunOnce() error {
	return kvm.Run(v.fd)
}

// Close releases the kvm_run mapping and the vCPU fd.
func (v *VCPU) Close() error {
	if err := unix.Munmap(v.mem); err != nil {
		return err
	}

	return os.NewFile(v.fd, fmt.Sprintf("vcpu%d", v.index)).Close()
}
