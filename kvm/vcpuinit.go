package kvm

import "unsafe"

// VCPUFeaturePSCI02 is the Features[0] bit (feature index 2,
// KVM_ARM_VCPU_PSCI_0_2) that enables PSCI 0.2+ emulation in
// KVM_ARM_VCPU_INIT, letting the guest kernel use HVC-based PSCI calls
// (CPU_ON, SYSTEM_OFF, ...) instead of spin-tables.
const VCPUFeaturePSCI02 uint32 = 1 << 2

// VCPUInit mirrors struct kvm_vcpu_init.
type VCPUInit struct {
	Target   uint32
	Features [7]uint32
}

// PreferredTarget fills in the vcpu_init.Target field the host prefers for
// this CPU, via KVM_ARM_PREFERRED_TARGET.
func PreferredTarget(vmFd uintptr) (VCPUInit, error) {
	var init VCPUInit

	_, err := Ioctl(vmFd, IIOR(nrArmPreferredTarget, unsafe.Sizeof(init)), uintptr(unsafe.Pointer(&init)))

	return init, err
}

// VCPUArmInit initializes a vCPU's architecture state via
// KVM_ARM_VCPU_INIT. Must happen before any register access or KVM_RUN.
func VCPUArmInit(vcpuFd uintptr, init *VCPUInit) error {
	_, err := Ioctl(vcpuFd, IIOW(nrArmVCPUInit, unsafe.Sizeof(*init)), uintptr(unsafe.Pointer(init)))

	return err
}
