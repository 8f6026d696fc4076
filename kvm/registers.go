package kvm

import "unsafe"

// Register ID encoding for KVM_GET_ONE_REG / KVM_SET_ONE_REG, following
// arch/arm64/include/uapi/asm/kvm.h.
const (
	regArch     uint64 = 0x6000000000000000
	regSizeU32  uint64 = 0x0020000000000000
	regSizeU64  uint64 = 0x0030000000000000
	regSizeMask uint64 = 0x00f0000000000000

	regCoreCoproc   uint64 = 0x0010 << 16
	regSysRegCoproc uint64 = 0x0013 << 16

	sysOp0Shift = 14
	sysOp1Shift = 11
	sysCRnShift = 7
	sysCRmShift = 3
	sysOp2Shift = 0
)

// coreReg builds a KVM_REG_ARM_CORE register id from a word offset into
// struct kvm_regs (offset counted in 4-byte units, matching
// KVM_REG_ARM_CORE_REG()).
func coreReg(wordOffset uint64) uint64 {
	return regArch | regSizeU64 | regCoreCoproc | wordOffset
}

// sysReg builds a KVM_REG_ARM64_SYSREG id from the Op0/Op1/CRn/CRm/Op2
// tuple that identifies an AArch64 system register.
func sysReg(op0, op1, crn, crm, op2 uint64) uint64 {
	return regArch | regSizeU64 | regSysRegCoproc |
		op0<<sysOp0Shift | op1<<sysOp1Shift | crn<<sysCRnShift | crm<<sysCRmShift | op2<<sysOp2Shift
}

// Core register ids: struct kvm_regs { struct user_pt_regs regs; ... }, and
// user_pt_regs is { __u64 regs[31]; __u64 sp; __u64 pc; __u64 pstate; }, so
// word offsets are 2*index for regs[index], then 62/64/66 for sp/pc/pstate.
var (
	RegX      = func(n int) uint64 { return coreReg(uint64(2 * n)) }
	RegSP     = coreReg(62)
	RegPC     = coreReg(64)
	RegPState = coreReg(66)
)

// System register ids. The fault dumper reads ELR_EL1, ESR_EL1 and
// FAR_EL1; the boot loader programs none of these.
var (
	RegSCTLREL1 = sysReg(3, 0, 1, 0, 0)
	RegVBAREL1  = sysReg(3, 0, 12, 0, 0)
	RegELREL1   = sysReg(3, 0, 4, 0, 1)
	RegESREL1   = sysReg(3, 0, 5, 2, 0)
	RegFAREL1   = sysReg(3, 0, 6, 0, 0)
	RegMPIDREL1 = sysReg(3, 0, 0, 0, 5)
)

// GetOneReg reads the 64-bit register identified by id into *val.
func GetOneReg(vcpuFd uintptr, id uint64, val *uint64) error {
	oneReg := struct {
		ID   uint64
		Addr uint64
	}{ID: id, Addr: uint64(uintptr(unsafe.Pointer(val)))}

	_, err := Ioctl(vcpuFd, IIOW(nrGetOneReg, unsafe.Sizeof(oneReg)), uintptr(unsafe.Pointer(&oneReg)))

	return err
}

// SetOneReg writes val into the 64-bit register identified by id.
func SetOneReg(vcpuFd uintptr, id uint64, val uint64) error {
	oneReg := struct {
		ID   uint64
		Addr uint64
	}{ID: id, Addr: uint64(uintptr(unsafe.Pointer(&val)))}

	_, err := Ioctl(vcpuFd, IIOW(nrSetOneReg, unsafe.Sizeof(oneReg)), uintptr(unsafe.Pointer(&oneReg)))

	return err
}
