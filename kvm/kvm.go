package kvm

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Request numbers for the generic (arch-independent) ioctls this module
// uses, plus the arm64-specific ones. Names and values follow
// include/uapi/linux/kvm.h.
const (
	nrGetAPIVersion  = 0x00
	nrCreateVM       = 0x01
	nrCheckExtension = 0x03
	nrGetVCPUMMSize  = 0x04
	nrCreateVCPU     = 0x41
	nrRun            = 0x80

	nrSetUserMemoryRegion = 0x46
	nrIRQLine             = 0x61

	nrGetOneReg = 0xab
	nrSetOneReg = 0xac

	nrArmVCPUInit        = 0xae
	nrArmPreferredTarget = 0xaf

	nrCreateDevice  = 0xe0
	nrSetDeviceAttr = 0xe1
	nrHasDeviceAttr = 0xe3
)

// OpenDevice opens /dev/kvm.
func OpenDevice() (*os.File, error) {
	return os.OpenFile("/dev/kvm", os.O_RDWR, 0)
}

// GetAPIVersion returns the KVM API version, which must be 12.
func GetAPIVersion(kvmFd uintptr) (int, error) {
	r, err := Ioctl(kvmFd, IIO(nrGetAPIVersion), 0)

	return int(r), err
}

// CreateVM creates a new VM and returns its file descriptor.
func CreateVM(kvmFd uintptr) (uintptr, error) {
	return Ioctl(kvmFd, IIO(nrCreateVM), 0)
}

// CheckExtension reports whether cap is supported, either by the /dev/kvm
// fd (global capability) or a vmFd (per-VM capability).
func CheckExtension(fd uintptr, cap Capability) (int, error) {
	r, err := Ioctl(fd, IIO(nrCheckExtension), uintptr(cap))

	return int(r), err
}

// CreateVCPU creates vcpuID within vmFd and returns its file descriptor.
func CreateVCPU(vmFd uintptr, vcpuID int) (uintptr, error) {
	return Ioctl(vmFd, IIO(nrCreateVCPU), uintptr(vcpuID))
}

// GetVCPUMMapSize returns the size in bytes of the shared kvm_run page that
// must be mmap'd over each vCPU fd.
func GetVCPUMMapSize(kvmFd uintptr) (int, error) {
	r, err := Ioctl(kvmFd, IIO(nrGetVCPUMMSize), 0)

	return int(r), err
}

// mmioExit mirrors the "mmio" arm of struct kvm_run's exit union.
type mmioExit struct {
	PhysAddr uint64
	Data     [8]byte
	Len      uint32
	IsWrite  uint8
	_        [3]byte
}

// systemEventExit mirrors the "system_event" arm of the exit union.
type systemEventExit struct {
	Type  uint32
	Flags uint64
}

// failEntryExit mirrors the "fail_entry" arm of the exit union.
type failEntryExit struct {
	HardwareEntryFailureReason uint64
}

// RunData mirrors struct kvm_run as mmap'd over a vCPU fd. Only the fields
// this module reads or writes are named explicitly; the rest of the
// exit-reason union and the register-bitmap tail are kept as raw padding.
type RunData struct {
	RequestInterruptWindow    uint8
	ImmediateExit             uint8
	padding1                  [6]uint8
	ExitReason                uint32
	ReadyForInterruptInjection uint8
	IfFlag                    uint8
	Flags                     uint16
	CR8                       uint64 // unused on arm64, kept for struct fidelity
	ApicBase                  uint64 // unused on arm64, kept for struct fidelity
	union                     [256]byte
	KVMValidRegs              uint64
	KVMDirtyRegs              uint64
	s                         [2048]byte
}

// MMIO interprets the exit union as an mmio exit. Only valid when
// ExitReason == ExitMMIO.
func (r *RunData) MMIO() (addr uint64, data []byte, length uint32, isWrite bool) {
	m := (*mmioExit)(unsafe.Pointer(&r.union[0]))

	return m.PhysAddr, m.Data[:], m.Len, m.IsWrite != 0
}

// SetMMIOData writes back the result of an MMIO read into the exit union so
// that resuming KVM_RUN delivers it to the guest.
func (r *RunData) SetMMIOData(data []byte) {
	m := (*mmioExit)(unsafe.Pointer(&r.union[0]))
	copy(m.Data[:], data)
}

// SetMMIOForTest populates the exit union as an mmio exit, for tests in
// other packages that need to exercise MMIO dispatch without a real
// KVM_RUN.
func (r *RunData) SetMMIOForTest(addr uint64, length uint32, isWrite bool, data []byte) {
	r.ExitReason = uint32(ExitMMIO)

	m := (*mmioExit)(unsafe.Pointer(&r.union[0]))
	m.PhysAddr = addr
	m.Len = length

	if isWrite {
		m.IsWrite = 1
	}

	copy(m.Data[:], data)
}

// SystemEvent interprets the exit union as a system_event exit. Only valid
// when ExitReason == ExitSystemEvent.
func (r *RunData) SystemEvent() (typ SystemEventType, flags uint64) {
	e := (*systemEventExit)(unsafe.Pointer(&r.union[0]))

	return SystemEventType(e.Type), e.Flags
}

// FailEntryReason interprets the exit union as a fail_entry exit. Only
// valid when ExitReason == ExitFailEntry.
func (r *RunData) FailEntryReason() uint64 {
	e := (*failEntryExit)(unsafe.Pointer(&r.union[0]))

	return e.HardwareEntryFailureReason
}

// SetImmediateExit asks KVM to return from a currently-blocked or
// about-to-be-issued KVM_RUN as soon as possible. arm64's WFI does not by
// itself cause a vmexit the way x86's HLT does, so this is the mechanism
// the run loop uses to unblock a vCPU parked in WFI to deliver a pending
// interrupt or handle a signal.
func (r *RunData) SetImmediateExit(on bool) {
	if on {
		r.ImmediateExit = 1
	} else {
		r.ImmediateExit = 0
	}
}

// Run executes one round of guest code via KVM_RUN. EAGAIN and EINTR mean
// the call was interrupted (typically by the immediate_exit mechanism or a
// host signal) before or during entry; run_loop treats that the same as a
// dedicated Interrupted exit reason, since RunData's exit_reason field is
// left stale (the guest never actually exited) rather than updated to
// reflect the interruption. This issues KVM_RUN through IoctlNoRetry rather
// than Ioctl: the generic helper retries internally on EINTR, which would
// silently re-issue KVM_RUN and swallow the very interruption this
// function exists to report.
func Run(vcpuFd uintptr) error {
	_, err := IoctlNoRetry(vcpuFd, IIO(nrRun), 0)
	if err == unix.EAGAIN || err == unix.EINTR {
		return ErrInterrupted
	}

	return err
}
