package kvm

import "errors"

var (
	// ErrUnexpectedExitReason is returned when a KVM_RUN exit carries an
	// exit_reason this package does not know how to interpret.
	ErrUnexpectedExitReason = errors.New("unexpected kvm exit reason")

	// ErrNotFinalized is returned when an operation on the GICv3 device is
	// attempted before KVM_DEV_ARM_VGIC_CTRL_INIT has been issued.
	ErrNotFinalized = errors.New("gic device not finalized")

	// ErrNoPreferredTarget is returned when KVM_ARM_PREFERRED_TARGET fails,
	// which on a real host usually means the kernel has no KVM/arm64
	// support at all.
	ErrNoPreferredTarget = errors.New("no preferred vcpu target available")

	// ErrInterrupted is Run's sentinel "Interrupted" exit: KVM_RUN
	// returned EAGAIN or EINTR rather than completing normally.
	ErrInterrupted = errors.New("kvm run interrupted")
)

// ExitReason mirrors struct kvm_run's exit_reason field (arch-independent
// values only; arm64 never produces the x86-only reasons).
type ExitReason uint32

const (
	ExitUnknown       ExitReason = 0
	ExitException     ExitReason = 1
	ExitIO            ExitReason = 2
	ExitHypercall     ExitReason = 3
	ExitDebug         ExitReason = 4
	ExitHLT           ExitReason = 5
	ExitMMIO          ExitReason = 6
	ExitIRQWindowOpen ExitReason = 7
	ExitShutdown      ExitReason = 8
	ExitFailEntry     ExitReason = 9
	ExitIntr          ExitReason = 10
	ExitSetTPR        ExitReason = 11
	ExitTPRAccess     ExitReason = 12
	ExitInternalError ExitReason = 17
	ExitSystemEvent   ExitReason = 24
)

//go:generate stringer -type=ExitReason

func (e ExitReason) String() string {
	switch e {
	case ExitUnknown:
		return "EXIT_UNKNOWN"
	case ExitException:
		return "EXIT_EXCEPTION"
	case ExitIO:
		return "EXIT_IO"
	case ExitHypercall:
		return "EXIT_HYPERCALL"
	case ExitDebug:
		return "EXIT_DEBUG"
	case ExitHLT:
		return "EXIT_HLT"
	case ExitMMIO:
		return "EXIT_MMIO"
	case ExitIRQWindowOpen:
		return "EXIT_IRQ_WINDOW_OPEN"
	case ExitShutdown:
		return "EXIT_SHUTDOWN"
	case ExitFailEntry:
		return "EXIT_FAIL_ENTRY"
	case ExitIntr:
		return "EXIT_INTR"
	case ExitSetTPR:
		return "EXIT_SET_TPR"
	case ExitTPRAccess:
		return "EXIT_TPR_ACCESS"
	case ExitInternalError:
		return "EXIT_INTERNAL_ERROR"
	case ExitSystemEvent:
		return "EXIT_SYSTEM_EVENT"
	default:
		return "EXIT_UNKNOWN_REASON"
	}
}

// SystemEventType mirrors kvm_run.system_event.type for ExitSystemEvent.
type SystemEventType uint32

const (
	SystemEventShutdown SystemEventType = 1
	SystemEventReset    SystemEventType = 2
	SystemEventCrash    SystemEventType = 3
)

func (t SystemEventType) String() string {
	switch t {
	case SystemEventShutdown:
		return "SHUTDOWN"
	case SystemEventReset:
		return "RESET"
	case SystemEventCrash:
		return "CRASH"
	default:
		return "UNKNOWN"
	}
}
