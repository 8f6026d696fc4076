package kvm_test

import (
	"testing"

	"github.com/bobuhiro11/gokvm-arm64/kvm"
)

func TestExitReasonStringer(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		r    kvm.ExitReason
		want string
	}{
		{kvm.ExitMMIO, "EXIT_MMIO"},
		{kvm.ExitHLT, "EXIT_HLT"},
		{kvm.ExitSystemEvent, "EXIT_SYSTEM_EVENT"},
		{kvm.ExitFailEntry, "EXIT_FAIL_ENTRY"},
		{kvm.ExitIntr, "EXIT_INTR"},
		{kvm.ExitInternalError, "EXIT_INTERNAL_ERROR"},
		{kvm.ExitReason(999), "EXIT_UNKNOWN_REASON"},
	} {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("ExitReason(%d).String() = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestSystemEventTypeStringer(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		e    kvm.SystemEventType
		want string
	}{
		{kvm.SystemEventShutdown, "SHUTDOWN"},
		{kvm.SystemEventReset, "RESET"},
		{kvm.SystemEventCrash, "CRASH"},
		{kvm.SystemEventType(42), "UNKNOWN"},
	} {
		if got := tt.e.String(); got != tt.want {
			t.Errorf("SystemEventType(%d).String() = %q, want %q", tt.e, got, tt.want)
		}
	}
}
