package probe_test

import (
	"os"
	"testing"

	"github.com/bobuhiro11/gokvm-arm64/probe"
)

func TestKVMCapabilitiesRequiresDevice(t *testing.T) {
	t.Parallel()

	if _, err := os.Stat("/dev/kvm"); err == nil {
		t.Skip("this test only exercises the missing-device path")
	}

	if err := probe.KVMCapabilities(); err == nil {
		t.Fatal("KVMCapabilities() with no /dev/kvm = nil error, want non-nil")
	}
}
