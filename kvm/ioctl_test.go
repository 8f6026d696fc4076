package kvm_test

import (
	"os"
	"testing"

	"github.com/bobuhiro11/gokvm-arm64/kvm"
)

func TestIoctlOnNonKVMFd(t *testing.T) {
	t.Parallel()

	f, err := os.CreateTemp(t.TempDir(), "notkvm")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := kvm.GetAPIVersion(f.Fd()); err == nil {
		t.Fatal("want error issuing a kvm ioctl against a non-kvm fd, got nil")
	}
}
