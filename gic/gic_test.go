package gic_test

import (
	"os"
	"testing"

	"github.com/bobuhiro11/gokvm-arm64/gic"
	"github.com/bobuhiro11/gokvm-arm64/kvm"
)

func TestNewAndInject(t *testing.T) {
	t.Parallel()

	if os.Getuid() != 0 {
		t.Skip("test requires root and /dev/kvm access")
	}

	kvmFile, err := kvm.OpenDevice()
	if err != nil {
		t.Skipf("/dev/kvm unavailable: %v", err)
	}
	defer kvmFile.Close()

	vmFd, err := kvm.CreateVM(kvmFile.Fd())
	if err != nil {
		t.Fatal(err)
	}
	defer os.NewFile(vmFd, "vm").Close()

	if _, err := kvm.CreateVCPU(vmFd, 0); err != nil {
		t.Fatal(err)
	}

	g, err := gic.New(vmFd, 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := g.InjectSPI(33, true); err != nil {
		t.Fatal(err)
	}

	if err := g.InjectSPI(33, false); err != nil {
		t.Fatal(err)
	}
}

func TestInjectBeforeFinalize(t *testing.T) {
	t.Parallel()

	g := &gic.GIC{}

	if err := g.InjectSPI(33, true); err == nil {
		t.Fatal("want error injecting on an unfinalized GIC, got nil")
	}
}
