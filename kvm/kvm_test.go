package kvm_test

import (
	"os"
	"testing"

	"github.com/bobuhiro11/gokvm-arm64/kvm"
)

func requireKVM(t *testing.T) uintptr {
	t.Helper()

	if os.Getuid() != 0 {
		t.Skipf("test requires root and /dev/kvm access")
	}

	f, err := kvm.OpenDevice()
	if err != nil {
		t.Skipf("/dev/kvm unavailable: %v", err)
	}

	t.Cleanup(func() { f.Close() })

	return f.Fd()
}

func TestGetAPIVersion(t *testing.T) {
	t.Parallel()

	kvmFd := requireKVM(t)

	v, err := kvm.GetAPIVersion(kvmFd)
	if err != nil {
		t.Fatal(err)
	}

	if v != 12 {
		t.Fatalf("GetAPIVersion() = %d, want 12", v)
	}
}

func TestCreateVM(t *testing.T) {
	t.Parallel()

	kvmFd := requireKVM(t)

	vmFd, err := kvm.CreateVM(kvmFd)
	if err != nil {
		t.Fatal(err)
	}

	defer os.NewFile(vmFd, "vm").Close()
}

func TestCreateVCPUAndMMapSize(t *testing.T) {
	t.Parallel()

	kvmFd := requireKVM(t)

	vmFd, err := kvm.CreateVM(kvmFd)
	if err != nil {
		t.Fatal(err)
	}
	defer os.NewFile(vmFd, "vm").Close()

	size, err := kvm.GetVCPUMMapSize(kvmFd)
	if err != nil {
		t.Fatal(err)
	}

	if size <= 0 {
		t.Fatalf("GetVCPUMMapSize() = %d, want > 0", size)
	}

	vcpuFd, err := kvm.CreateVCPU(vmFd, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer os.NewFile(vcpuFd, "vcpu").Close()
}

func TestPreferredTargetAndVCPUInit(t *testing.T) {
	t.Parallel()

	kvmFd := requireKVM(t)

	vmFd, err := kvm.CreateVM(kvmFd)
	if err != nil {
		t.Fatal(err)
	}
	defer os.NewFile(vmFd, "vm").Close()

	vcpuFd, err := kvm.CreateVCPU(vmFd, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer os.NewFile(vcpuFd, "vcpu").Close()

	init, err := kvm.PreferredTarget(vmFd)
	if err != nil {
		t.Fatal(err)
	}

	init.Features[0] |= kvm.VCPUFeaturePSCI02

	if err := kvm.VCPUArmInit(vcpuFd, &init); err != nil {
		t.Fatal(err)
	}
}

func TestCreateVCPUWithBadVMFd(t *testing.T) {
	t.Parallel()

	requireKVM(t)

	if _, err := kvm.CreateVCPU(^uintptr(0), 0); err == nil {
		t.Fatal("want error creating a vcpu on an invalid vm fd, got nil")
	}
}
