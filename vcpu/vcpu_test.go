package vcpu_test

import (
	"os"
	"testing"

	"github.com/bobuhiro11/gokvm-arm64/kvm"
	"github.com/bobuhiro11/gokvm-arm64/vcpu"
)

func TestNewAndSetPC(t *testing.T) {
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

	mmapSize, err := kvm.GetVCPUMMapSize(kvmFile.Fd())
	if err != nil {
		t.Fatal(err)
	}

	v, err := vcpu.New(vmFd, 0, mmapSize)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	const kernelLoadAddr = 0x40080000

	if err := v.SetReg(kvm.RegPC, kernelLoadAddr); err != nil {
		t.Fatal(err)
	}

	got, err := v.GetReg(kvm.RegPC)
	if err != nil {
		t.Fatal(err)
	}

	if got != kernelLoadAddr {
		t.Fatalf("PC = %#x, want %#x", got, kernelLoadAddr)
	}

	// spec.md leaves VBAR_EL1/SP provisional: no assertion is made on
	// either register here, only that setting/reading PC round-trips.
}
