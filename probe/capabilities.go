// Package probe reports which KVM capabilities this module depends on are
// actually supported by the running host: open the device, query each
// capability, print one line per entry. arm64 KVM has no CPUID ioctl, so
// capability bits stand in for what an x86 VMM would learn from CPUID.
package probe

import (
	"fmt"

	"github.com/bobuhiro11/gokvm-arm64/kvm"
)

// KVMCapabilities opens /dev/kvm and prints one line per capability this
// module requires, noting whether the host supports it.
func KVMCapabilities() error {
	kvmFile, err := kvm.OpenDevice()
	if err != nil {
		return fmt.Errorf("open kvm device: %w", err)
	}
	defer kvmFile.Close()

	kvmFd := kvmFile.Fd()

	for _, c := range kvm.RequiredCapabilities {
		supported, err := kvm.CheckExtension(kvmFd, c)
		if err != nil {
			return fmt.Errorf("check extension %s: %w", c, err)
		}

		status := "not supported"
		if supported > 0 {
			status = fmt.Sprintf("supported (%d)", supported)
		}

		fmt.Printf("%-24s %s\n", c, status)
	}

	return nil
}
