// Package boot places the kernel image, initramfs, and device tree blob
// in guest RAM and programs a vCPU's initial architectural state per the
// ARM64 Linux boot protocol (Image header plus a flattened device tree,
// rather than x86's e820/boot_params scheme).
package boot

import (
	"bytes"
	"fmt"

	"github.com/bobuhiro11/gokvm-arm64/kernelimage"
	"github.com/bobuhiro11/gokvm-arm64/kvm"
	"github.com/bobuhiro11/gokvm-arm64/memory"
	"github.com/bobuhiro11/gokvm-arm64/vcpu"
)

// RAMBase is the fixed guest-physical start of RAM on this platform.
const RAMBase uint64 = 0x40000000

// initrdGap is the distance from RAMBase to the initrd placement address.
// Early kernel memory allocation starts near the loaded kernel image and
// can clobber data placed immediately after it; keeping the initrd this
// far away avoids a corrupted-initramfs boot failure.
const initrdGap = 128 << 20

const pageSize = 0x1000

// PSTATE for EL1h with all asynchronous exceptions masked: mode=0x5 (EL1h)
// | D (bit 9) | A (bit 8) | I (bit 7) | F (bit 6).
const initialPSTATE uint64 = 0x3c5

// Info describes where the boot loader placed each image, for the DTB
// generator's /chosen node and for diagnostics.
type Info struct {
	KernelAddr uint64
	InitrdAddr uint64
	InitrdEnd  uint64
	DTBAddr    uint64
	DTBSize    uint64
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// PlaceImages copies kernel (a parsed ARM64 Image), an optional initrd, and
// a serialized DTB into region, following the placement rules in §4.10:
// the kernel goes at RAMBase+text_offset, the initrd (if present) at
// RAMBase+128MiB, and the DTB immediately after whichever of those two
// ends later, all page-aligned.
func PlaceImages(region *memory.Region, kernelImage []byte, initrd []byte, dtbBytes []byte) (Info, error) {
	hdr, err := kernelimage.Parse(kernelImage)
	if err != nil {
		return Info{}, fmt.Errorf("parse kernel image: %w", err)
	}

	kernelAddr := RAMBase + hdr.EffectiveTextOffset

	if _, err := region.LoadFile(kernelAddr, bytes.NewReader(kernelImage)); err != nil {
		return Info{}, fmt.Errorf("load kernel: %w", err)
	}

	kernelEnd := alignUp(kernelAddr+uint64(len(kernelImage)), pageSize)

	info := Info{KernelAddr: kernelAddr}

	dtbPlacementFloor := kernelEnd

	if len(initrd) > 0 {
		info.InitrdAddr = alignUp(RAMBase+initrdGap, pageSize)

		if _, err := region.LoadFile(info.InitrdAddr, bytes.NewReader(initrd)); err != nil {
			return Info{}, fmt.Errorf("load initrd: %w", err)
		}

		info.InitrdEnd = info.InitrdAddr + uint64(len(initrd))
		dtbPlacementFloor = alignUp(info.InitrdEnd, pageSize)
	}

	info.DTBAddr = dtbPlacementFloor

	if _, err := region.LoadFile(info.DTBAddr, bytes.NewReader(dtbBytes)); err != nil {
		return Info{}, fmt.Errorf("load dtb: %w", err)
	}

	info.DTBSize = uint64(len(dtbBytes))

	return info, nil
}

// SetupVCPURegs programs v's initial architectural state per §4.10:
// X0 = dtb address, X1-X3 = 0, PC = kernel address, PSTATE = EL1h with all
// asynchronous exceptions masked. VBAR_EL1 and SP are left at whatever
// KVM_ARM_VCPU_INIT set them to: spec.md treats those as provisional values
// the kernel overwrites before relying on them, so this loader does not
// program them.
func SetupVCPURegs(v *vcpu.VCPU, info Info) error {
	regs := []struct {
		id  uint64
		val uint64
	}{
		{kvm.RegX(0), info.DTBAddr},
		{kvm.RegX(1), 0},
		{kvm.RegX(2), 0},
		{kvm.RegX(3), 0},
		{kvm.RegPC, info.KernelAddr},
		{kvm.RegPState, initialPSTATE},
	}

	for _, r := range regs {
		if err := v.SetReg(r.id, r.val); err != nil {
			return fmt.Errorf("set register: %w", err)
		}
	}

	return nil
}
