package kvm

import "unsafe"

// IRQ kinds, encoded into the top byte of the 32-bit irq field of
// kvm_irq_level on arm/arm64 (see KVM_ARM_IRQ_TYPE_* in
// arch/arm64/include/uapi/asm/kvm.h).
const (
	irqTypeCPU uint32 = 0 // SGI, software-generated
	irqTypeSPI uint32 = 1
	irqTypePPI uint32 = 2

	irqTypeShift = 24
	irqVCPUShift = 16
	irqVCPUMask  = 0xff
	irqNumMask   = 0xffff
)

// irqLevel mirrors struct kvm_irq_level.
type irqLevel struct {
	IRQ   uint32
	Level uint32
}

// encodeSPI builds the kvm_irq_level.irq field for a shared peripheral
// interrupt (gic IRQ id >= 32).
func encodeSPI(gicIRQ uint32) uint32 {
	return irqTypeSPI<<irqTypeShift | (gicIRQ & irqNumMask)
}

// encodePPI builds the kvm_irq_level.irq field for a private peripheral
// interrupt (gic IRQ id 16-31) targeting vcpuIndex.
func encodePPI(gicIRQ uint32, vcpuIndex uint32) uint32 {
	return irqTypePPI<<irqTypeShift | (vcpuIndex&irqVCPUMask)<<irqVCPUShift | (gicIRQ & irqNumMask)
}

// IRQLine raises or lowers the SPI identified by gicIRQ (a GIC interrupt ID
// >= 32).
func IRQLine(vmFd uintptr, gicIRQ uint32, high bool) error {
	return irqLineRaw(vmFd, encodeSPI(gicIRQ), high)
}

// PPILine raises or lowers the PPI identified by gicIRQ (16-31) for a
// specific vCPU.
func PPILine(vmFd uintptr, gicIRQ uint32, vcpuIndex uint32, high bool) error {
	return irqLineRaw(vmFd, encodePPI(gicIRQ, vcpuIndex), high)
}

func irqLineRaw(vmFd uintptr, irq uint32, high bool) error {
	level := uint32(0)
	if high {
		level = 1
	}

	l := irqLevel{IRQ: irq, Level: level}

	_, err := Ioctl(vmFd, IIOW(nrIRQLine, unsafe.Sizeof(l)), uintptr(unsafe.Pointer(&l)))

	return err
}
