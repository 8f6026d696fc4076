// Package gic drives an in-kernel GICv3 interrupt controller device
// created through KVM_CREATE_DEVICE: create, set the distributor and
// redistributor base addresses, finalize, then inject SPIs and PPIs
// through KVM_IRQ_LINE.
package gic

import (
	"fmt"

	"github.com/bobuhiro11/gokvm-arm64/kvm"
)

// Standard guest-physical addresses for the GICv3 distributor and
// redistributor regions on this VM's memory map.
const (
	DistBase   uint64 = 0x08000000
	DistSize   uint64 = 0x00010000
	RedistBase uint64 = 0x080A0000
	RedistSize uint64 = 0x00100000
)

// GIC owns the in-kernel GICv3 device fd and the VM fd IRQ_LINE ioctls are
// issued against.
type GIC struct {
	vmFd      uintptr
	devFd     uintptr
	finalized bool
}

// New creates an in-kernel GICv3 device, sets its distributor and
// redistributor base addresses, and finalizes it. nCPUs is only checked to
// be at least 1; the addresses do not depend on it. The returned GIC is
// ready for InjectSPI/InjectPPI.
func New(vmFd uintptr, nCPUs int) (*GIC, error) {
	if nCPUs < 1 {
		return nil, fmt.Errorf("gic: nCPUs must be >= 1, got %d", nCPUs)
	}

	devFd, err := kvm.CreateDevice(vmFd, kvm.DevTypeArmVGICV3)
	if err != nil {
		return nil, fmt.Errorf("create vgic-v3 device: %w", err)
	}

	g := &GIC{vmFd: vmFd, devFd: devFd}

	if err := kvm.SetDeviceAttrAddr(devFd, kvm.DevArmVGICGrpAddr, kvm.VGICV3AddrTypeDist, DistBase); err != nil {
		return nil, fmt.Errorf("set vgic distributor address: %w", err)
	}

	if err := kvm.SetDeviceAttrAddr(devFd, kvm.DevArmVGICGrpAddr, kvm.VGICV3AddrTypeRedist, RedistBase); err != nil {
		return nil, fmt.Errorf("set vgic redistributor address: %w", err)
	}

	if err := kvm.SetDeviceAttr(devFd, kvm.DevArmVGICGrpCtrl, kvm.DevArmVGICCtrlInit, 0); err != nil {
		return nil, fmt.Errorf("finalize vgic-v3: %w", err)
	}

	g.finalized = true

	return g, nil
}

// InjectSPI raises (or, if high is false, lowers) the shared peripheral
// interrupt identified by gicIRQ (>= 32). Devices model level-triggered
// lines, so low-then-high pulses should be issued as two calls.
func (g *GIC) InjectSPI(gicIRQ uint32, high bool) error {
	if !g.finalized {
		return kvm.ErrNotFinalized
	}

	return kvm.IRQLine(g.vmFd, gicIRQ, high)
}

// InjectPPI raises or lowers a private peripheral interrupt (16-31, e.g.
// the architected timer lines) for a specific vCPU.
func (g *GIC) InjectPPI(gicIRQ uint32, vcpuIndex uint32, high bool) error {
	if !g.finalized {
		return kvm.ErrNotFinalized
	}

	return kvm.PPILine(g.vmFd, gicIRQ, vcpuIndex, high)
}
