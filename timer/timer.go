// Package timer names the ARM generic (architected) timer's PPI
// assignments. KVM's in-kernel timer emulation delivers these interrupts
// directly to the guest; this module does not emulate timer registers
// itself, only describes the wiring the guest's device tree must advertise
// so its kernel can find the timer.
package timer

// Standard architected timer PPI numbers (GIC interrupt IDs 16-31), as
// assigned by the devicetree/arm,arch_timer binding and used unchanged by
// every GICv3 + KVM arm64 guest.
const (
	PPISecurePhys    uint32 = 29
	PPINonSecurePhys uint32 = 30
	PPIVirtual       uint32 = 27
	PPIHypervisor    uint32 = 26
)

// InterruptCells describes one <interrupt-parent>-relative "interrupts"
// triple: {type, irq, flags}. Type 1 is PPI in the GIC devicetree binding;
// IRQ numbers in the binding are GIC-relative (subtract 16 from the raw
// PPI id); flags 4 means level-triggered, active-high.
type InterruptCells struct {
	Type, IRQ, Flags uint32
}

// DTBInterrupts returns the four interrupts cells (secure phys, non-secure
// phys, virtual, hypervisor) in the order the "interrupts" property of a
// /timer node must list them.
func DTBInterrupts() []InterruptCells {
	const levelHigh = 4

	ppi := func(id uint32) InterruptCells {
		return InterruptCells{Type: 1, IRQ: id - 16, Flags: levelHigh}
	}

	return []InterruptCells{
		ppi(PPISecurePhys),
		ppi(PPINonSecurePhys),
		ppi(PPIVirtual),
		ppi(PPIHypervisor),
	}
}
