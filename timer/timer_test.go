package timer_test

import (
	"testing"

	"github.com/bobuhiro11/gokvm-arm64/timer"
)

func TestDTBInterruptsOrderAndEncoding(t *testing.T) {
	t.Parallel()

	cells := timer.DTBInterrupts()
	if len(cells) != 4 {
		t.Fatalf("len(cells) = %d, want 4", len(cells))
	}

	wantIRQ := []uint32{
		timer.PPISecurePhys - 16,
		timer.PPINonSecurePhys - 16,
		timer.PPIVirtual - 16,
		timer.PPIHypervisor - 16,
	}

	for i, c := range cells {
		if c.Type != 1 {
			t.Errorf("cells[%d].Type = %d, want 1 (PPI)", i, c.Type)
		}

		if c.IRQ != wantIRQ[i] {
			t.Errorf("cells[%d].IRQ = %d, want %d", i, c.IRQ, wantIRQ[i])
		}

		if c.Flags != 4 {
			t.Errorf("cells[%d].Flags = %d, want 4 (level-triggered, active-high)", i, c.Flags)
		}
	}
}
