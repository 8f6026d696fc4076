package machine

import (
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"github.com/bobuhiro11/gokvm-arm64/kvm"
)

// dumpOnFailure logs vCPU 0's register file and a short disassembly window
// around its PC before returning the original error, so a fatal exit
// (internal error, fail entry, unexpected exit reason) leaves enough
// context behind to diagnose without a live debugger attached.
func (m *Machine) dumpOnFailure(cause error) error {
	dump, dumpErr := m.registerDump()
	if dumpErr != nil {
		return fmt.Errorf("%w (register dump also failed: %v)", cause, dumpErr)
	}

	return fmt.Errorf("%w\n%s", cause, dump)
}

// registerDump renders vCPU 0's general-purpose registers, PC, SP, PSTATE,
// the raw values of ELR_EL1, ESR_EL1 and FAR_EL1, and the disassembly of a
// handful of instructions at PC.
func (m *Machine) registerDump() (string, error) {
	v := m.vcpus[0]

	var b strings.Builder

	for i := 0; i < 31; i++ {
		val, err := v.GetReg(kvm.RegX(i))
		if err != nil {
			return "", fmt.Errorf("get x%d: %w", i, err)
		}

		fmt.Fprintf(&b, "x%-2d = %#018x", i, val)

		if i%2 == 1 {
			b.WriteByte('\n')
		} else {
			b.WriteByte(' ')
		}
	}

	b.WriteByte('\n')

	pc, err := v.GetReg(kvm.RegPC)
	if err != nil {
		return "", fmt.Errorf("get pc: %w", err)
	}

	sp, err := v.GetReg(kvm.RegSP)
	if err != nil {
		return "", fmt.Errorf("get sp: %w", err)
	}

	pstate, err := v.GetReg(kvm.RegPState)
	if err != nil {
		return "", fmt.Errorf("get pstate: %w", err)
	}

	fmt.Fprintf(&b, "pc  = %#018x sp = %#018x pstate = %#010x\n", pc, sp, pstate)

	for _, r := range []struct {
		name string
		id   uint64
	}{
		{"elr_el1", kvm.RegELREL1},
		{"esr_el1", kvm.RegESREL1},
		{"far_el1", kvm.RegFAREL1},
	} {
		val, err := v.GetReg(r.id)
		if err != nil {
			return "", fmt.Errorf("get %s: %w", r.name, err)
		}

		fmt.Fprintf(&b, "%s = %#018x\n", r.name, val)
	}

	fmt.Fprint(&b, disasmAt(m.mem.Bytes(), m.mem.Base(), pc))

	return b.String(), nil
}

// disasmAt decodes up to four instructions starting at guest physical
// address pc, given the host-mapped guest memory backing buf starting at
// guest physical address base. It stops at the first undecodable word
// instead of failing the whole dump, since a crash PC is often exactly
// where disassembly legitimately breaks down (e.g. mid-corruption).
func disasmAt(buf []byte, base uint64, pc uint64) string {
	if pc < base || pc+4 > base+uint64(len(buf)) {
		return "(pc outside guest memory, no disassembly available)\n"
	}

	off := pc - base

	var b strings.Builder

	for i := 0; i < 4; i++ {
		start := off + uint64(i*4)
		if start+4 > uint64(len(buf)) {
			break
		}

		inst, err := arm64asm.Decode(buf[start : start+4])
		if err != nil {
			fmt.Fprintf(&b, "%#x: <undecodable: %v>\n", pc+uint64(i*4), err)

			break
		}

		fmt.Fprintf(&b, "%#x: %s\n", pc+uint64(i*4), inst.String())
	}

	return b.String()
}
