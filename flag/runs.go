package flag

import (
	"os"

	"github.com/bobuhiro11/gokvm-arm64/machine"
	"github.com/bobuhiro11/gokvm-arm64/probe"
)

// Run implements kong's command interface for the probe subcommand.
func (p *ProbeCmd) Run() error {
	return probe.KVMCapabilities()
}

// Run implements kong's command interface for the boot subcommand.
func (b *BootCmd) Run() error {
	memSize, err := ParseSize(b.RAM, "m")
	if err != nil {
		return err
	}

	m, err := machine.New(machine.Config{
		KVMPath:     b.Dev,
		NCPUs:       b.NCPUs,
		MemSize:     memSize,
		KernelPath:  b.Kernel,
		InitrdPath:  b.Initrd,
		Cmdline:     b.Cmdline,
		Interactive: b.Interactive,
	})
	if err != nil {
		return err
	}

	defer m.Close()

	if err := m.LoadKernel(); err != nil {
		return err
	}

	if b.DTBOut != "" {
		if err := m.WriteDTB(b.DTBOut); err != nil {
			return err
		}
	}

	res, err := m.Boot()
	if err != nil {
		return err
	}

	if !res.Graceful {
		os.Exit(1)
	}

	return nil
}
