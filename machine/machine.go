// Package machine wires together kvm, memory, gic, device, uart, vcpu,
// boot, and dtb into one runnable VM: open the device, create the VM,
// create the GICv3, map guest memory, create vCPUs, and register the
// platform's fixed-address MMIO devices. It also owns the register and
// disassembly dump produced on a fatal exit.
package machine

import (
	"bufio"
	"fmt"
	"os"

	"github.com/bobuhiro11/gokvm-arm64/boot"
	"github.com/bobuhiro11/gokvm-arm64/device"
	"github.com/bobuhiro11/gokvm-arm64/dtb"
	"github.com/bobuhiro11/gokvm-arm64/gic"
	"github.com/bobuhiro11/gokvm-arm64/kernelimage"
	"github.com/bobuhiro11/gokvm-arm64/kvm"
	"github.com/bobuhiro11/gokvm-arm64/memory"
	"github.com/bobuhiro11/gokvm-arm64/runloop"
	"github.com/bobuhiro11/gokvm-arm64/term"
	"github.com/bobuhiro11/gokvm-arm64/uart"
	"github.com/bobuhiro11/gokvm-arm64/vcpu"
)

// Config is everything needed to build and boot a Machine.
type Config struct {
	KVMPath     string
	NCPUs       int
	MemSize     int
	KernelPath  string
	InitrdPath  string
	Cmdline     string
	Interactive bool
}

// Machine owns every live resource of one VM: its /dev/kvm and VM fds, its
// guest memory region, its GICv3, its MMIO device registry, and its vCPUs.
type Machine struct {
	kvmFile *os.File
	vmFd    uintptr

	mem *memory.Region
	gic *gic.GIC

	devices *device.Registry
	uart    *uart.UART

	vcpus []*vcpu.VCPU

	cfg      Config
	dtbBytes []byte
}

// irqForwarder adapts the GIC's SPI injection to uart.IRQInjector.
type irqForwarder struct {
	g   *gic.GIC
	irq uint32
}

func (f irqForwarder) InjectUARTIRQ() error {
	if err := f.g.InjectSPI(f.irq, true); err != nil {
		return err
	}

	return f.g.InjectSPI(f.irq, false)
}

const defaultUARTIRQ uint32 = 33

// New opens the KVM device, creates a VM, creates the GICv3 (before any
// vCPU, per the GIC lifecycle requirement), registers guest RAM, and
// creates cfg.NCPUs vCPUs.
func New(cfg Config) (*Machine, error) {
	if cfg.NCPUs < 1 {
		cfg.NCPUs = 1
	}

	kvmPath := cfg.KVMPath
	if kvmPath == "" {
		kvmPath = "/dev/kvm"
	}

	kvmFile, err := os.OpenFile(kvmPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", kvmPath, err)
	}

	if v, err := kvm.GetAPIVersion(kvmFile.Fd()); err != nil || v != 12 {
		kvmFile.Close()

		return nil, fmt.Errorf("unexpected kvm api version %d (err=%v)", v, err)
	}

	for _, c := range kvm.RequiredCapabilities {
		if n, err := kvm.CheckExtension(kvmFile.Fd(), c); err != nil || n <= 0 {
			kvmFile.Close()

			return nil, fmt.Errorf("required kvm capability %s not supported (err=%v)", c, err)
		}
	}

	vmFd, err := kvm.CreateVM(kvmFile.Fd())
	if err != nil {
		kvmFile.Close()

		return nil, fmt.Errorf("create vm: %w", err)
	}

	g, err := gic.New(vmFd, cfg.NCPUs)
	if err != nil {
		return nil, fmt.Errorf("create gic: %w", err)
	}

	mem, err := memory.New(vmFd, boot.RAMBase, cfg.MemSize)
	if err != nil {
		return nil, fmt.Errorf("create guest memory: %w", err)
	}

	mmapSize, err := kvm.GetVCPUMMapSize(kvmFile.Fd())
	if err != nil {
		return nil, fmt.Errorf("get vcpu mmap size: %w", err)
	}

	vcpus := make([]*vcpu.VCPU, cfg.NCPUs)

	for i := 0; i < cfg.NCPUs; i++ {
		v, err := vcpu.New(vmFd, i, mmapSize)
		if err != nil {
			return nil, fmt.Errorf("create vcpu %d: %w", i, err)
		}

		vcpus[i] = v
	}

	m := &Machine{
		kvmFile: kvmFile,
		vmFd:    vmFd,
		mem:     mem,
		gic:     g,
		devices: device.NewRegistry(),
		vcpus:   vcpus,
		cfg:     cfg,
	}

	m.uart = uart.New(irqForwarder{g: g, irq: defaultUARTIRQ})
	m.devices.Register(m.uart)

	return m, nil
}

// LoadKernel parses and places the kernel image, optional initrd, and a
// freshly-generated DTB into guest memory, and programs vCPU 0's initial
// register state to enter the kernel.
func (m *Machine) LoadKernel() error {
	kernelImg, err := os.ReadFile(m.cfg.KernelPath)
	if err != nil {
		return fmt.Errorf("read kernel: %w", err)
	}

	if _, err := kernelimage.Parse(kernelImg); err != nil {
		return fmt.Errorf("parse kernel: %w", err)
	}

	var initrd []byte

	if m.cfg.InitrdPath != "" {
		initrd, err = os.ReadFile(m.cfg.InitrdPath)
		if err != nil {
			return fmt.Errorf("read initrd: %w", err)
		}
	}

	// The DTB references the final initrd placement, so a first pass
	// through PlaceImages with a zero-length placeholder DTB determines
	// addresses, and a second pass writes the real DTB once generated.
	placeholderInfo, err := boot.PlaceImages(m.mem, kernelImg, initrd, nil)
	if err != nil {
		return fmt.Errorf("place images: %w", err)
	}

	dtbBytes, err := dtb.Generate(dtb.Config{
		RAMBase:     boot.RAMBase,
		RAMSize:     m.mem.Size(),
		NCPUs:       len(m.vcpus),
		Cmdline:     m.cfg.Cmdline,
		InitrdStart: placeholderInfo.InitrdAddr,
		InitrdEnd:   placeholderInfo.InitrdEnd,
	})
	if err != nil {
		return fmt.Errorf("generate dtb: %w", err)
	}

	info, err := boot.PlaceImages(m.mem, kernelImg, initrd, dtbBytes)
	if err != nil {
		return fmt.Errorf("place images with dtb: %w", err)
	}

	m.dtbBytes = dtbBytes

	return boot.SetupVCPURegs(m.vcpus[0], info)
}

// WriteDTB writes the device tree blob generated by the most recent
// LoadKernel call to path, for inspection with external devicetree tooling.
func (m *Machine) WriteDTB(path string) error {
	return os.WriteFile(path, m.dtbBytes, 0o644)
}

// Boot runs vCPU 0 to completion (shutdown, reset, halt, or fatal error),
// wiring up interactive terminal/stdin handling when cfg.Interactive and
// stdin is actually a terminal.
func (m *Machine) Boot() (runloop.Result, error) {
	opts := runloop.Options{
		VCPU:    m.vcpus[0],
		Devices: m.devices,
	}

	interactive := m.cfg.Interactive && term.IsTerminal(term.Stdin)

	if interactive {
		restore, err := term.SetRawMode(term.Stdin)
		if err != nil {
			return runloop.Result{}, fmt.Errorf("set raw terminal mode: %w", err)
		}

		opts.Interactive = true
		opts.UART = m.uart
		opts.Stdin = bufio.NewReader(os.Stdin)
		opts.RestoreTerm = restore
	}

	res, err := runloop.Run(opts)
	if err != nil {
		return res, m.dumpOnFailure(err)
	}

	return res, nil
}

// Close closes the vCPUs (unmapping their kvm_run pages), the VM fd and the
// KVM device fd, in that order. The guest memory mapping and the GIC device
// fd are not released.
func (m *Machine) Close() error {
	for _, v := range m.vcpus {
		_ = v.Close()
	}

	_ = os.NewFile(m.vmFd, "vm").Close()

	return m.kvmFile.Close()
}
