package dtb

import (
	"fmt"

	"github.com/bobuhiro11/gokvm-arm64/gic"
	"github.com/bobuhiro11/gokvm-arm64/timer"
	"github.com/bobuhiro11/gokvm-arm64/uart"
)

// gicPhandle and clockPhandle are the fixed phandle values §4.11 assigns
// to the interrupt controller and the fixed-rate clock.
const (
	gicPhandle   uint32 = 1
	clockPhandle uint32 = 2
)

// uartIRQ is the SPI (absolute GIC interrupt ID) the PL011 asserts.
const uartIRQ uint32 = 33

// Config holds everything Generate needs to know about this VM instance
// that is not already fixed by the platform's address map.
type Config struct {
	RAMBase uint64
	RAMSize uint64
	NCPUs   int
	Cmdline string

	// InitrdStart/InitrdEnd are both zero when no initrd is present.
	InitrdStart uint64
	InitrdEnd   uint64
}

// Generate builds the complete devicetree described in §4.11 and returns
// its serialized FDT bytes.
func Generate(cfg Config) ([]byte, error) {
	if cfg.NCPUs < 1 {
		return nil, fmt.Errorf("dtb: NCPUs must be >= 1, got %d", cfg.NCPUs)
	}

	root := &Node{
		Name: "",
		Props: []Property{
			PropString("compatible", "linux,dummy-virt"),
			PropU32("#address-cells", 2),
			PropU32("#size-cells", 2),
		},
		Children: []*Node{
			aliasesNode(),
			chosenNode(cfg),
			memoryNode(cfg),
			cpusNode(cfg),
			psciNode(),
			gicNode(),
			timerNode(),
			clockNode(),
			socNode(),
		},
	}

	return Build(root), nil
}

func aliasesNode() *Node {
	return &Node{
		Name: "aliases",
		Props: []Property{
			PropString("serial0", "/soc/pl011@9000000"),
		},
	}
}

func chosenNode(cfg Config) *Node {
	n := &Node{
		Name: "chosen",
		Props: []Property{
			PropString("bootargs", cfg.Cmdline),
			PropString("stdout-path", "/soc/pl011@9000000"),
		},
	}

	if cfg.InitrdEnd != 0 {
		n.Props = append(n.Props,
			PropU64("linux,initrd-start", cfg.InitrdStart),
			PropU64("linux,initrd-end", cfg.InitrdEnd),
		)
	}

	return n
}

func memoryNode(cfg Config) *Node {
	return &Node{
		Name: fmt.Sprintf("memory@%x", cfg.RAMBase),
		Props: []Property{
			PropString("device_type", "memory"),
			PropU64("reg", cfg.RAMBase, cfg.RAMSize),
		},
	}
}

func cpusNode(cfg Config) *Node {
	n := &Node{
		Name: "cpus",
		Props: []Property{
			PropU32("#address-cells", 1),
			PropU32("#size-cells", 0),
		},
	}

	for i := 0; i < cfg.NCPUs; i++ {
		n.Children = append(n.Children, &Node{
			Name: fmt.Sprintf("cpu@%x", i),
			Props: []Property{
				PropString("compatible", "arm,cortex-a57"),
				PropU32("reg", uint32(i)),
				PropString("enable-method", "psci"),
			},
		})
	}

	return n
}

func psciNode() *Node {
	return &Node{
		Name: "psci",
		Props: []Property{
			PropStringList("compatible", "arm,psci-1.0", "arm,psci-0.2"),
			PropString("method", "hvc"),
		},
	}
}

func gicNode() *Node {
	return &Node{
		Name: fmt.Sprintf("interrupt-controller@%x", gic.DistBase),
		Props: []Property{
			PropString("compatible", "arm,gic-v3"),
			PropU32("#interrupt-cells", 3),
			PropEmpty("interrupt-controller"),
			PropU64("reg", gic.DistBase, gic.DistSize, gic.RedistBase, gic.RedistSize),
			PropU32("phandle", gicPhandle),
		},
	}
}

func timerNode() *Node {
	cells := timer.DTBInterrupts()

	flat := make([]uint32, 0, 3*len(cells))
	for _, c := range cells {
		flat = append(flat, c.Type, c.IRQ, c.Flags)
	}

	return &Node{
		Name: "timer",
		Props: []Property{
			PropString("compatible", "arm,armv8-timer"),
			PropU32("interrupt-parent", gicPhandle),
			PropU32("interrupts", flat...),
			PropEmpty("always-on"),
		},
	}
}

func clockNode() *Node {
	return &Node{
		Name: "apb-pclk",
		Props: []Property{
			PropString("compatible", "fixed-clock"),
			PropU32("#clock-cells", 0),
			PropU32("clock-frequency", 24000000),
			PropU32("phandle", clockPhandle),
		},
	}
}

func socNode() *Node {
	return &Node{
		Name: "soc",
		Props: []Property{
			PropString("compatible", "simple-bus"),
			PropU32("#address-cells", 2),
			PropU32("#size-cells", 2),
			PropEmpty("ranges"),
		},
		Children: []*Node{
			pl011Node(),
		},
	}
}

func pl011Node() *Node {
	return &Node{
		Name: fmt.Sprintf("pl011@%x", uart.Base),
		Props: []Property{
			PropStringList("compatible", "arm,pl011", "arm,primecell"),
			PropString("status", "okay"),
			PropU32("arm,primecell-periphid", 0x00241011),
			PropU64("reg", uart.Base, uart.Size),
			PropU32("interrupt-parent", gicPhandle),
			PropU32("interrupts", 0, uartIRQ-32, 4),
			PropStringList("clock-names", "uartclk", "apb_pclk"),
			PropU32("clocks", clockPhandle, clockPhandle),
		},
	}
}
