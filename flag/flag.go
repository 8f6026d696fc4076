// Package flag parses the command line with kong into a boot or probe
// subcommand, and translates ram-size strings of the form num[gGmMkK]
// into a byte count.
package flag

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
)

const defaultCmdline = "console=ttyAMA0 earlycon=pl011,0x09000000"

// BootCmd boots a kernel image to completion or to a guest-requested
// shutdown/reset.
type BootCmd struct {
	Kernel      string `arg:"" help:"path to an arm64 Linux Image file"`
	Initrd      string `help:"path to an initramfs image" optional:""`
	Cmdline     string `help:"kernel command line" default:"console=ttyAMA0 earlycon=pl011,0x09000000"`
	RAM         string `name:"ram" help:"guest RAM size, as num[gGmMkK], defaults to M" default:"256M"`
	NCPUs       int    `name:"cpus" help:"number of vCPUs" default:"1"`
	Dev         string `help:"path to the KVM control device" default:"/dev/kvm"`
	Interactive bool   `help:"attach stdin/stdout to the guest console" default:"true" negatable:""`
	DTBOut      string `name:"dtb" help:"write the generated device tree blob to this path" optional:""`
}

// ProbeCmd prints which KVM capabilities this module requires are actually
// supported by the host.
type ProbeCmd struct{}

// CLI is the top-level kong command tree.
type CLI struct {
	Boot  BootCmd  `cmd:"" help:"boot a kernel image"`
	Probe ProbeCmd `cmd:"" help:"report host kvm capability support"`
}

// Parse parses os.Args (via kong) and runs whichever subcommand matched.
func Parse() error {
	c := CLI{}

	ctx := kong.Parse(&c,
		kong.Name("vmm"),
		kong.Description("a small arm64 Linux KVM virtual machine monitor"),
		kong.UsageOnError(),
		kong.Vars{"defaultCmdline": defaultCmdline},
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	return ctx.Run()
}

// ParseSize parses a size string as number[gGmMkK]. The multiplier suffix
// is optional; when absent, unit (one of "g", "m", "k", or "") is used
// instead. The number may be any base strconv.ParseUint accepts.
func ParseSize(s, unit string) (int, error) {
	sz := strings.TrimRight(s, "gGmMkK")
	if len(sz) == 0 {
		return -1, fmt.Errorf("%q: can't parse as num[gGmMkK]: %w", s, strconv.ErrSyntax)
	}

	amt, err := strconv.ParseUint(sz, 0, 0)
	if err != nil {
		return -1, err
	}

	if len(s) > len(sz) {
		unit = s[len(sz):]
	}

	switch unit {
	case "G", "g":
		return int(amt) << 30, nil
	case "M", "m":
		return int(amt) << 20, nil
	case "K", "k":
		return int(amt) << 10, nil
	case "":
		return int(amt), nil
	}

	return -1, fmt.Errorf("can not parse %q as num[gGmMkK]: %w", s, strconv.ErrSyntax)
}
