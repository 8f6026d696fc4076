// Package runloop orchestrates one vCPU: dispatching KVM_RUN exits to the
// device registry, pumping stdin into the UART in interactive mode, and
// converting a periodic alarm into the immediate_exit interruption that
// arm64 needs to unblock a vCPU parked in WFI (unlike x86's HLT, WFI does
// not itself cause a VM exit).
package runloop

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/bobuhiro11/gokvm-arm64/device"
	"github.com/bobuhiro11/gokvm-arm64/kvm"
	"github.com/bobuhiro11/gokvm-arm64/uart"
	"github.com/bobuhiro11/gokvm-arm64/vcpu"
)

// alarmPeriod is the interactive-mode recurring alarm period: short enough
// that stdin feels responsive, long enough not to dominate guest runtime
// with vmexits.
const alarmPeriod = 100 * time.Millisecond

// watchdogDefault is the non-interactive hang-detection timeout.
const watchdogDefault = 5 * time.Second

// ErrGuestHalted is returned when the vCPU reports EXIT_HLT.
var ErrGuestHalted = errors.New("runloop: vcpu halted")

// ErrWatchdog is returned when the non-interactive watchdog fires before
// the guest produced a SystemEvent shutdown/reset.
var ErrWatchdog = errors.New("runloop: watchdog timeout, guest appears hung")

// Options configures one Run call.
type Options struct {
	VCPU    *vcpu.VCPU
	Devices *device.Registry

	// Interactive enables raw-terminal stdin pumping and the periodic
	// alarm interruption scheme. UART and Stdin are required when true.
	Interactive bool
	UART        *uart.UART
	Stdin       *bufio.Reader
	RestoreTerm func()

	// Watchdog, when Interactive is false, aborts the loop after this long
	// without a graceful exit. Zero selects watchdogDefault; a negative
	// value disables it.
	Watchdog time.Duration
}

// Result describes how Run ended.
type Result struct {
	SystemEventType kvm.SystemEventType
	Graceful        bool
}

// Run executes opts.VCPU until a graceful SystemEvent, HLT, or fatal
// condition. It locks the calling goroutine to its OS thread for the
// duration. In interactive mode the exit loop runs on that goroutine; in
// batch mode it runs on a separate goroutine that is not locked to a
// thread.
func Run(opts Options) (Result, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if opts.Interactive {
		return runInteractive(opts)
	}

	return runBatch(opts)
}

func runBatch(opts Options) (Result, error) {
	var deadline <-chan time.Time

	if opts.Watchdog > 0 {
		t := time.NewTimer(opts.Watchdog)
		defer t.Stop()

		deadline = t.C
	} else if opts.Watchdog == 0 {
		t := time.NewTimer(watchdogDefault)
		defer t.Stop()

		deadline = t.C
	}

	errCh := make(chan error, 1)
	resCh := make(chan Result, 1)

	go func() {
		res, err := loop(opts)
		if err != nil {
			errCh <- err

			return
		}

		resCh <- res
	}()

	select {
	case err := <-errCh:
		return Result{}, err
	case res := <-resCh:
		return res, nil
	case <-deadline:
		return Result{}, ErrWatchdog
	}
}

func runInteractive(opts Options) (Result, error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGALRM)

	defer func() {
		signal.Stop(sigCh)

		if opts.RestoreTerm != nil {
			opts.RestoreTerm()
		}
	}()

	stop := make(chan struct{})
	defer close(stop)

	go alarmTicker(stop)

	go func() {
		for range sigCh {
			opts.VCPU.SetImmediateExit(true)
		}
	}()

	go pumpStdin(opts)

	return loop(opts)
}

func alarmTicker(stop <-chan struct{}) {
	ticker := time.NewTicker(alarmPeriod)
	defer ticker.Stop()

	pid := os.Getpid()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = syscall.Kill(pid, syscall.SIGALRM)
		}
	}
}

func pumpStdin(opts Options) {
	if err := opts.UART.Start(opts.Stdin, func() {
		if opts.RestoreTerm != nil {
			opts.RestoreTerm()
		}
	}); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("uart stdin pump: %v", err)
	}
}

func loop(opts Options) (Result, error) {
	for {
		err := opts.VCPU.RunOnce()

		if opts.Interactive {
			opts.VCPU.SetImmediateExit(false)
		}

		if errors.Is(err, kvm.ErrInterrupted) {
			if opts.Interactive {
				if err := opts.UART.PollInput(); err != nil {
					return Result{}, fmt.Errorf("uart poll input: %w", err)
				}
			}

			continue
		}

		if err != nil {
			return Result{}, fmt.Errorf("kvm run: %w", err)
		}

		run := opts.VCPU.Run()

		switch kvm.ExitReason(run.ExitReason) {
		case kvm.ExitMMIO:
			if err := dispatchMMIO(opts.Devices, run); err != nil {
				return Result{}, fmt.Errorf("mmio dispatch: %w", err)
			}
		case kvm.ExitSystemEvent:
			typ, _ := run.SystemEvent()

			return Result{SystemEventType: typ, Graceful: true}, nil
		case kvm.ExitHLT:
			return Result{}, ErrGuestHalted
		case kvm.ExitInternalError:
			return Result{}, fmt.Errorf("%w: internal error", kvm.ErrUnexpectedExitReason)
		case kvm.ExitFailEntry:
			return Result{}, fmt.Errorf("%w: fail entry, reason=%#x",
				kvm.ErrUnexpectedExitReason, run.FailEntryReason())
		default:
			return Result{}, fmt.Errorf("%w: %s", kvm.ErrUnexpectedExitReason, kvm.ExitReason(run.ExitReason))
		}
	}
}

func dispatchMMIO(devices *device.Registry, run *kvm.RunData) error {
	addr, data, length, isWrite := run.MMIO()

	buf := data[:length]

	if isWrite {
		return devices.Write(addr, buf)
	}

	if err := devices.Read(addr, buf); err != nil {
		return err
	}

	run.SetMMIOData(buf)

	return nil
}
