// Package kvm is a thin wrapper around the /dev/kvm ioctl interface for
// arm64. It mirrors the shape of Linux's <linux/kvm.h> and
// <asm-generic/ioctl.h>: every exported function corresponds to one ioctl,
// and the request numbers are computed the same way the kernel headers
// compute them rather than hard-coded as opaque magic numbers.
package kvm

import (
	"golang.org/x/sys/unix"
)

// KVM device ioctls all share the 'kvm' (0xAE) type byte.
const kvmIO = 0xAE

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

// IIO builds a no-payload ioctl request number.
func IIO(nr uintptr) uintptr {
	return ioc(iocNone, kvmIO, nr, 0)
}

// IIOR builds a read-payload ioctl request number.
func IIOR(nr, size uintptr) uintptr {
	return ioc(iocRead, kvmIO, nr, size)
}

// IIOW builds a write-payload ioctl request number.
func IIOW(nr, size uintptr) uintptr {
	return ioc(iocWrite, kvmIO, nr, size)
}

// IIOWR builds a read-write-payload ioctl request number.
func IIOWR(nr, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, kvmIO, nr, size)
}

// Ioctl issues req against fd with arg, retrying internally on EINTR the way
// the kernel expects ioctl callers to. It returns the raw return value of
// the ioctl (some KVM ioctls, like KVM_CREATE_VCPU, return a value rather
// than just success/failure) plus any error.
//
// KVM_RUN must not use this: its EINTR is a deliberate cancellation signal
// (immediate_exit / host signal delivery), not a spurious interruption to
// swallow and retry. Callers that need to observe EINTR/EAGAIN themselves
// should use IoctlNoRetry instead.
func Ioctl(fd uintptr, req uintptr, arg uintptr) (uintptr, error) {
	for {
		r, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
		if errno == unix.EINTR {
			continue
		}

		if errno != 0 {
			return r, errno
		}

		return r, nil
	}
}

// IoctlNoRetry issues req against fd with arg exactly once, returning
// whatever error (including EINTR/EAGAIN) the syscall reports instead of
// retrying. KVM_RUN uses this: the run loop needs to see EINTR/EAGAIN
// itself rather than have it silently retried underneath it, since that is
// how the kernel reports that immediate_exit was set or a signal arrived
// while (or just before) the vCPU was running.
func IoctlNoRetry(fd uintptr, req uintptr, arg uintptr) (uintptr, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return r, errno
	}

	return r, nil
}
