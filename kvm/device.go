package kvm

import "unsafe"

// Device types for KVM_CREATE_DEVICE.
const (
	DevTypeArmVGICV3 uint32 = 7
)

// Attribute groups and attributes for the GICv3 device, from
// include/uapi/linux/kvm.h.
const (
	DevArmVGICGrpAddr uint32 = 0
	DevArmVGICGrpCtrl uint32 = 4

	VGICV3AddrTypeDist   uint64 = 2
	VGICV3AddrTypeRedist uint64 = 3

	DevArmVGICCtrlInit uint64 = 0
)

// createDevice mirrors struct kvm_create_device.
type createDevice struct {
	Type  uint32
	Fd    uint32
	Flags uint32
}

// deviceAttr mirrors struct kvm_device_attr.
type deviceAttr struct {
	Flags uint32
	Group uint32
	Attr  uint64
	Addr  uint64
}

// CreateDevice creates an in-kernel device of the given type (e.g.
// DevTypeArmVGICV3) within vmFd and returns its device fd.
func CreateDevice(vmFd uintptr, devType uint32) (uintptr, error) {
	cd := createDevice{Type: devType}

	_, err := Ioctl(vmFd, IIOWR(nrCreateDevice, unsafe.Sizeof(cd)), uintptr(unsafe.Pointer(&cd)))
	if err != nil {
		return 0, err
	}

	return uintptr(cd.Fd), nil
}

// SetDeviceAttr sets an attribute on an in-kernel device whose addr field
// is unused or is itself the payload (e.g. the GICv3's CTRL_INIT finalize
// attribute, where addr is documented as ignored).
func SetDeviceAttr(devFd uintptr, group uint32, attr uint64, addr uint64) error {
	da := deviceAttr{Group: group, Attr: attr, Addr: addr}

	_, err := Ioctl(devFd, IIOW(nrSetDeviceAttr, unsafe.Sizeof(da)), uintptr(unsafe.Pointer(&da)))

	return err
}

// SetDeviceAttrAddr sets an attribute whose kernel side reads addr as a
// *pointer* to a __u64 holding the actual value (e.g.
// KVM_DEV_ARM_VGIC_GRP_ADDR, where vgic_set_common_attr does
// copy_from_user(&addr, (void __user *)attr->addr, sizeof(addr))), not the
// literal value itself.
func SetDeviceAttrAddr(devFd uintptr, group uint32, attr uint64, value uint64) error {
	da := deviceAttr{Group: group, Attr: attr, Addr: uint64(uintptr(unsafe.Pointer(&value)))}

	_, err := Ioctl(devFd, IIOW(nrSetDeviceAttr, unsafe.Sizeof(da)), uintptr(unsafe.Pointer(&da)))

	return err
}

// HasDeviceAttr reports whether an in-kernel device supports the given
// attribute.
func HasDeviceAttr(devFd uintptr, group uint32, attr uint64) bool {
	da := deviceAttr{Group: group, Attr: attr}

	_, err := Ioctl(devFd, IIOW(nrHasDeviceAttr, unsafe.Sizeof(da)), uintptr(unsafe.Pointer(&da)))

	return err == nil
}
