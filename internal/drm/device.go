// Package drm implements the subset of the Linux DRM/KMS userspace API
// needed to scan out PRIME (dma-buf) frames on a hardware plane: mode object
// enumeration, buffer-object import, framebuffer creation, plane updates and
// dumb buffers.
//
// It talks to the kernel via ioctls directly instead of going through libdrm,
// which keeps the program free of cgo on the display side. It has been
// written against the vc4 driver of the Raspberry Pi 4.
package drm

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultCard is the first DRM card on most single-board computers.
const DefaultCard = "/dev/dri/card0"

// Client capabilities, see DRM_CLIENT_CAP_* in drm.h.
const (
	ClientCapUniversalPlanes = 2
	ClientCapAtomic          = 3
)

type Device struct {
	fd   uintptr
	path string
}

func Open(dev string) (*Device, error) {
	fd, err := unix.Open(dev, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v", dev, err)
	}
	if int(uintptr(fd)) != fd {
		unix.Close(fd)
		return nil, errors.New("fd overflows")
	}
	return &Device{fd: uintptr(fd), path: dev}, nil
}

func (d *Device) String() string {
	return d.path
}

// Fd returns the card's file descriptor.
func (d *Device) Fd() uintptr {
	return d.fd
}

// ioctl issues the request, restarting it when interrupted the way
// libdrm's drmIoctl does.
func (d *Device) ioctl(name string, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, eno := unix.Syscall(unix.SYS_IOCTL, d.fd, req, uintptr(arg))
		switch eno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		default:
			return fmt.Errorf("%s: %w", name, eno)
		}
	}
}

func (d *Device) SetClientCap(capability, value uint64) error {
	arg := setClientCap{Capability: capability, Value: value}
	return d.ioctl("DRM_IOCTL_SET_CLIENT_CAP", ioctlSetClientCap, unsafe.Pointer(&arg))
}

func (d *Device) Close() error {
	return unix.Close(int(d.fd))
}
