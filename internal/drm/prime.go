package drm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FlagModifiers tells ADDFB2 to honour the per-plane modifiers
// (DRM_MODE_FB_MODIFIERS).
const FlagModifiers = 1 << 1

// PrimeFDToHandle imports a dma-buf file descriptor as a GEM buffer-object
// handle local to this card. The handle must be released with GemClose.
func (d *Device) PrimeFDToHandle(fd int) (uint32, error) {
	arg := primeHandle{FD: int32(fd)}
	if err := d.ioctl("DRM_IOCTL_PRIME_FD_TO_HANDLE", ioctlPrimeFDToHandle, unsafe.Pointer(&arg)); err != nil {
		return 0, fmt.Errorf("fd %d: %w", fd, err)
	}
	return arg.Handle, nil
}

// PrimeHandleToFD exports a GEM handle as a dma-buf file descriptor, which
// the caller owns.
func (d *Device) PrimeHandleToFD(handle uint32) (int, error) {
	arg := primeHandle{Handle: handle, Flags: unix.O_CLOEXEC | unix.O_RDWR}
	if err := d.ioctl("DRM_IOCTL_PRIME_HANDLE_TO_FD", ioctlPrimeHandleToFD, unsafe.Pointer(&arg)); err != nil {
		return -1, fmt.Errorf("handle %d: %w", handle, err)
	}
	return int(arg.FD), nil
}

func (d *Device) GemClose(handle uint32) error {
	arg := gemClose{Handle: handle}
	return d.ioctl("DRM_IOCTL_GEM_CLOSE", ioctlGemClose, unsafe.Pointer(&arg))
}

// FB2 describes a framebuffer made of up to four planes, each referencing
// a GEM handle.
type FB2 struct {
	Width, Height uint32
	Format        Format
	Flags         uint32
	Handles       [4]uint32
	Pitches       [4]uint32
	Offsets       [4]uint32
	Modifiers     [4]uint64
}

// AddFB2 creates a kernel framebuffer and returns its id.
func (d *Device) AddFB2(fb FB2) (uint32, error) {
	arg := modeFBCmd2{
		Width:       fb.Width,
		Height:      fb.Height,
		PixelFormat: uint32(fb.Format),
		Flags:       fb.Flags,
		Handles:     fb.Handles,
		Pitches:     fb.Pitches,
		Offsets:     fb.Offsets,
		Modifier:    fb.Modifiers,
	}
	if err := d.ioctl("DRM_IOCTL_MODE_ADDFB2", ioctlModeAddFB2, unsafe.Pointer(&arg)); err != nil {
		return 0, fmt.Errorf("%dx%d %v: %w", fb.Width, fb.Height, fb.Format, err)
	}
	return arg.FBID, nil
}

func (d *Device) RmFB(id uint32) error {
	return d.ioctl("DRM_IOCTL_MODE_RMFB", ioctlModeRmFB, unsafe.Pointer(&id))
}
