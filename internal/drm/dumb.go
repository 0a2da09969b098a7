package drm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DumbBuffer is a CPU-mappable buffer object allocated by the display
// driver.
type DumbBuffer struct {
	Handle        uint32
	Width, Height uint32
	BPP           uint32
	Pitch         uint32
	Size          uint64
}

func (d *Device) CreateDumb(width, height, bpp uint32) (*DumbBuffer, error) {
	arg := modeCreateDumb{Width: width, Height: height, BPP: bpp}
	if err := d.ioctl("DRM_IOCTL_MODE_CREATE_DUMB", ioctlModeCreateDumb, unsafe.Pointer(&arg)); err != nil {
		return nil, fmt.Errorf("%dx%d@%d: %w", width, height, bpp, err)
	}
	return &DumbBuffer{
		Handle: arg.Handle,
		Width:  width,
		Height: height,
		BPP:    bpp,
		Pitch:  arg.Pitch,
		Size:   arg.Size,
	}, nil
}

// MapDumb maps the buffer into this process.
func (d *Device) MapDumb(db *DumbBuffer) ([]byte, error) {
	arg := modeMapDumb{Handle: db.Handle}
	if err := d.ioctl("DRM_IOCTL_MODE_MAP_DUMB", ioctlModeMapDumb, unsafe.Pointer(&arg)); err != nil {
		return nil, err
	}
	mem, err := unix.Mmap(int(d.fd), int64(arg.Offset), int(db.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %v", err)
	}
	return mem, nil
}

func (d *Device) DestroyDumb(handle uint32) error {
	arg := modeDestroyDumb{Handle: handle}
	return d.ioctl("DRM_IOCTL_MODE_DESTROY_DUMB", ioctlModeDestroyDumb, unsafe.Pointer(&arg))
}
