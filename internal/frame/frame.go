// Package frame defines the handle through which a decoder passes a
// hardware-decoded picture to the display pipeline.
//
// The pixels of a Frame live in dma-buf backed kernel memory and are never
// touched by the CPU. A Frame is owned by exactly one party at a time: the
// producer until it is handed to the render loop, then the render loop until
// it calls Release, which returns the picture to the producer's allocator.
package frame

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gokrazy/drmprime/internal/drm"
)

// MaxPlanes is the maximum number of planes of a single picture
// (AV_DRM_MAX_PLANES).
const MaxPlanes = 4

// Object is one dma-buf backing (part of) the picture.
type Object struct {
	// FD is the dma-buf file descriptor. It stays owned by the producer
	// and is valid until the Frame is released.
	FD       int
	Size     uint64
	Modifier uint64
}

// Plane locates one plane of the picture inside an Object.
type Plane struct {
	Object int
	Offset uint32
	Pitch  uint32
}

// noCopy makes go vet complain about Frames passed by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

type Frame struct {
	_ noCopy

	Format drm.Format
	Width  int
	Height int

	Objects []Object
	Planes  []Plane

	// PTS is the presentation timestamp assigned by the decoder.
	PTS time.Duration
	// Seq numbers frames in submission order.
	Seq uint64

	releaseOnce sync.Once
	release     func()
}

// New returns a Frame whose release function is invoked exactly once, on
// the first call to Release. release may be nil.
func New(format drm.Format, width, height int, objects []Object, planes []Plane, release func()) *Frame {
	return &Frame{
		Format:  format,
		Width:   width,
		Height:  height,
		Objects: objects,
		Planes:  planes,
		release: release,
	}
}

// Release hands the picture back to the producer. It may be called from any
// goroutine; calls after the first are no-ops.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

var (
	ErrNoPlanes      = errors.New("frame has no planes")
	ErrTooManyPlanes = fmt.Errorf("frame has more than %d planes", MaxPlanes)
)

// Validate checks that the frame can be imported into a display engine.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if f.Format == 0 {
		return errors.New("frame has no pixel format")
	}
	if len(f.Planes) == 0 {
		return ErrNoPlanes
	}
	if len(f.Planes) > MaxPlanes || len(f.Objects) > MaxPlanes {
		return ErrTooManyPlanes
	}
	for idx, p := range f.Planes {
		if p.Object < 0 || p.Object >= len(f.Objects) {
			return fmt.Errorf("plane %d references object %d of %d", idx, p.Object, len(f.Objects))
		}
	}
	return nil
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame #%d %dx%d %v pts=%v", f.Seq, f.Width, f.Height, f.Format, f.PTS)
}
