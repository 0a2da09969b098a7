// Package slotpool turns dma-buf backed frames into kernel framebuffers,
// reusing a fixed ring of slots to bound the number of buffer objects held
// by the display engine.
//
// A ring of two slots would be enough in theory: one on screen, one being
// prepared. Some output paths (e.g. the Raspberry Pi firmware KMS driver)
// keep the previously scanned-out framebuffer referenced until a later
// vblank, so reusing it one frame later shows up as flicker. A third slot
// keeps "previously on screen, pending release" apart from "being
// prepared". The ring size is a tunable; verify on the target hardware.
package slotpool

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gokrazy/drmprime/internal/drm"
	"github.com/gokrazy/drmprime/internal/frame"
)

// DefaultCapacity is the ring size known to be flicker-free on the
// Raspberry Pi 4.
const DefaultCapacity = 3

// Importer is the part of the display engine which manages buffer objects
// and framebuffers. *drm.Device implements it.
type Importer interface {
	PrimeFDToHandle(fd int) (uint32, error)
	GemClose(handle uint32) error
	AddFB2(fb drm.FB2) (uint32, error)
	RmFB(id uint32) error
}

var _ Importer = (*drm.Device)(nil)

// Slot is one ring entry. FB is non-zero iff Handles are non-zero iff
// Frame is non-nil.
type Slot struct {
	Index   int
	FB      uint32
	Handles [frame.MaxPlanes]uint32
	Frame   *frame.Frame
}

func (s *Slot) Allocated() bool {
	return s.FB != 0
}

// Error describes a failed Acquire. The frame has been released and the
// slot left unallocated.
type Error struct {
	Op    string
	Slot  int
	Frame uint64
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("slot %d: %s of frame #%d: %v", e.Slot, e.Op, e.Frame, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Pool is not safe for concurrent use; it belongs to the render goroutine.
type Pool struct {
	importer Importer
	slots    []Slot
	cursor   int
	onScreen int
}

func New(importer Importer, capacity int) (*Pool, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("invalid slot pool capacity %d", capacity)
	}
	p := &Pool{
		importer: importer,
		slots:    make([]Slot, capacity),
		cursor:   -1,
		onScreen: -1,
	}
	for idx := range p.slots {
		p.slots[idx].Index = idx
	}
	return p, nil
}

func (p *Pool) Capacity() int {
	return len(p.slots)
}

// Cursor returns the index of the most recently acquired slot, or -1.
func (p *Pool) Cursor() int {
	return p.cursor
}

// SetOnScreen records that the plane now scans out s. Acquire never reuses
// that slot, so a run of failed frames cannot remove the framebuffer being
// displayed.
func (p *Pool) SetOnScreen(s *Slot) {
	p.onScreen = s.Index
}

// OnScreen returns the index of the slot last marked with SetOnScreen, or
// -1.
func (p *Pool) OnScreen() int {
	return p.onScreen
}

// Slots returns a snapshot of the ring.
func (p *Pool) Slots() []Slot {
	return append([]Slot(nil), p.slots...)
}

// Acquire advances the ring, skipping the on-screen slot, releases the
// previous occupant of the next slot and imports f into it. On success the slot owns f; on failure f has
// been released.
func (p *Pool) Acquire(ctx context.Context, f *frame.Frame) (*Slot, error) {
	p.cursor = (p.cursor + 1) % len(p.slots)
	if p.cursor == p.onScreen && len(p.slots) > 1 {
		p.cursor = (p.cursor + 1) % len(p.slots)
	}
	s := &p.slots[p.cursor]
	p.release(ctx, s)

	fail := func(op string, err error) (*Slot, error) {
		f.Release()
		return nil, &Error{Op: op, Slot: s.Index, Frame: f.Seq, Err: err}
	}

	if err := f.Validate(); err != nil {
		return fail("validate", err)
	}

	var handles [frame.MaxPlanes]uint32
	for idx, obj := range f.Objects {
		h, err := p.importer.PrimeFDToHandle(obj.FD)
		if err != nil {
			p.closeHandles(ctx, handles[:idx])
			return fail("import", err)
		}
		logger.Tracef(ctx, "slot %d: imported object %d (fd %d, %s) as handle %d",
			s.Index, idx, obj.FD, humanize.IBytes(obj.Size), h)
		handles[idx] = h
	}

	fb := drm.FB2{
		Width:  uint32(f.Width),
		Height: uint32(f.Height),
		Format: f.Format,
	}
	hasModifiers := false
	for idx, pl := range f.Planes {
		obj := f.Objects[pl.Object]
		fb.Handles[idx] = handles[pl.Object]
		fb.Pitches[idx] = pl.Pitch
		fb.Offsets[idx] = pl.Offset
		fb.Modifiers[idx] = obj.Modifier
		if obj.Modifier != drm.ModLinear && obj.Modifier != drm.ModInvalid {
			hasModifiers = true
		}
	}
	if hasModifiers {
		fb.Flags |= drm.FlagModifiers
	} else {
		fb.Modifiers = [4]uint64{}
	}

	id, err := p.importer.AddFB2(fb)
	if err != nil {
		p.closeHandles(ctx, handles[:len(f.Objects)])
		return fail("addfb", err)
	}

	s.FB = id
	s.Handles = handles
	s.Frame = f
	return s, nil
}

// Release frees every slot. The plane must no longer scan out any of them.
func (p *Pool) Release(ctx context.Context) {
	for idx := range p.slots {
		p.release(ctx, &p.slots[idx])
	}
	p.onScreen = -1
}

func (p *Pool) release(ctx context.Context, s *Slot) {
	if s.FB != 0 {
		if err := p.importer.RmFB(s.FB); err != nil {
			logger.Errorf(ctx, "slot %d: removing framebuffer %d: %v", s.Index, s.FB, err)
		}
	}
	p.closeHandles(ctx, s.Handles[:])
	if s.Frame != nil {
		logger.Tracef(ctx, "slot %d: releasing %v", s.Index, s.Frame)
		s.Frame.Release()
	}
	*s = Slot{Index: s.Index}
}

// closeHandles closes every distinct non-zero handle. Objects sharing a
// dma-buf are imported as the same handle, which must only be closed once.
func (p *Pool) closeHandles(ctx context.Context, handles []uint32) {
	for idx, h := range handles {
		if h == 0 {
			continue
		}
		seen := false
		for _, prev := range handles[:idx] {
			if prev == h {
				seen = true
				break
			}
		}
		if seen {
			continue
		}
		if err := p.importer.GemClose(h); err != nil {
			logger.Errorf(ctx, "closing buffer object handle %d: %v", h, err)
		}
	}
}
