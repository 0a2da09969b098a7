// Package testpattern produces dma-buf backed frames without a decoder, for
// checking the display pipeline on the target hardware. Each frame is a
// dumb buffer exported as a PRIME file descriptor and drawn with gg.
package testpattern

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gokrazy/drmprime/internal/drm"
	"github.com/gokrazy/drmprime/internal/fbimage"
	"github.com/gokrazy/drmprime/internal/frame"
	"github.com/gokrazy/drmprime/internal/slotpool"
)

type Config struct {
	Width, Height int
	// Format is drm.FormatXRGB8888 if zero.
	Format drm.Format
	// Buffers is the number of dumb buffers to cycle through. The render
	// loop holds up to its ring size of them, so use at least two more
	// than that. slotpool.DefaultCapacity+2 if zero.
	Buffers int
	// Interval paces the frames; 0 sends them as fast as they are taken.
	Interval time.Duration
	// Frames stops after that many frames; 0 runs until ctx is done.
	Frames uint64
}

// allocator is the part of *drm.Device used to manage dumb buffers.
type allocator interface {
	CreateDumb(width, height, bpp uint32) (*drm.DumbBuffer, error)
	MapDumb(db *drm.DumbBuffer) ([]byte, error)
	PrimeHandleToFD(handle uint32) (int, error)
	DestroyDumb(handle uint32) error
}

var _ allocator = (*drm.Device)(nil)

type buffer struct {
	index int
	dumb  *drm.DumbBuffer
	fd    int
	mem   []byte
	img   fbimage.Image
}

// Source owns a set of dumb buffers. Frames it emits return their buffer
// to the source when released.
type Source struct {
	alloc   allocator
	unmap   func([]byte) error
	closeFD func(int) error
	cfg     Config

	buffers []*buffer
	free    chan *buffer
	drawer  *drawer
	seq     uint64
}

func bitsPerPixel(f drm.Format) (uint32, error) {
	switch f {
	case drm.FormatXRGB8888:
		return 32, nil
	case drm.FormatRGB565:
		return 16, nil
	}
	return 0, fmt.Errorf("unsupported test pattern format %v", f)
}

func newSource(ctx context.Context, alloc allocator, unmap func([]byte) error, closeFD func(int) error, cfg Config) (_ *Source, _err error) {
	if cfg.Format == 0 {
		cfg.Format = drm.FormatXRGB8888
	}
	if cfg.Buffers == 0 {
		cfg.Buffers = slotpool.DefaultCapacity + 2
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid test pattern size %dx%d", cfg.Width, cfg.Height)
	}
	bpp, err := bitsPerPixel(cfg.Format)
	if err != nil {
		return nil, err
	}

	s := &Source{
		alloc:   alloc,
		unmap:   unmap,
		closeFD: closeFD,
		cfg:     cfg,
		free:    make(chan *buffer, cfg.Buffers),
	}
	defer func() {
		if _err != nil {
			s.Close()
		}
	}()

	for idx := 0; idx < cfg.Buffers; idx++ {
		b := &buffer{index: idx, fd: -1}
		s.buffers = append(s.buffers, b)
		if b.dumb, err = alloc.CreateDumb(uint32(cfg.Width), uint32(cfg.Height), bpp); err != nil {
			return nil, err
		}
		if b.mem, err = alloc.MapDumb(b.dumb); err != nil {
			return nil, err
		}
		if b.fd, err = alloc.PrimeHandleToFD(b.dumb.Handle); err != nil {
			return nil, err
		}
		if b.img, err = fbimage.New(cfg.Format, b.mem, cfg.Width, cfg.Height, int(b.dumb.Pitch)); err != nil {
			return nil, err
		}
		logger.Debugf(ctx, "test pattern buffer %d: handle %d, fd %d, pitch %d, %s",
			idx, b.dumb.Handle, b.fd, b.dumb.Pitch, humanize.IBytes(b.dumb.Size))
		s.free <- b
	}

	if s.drawer, err = newDrawer(ctx, cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	return s, nil
}

// Frames returns how many frames have been emitted so far.
func (s *Source) Frames() uint64 {
	return s.seq
}

// Run draws frames into free buffers and passes them to sink until ctx is
// done, cfg.Frames frames were sent or sink fails. On a sink error the
// frame is released and the error returned.
func (s *Source) Run(ctx context.Context, sink func(context.Context, *frame.Frame) error) error {
	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		t := time.NewTicker(s.cfg.Interval)
		defer t.Stop()
		tick = t.C
	}
	for s.cfg.Frames == 0 || s.seq < s.cfg.Frames {
		var b *buffer
		select {
		case b = <-s.free:
		case <-ctx.Done():
			return ctx.Err()
		}

		s.seq++
		img, err := s.drawer.draw(s.seq, time.Now())
		if err != nil {
			s.free <- b
			return err
		}
		b.img.CopyRGBA(img)

		f := frame.New(s.cfg.Format, s.cfg.Width, s.cfg.Height,
			[]frame.Object{{FD: b.fd, Size: b.dumb.Size, Modifier: drm.ModLinear}},
			[]frame.Plane{{Object: 0, Offset: 0, Pitch: b.dumb.Pitch}},
			func() { s.free <- b })
		f.Seq = s.seq
		f.PTS = time.Duration(s.seq) * s.cfg.Interval
		if err := sink(ctx, f); err != nil {
			f.Release()
			return err
		}

		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Close frees all buffers. Every emitted frame must have been released.
func (s *Source) Close() error {
	if s.drawer != nil {
		s.drawer.Close()
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, b := range s.buffers {
		if b.fd >= 0 {
			keep(s.closeFD(b.fd))
		}
		if b.mem != nil {
			keep(s.unmap(b.mem))
		}
		if b.dumb != nil {
			keep(s.alloc.DestroyDumb(b.dumb.Handle))
		}
	}
	s.buffers = nil
	return firstErr
}
