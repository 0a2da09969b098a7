// Package handoff passes frames from the decoding goroutine to the render
// goroutine one at a time.
//
// The mailbox is an unbuffered channel: a send only completes once the
// receiver has taken the frame, so the rendezvous is both the "frame ready"
// and the "slot consumed" signal. The producer can therefore never run more
// than one frame ahead of the display.
package handoff

import (
	"context"
	"errors"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gokrazy/drmprime/internal/frame"
)

// ErrClosed is returned by Submit once the channel has been closed.
var ErrClosed = errors.New("handoff channel closed")

type Channel struct {
	mailbox chan *frame.Frame

	closeOnce sync.Once
	closed    chan struct{}
}

func New() *Channel {
	return &Channel{
		mailbox: make(chan *frame.Frame),
		closed:  make(chan struct{}),
	}
}

// Submit blocks until the consumer has taken f. On success the consumer owns
// f. On error ownership stays with the caller: ErrClosed is returned
// without blocking once Close was called, ctx.Err() when ctx is done first.
func (c *Channel) Submit(ctx context.Context, f *frame.Frame) error {
	if c.IsClosed() {
		return ErrClosed
	}
	select {
	case c.mailbox <- f:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Take blocks until a frame is submitted and returns it, or returns false
// once the channel is closed or ctx is done. A frame whose Submit succeeded
// is always returned, even if Close was called since; the producer has
// already been told the frame is on its way.
func (c *Channel) Take(ctx context.Context) (*frame.Frame, bool) {
	select {
	case f := <-c.mailbox:
		return f, true
	case <-c.closed:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Close wakes up both sides. It is safe to call more than once.
func (c *Channel) Close(ctx context.Context) {
	c.closeOnce.Do(func() {
		logger.Debugf(ctx, "closing the handoff channel")
		close(c.closed)
	})
}

func (c *Channel) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
