// Package render runs the goroutine which takes decoded frames from the
// handoff channel, imports them into the slot pool and puts them on the
// display plane.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gokrazy/drmprime/internal/frame"
	"github.com/gokrazy/drmprime/internal/handoff"
	"github.com/gokrazy/drmprime/internal/slotpool"
	"github.com/xaionaro-go/observability"
	"go.uber.org/atomic"
)

// Engine is the display side of the render loop. *display.Binding
// implements it.
type Engine interface {
	slotpool.Importer
	Present(ctx context.Context, s *slotpool.Slot) error
	Disable(ctx context.Context) error
	Close(ctx context.Context) error
}

type Config struct {
	// RingSize is the number of framebuffer slots,
	// slotpool.DefaultCapacity if zero.
	RingSize int
	// Visible, if set, is consulted before every frame. Frames arriving
	// while it returns false are dropped without touching the display.
	Visible func() bool
}

type Output struct {
	engine  Engine
	pool    *slotpool.Pool
	handoff *handoff.Channel
	visible func() bool

	state         atomic.Int32
	presented     atomic.Uint64
	importErrors  atomic.Uint64
	presentErrors atomic.Uint64
	hidden        atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New starts the render loop on engine. The loop owns engine from now on
// and closes it on exit. On error engine is left to the caller.
func New(ctx context.Context, engine Engine, cfg Config) (*Output, error) {
	if cfg.RingSize == 0 {
		cfg.RingSize = slotpool.DefaultCapacity
	}
	pool, err := slotpool.New(engine, cfg.RingSize)
	if err != nil {
		return nil, err
	}
	o := &Output{
		engine:  engine,
		pool:    pool,
		handoff: handoff.New(),
		visible: cfg.Visible,
		done:    make(chan struct{}),
	}
	logger.Debugf(ctx, "render: starting with %d slots", cfg.RingSize)
	observability.Go(ctx, func(ctx context.Context) {
		defer close(o.done)
		o.loop(ctx)
	})
	return o, nil
}

// DisplayFrame hands f to the render loop, blocking until the loop has
// taken it. On error the caller still owns f.
func (o *Output) DisplayFrame(ctx context.Context, f *frame.Frame) error {
	return o.handoff.Submit(ctx, f)
}

// Close stops the render loop and waits for it to release the display.
func (o *Output) Close(ctx context.Context) error {
	o.setState(StateTerminating)
	o.handoff.Close(ctx)
	select {
	case <-o.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return o.closeErr
}

// Done is closed once the render loop has exited.
func (o *Output) Done() <-chan struct{} {
	return o.done
}

func (o *Output) State() State {
	return State(o.state.Load())
}

func (o *Output) Stats() Stats {
	return Stats{
		Presented:     o.presented.Load(),
		ImportErrors:  o.importErrors.Load(),
		PresentErrors: o.presentErrors.Load(),
		Hidden:        o.hidden.Load(),
	}
}

// setState moves to s unless termination has already begun.
func (o *Output) setState(s State) {
	for {
		cur := State(o.state.Load())
		if cur >= StateTerminating && s < cur {
			return
		}
		if o.state.CompareAndSwap(int32(cur), int32(s)) {
			return
		}
	}
}

func (o *Output) loop(ctx context.Context) {
	for {
		o.setState(StateIdle)
		f, ok := o.handoff.Take(ctx)
		if !ok {
			break
		}
		o.show(ctx, f)
	}
	o.setState(StateTerminating)
	// The loop may also end because ctx is done; make sure producers
	// blocked in DisplayFrame get out.
	o.handoff.Close(ctx)
	o.closeErr = o.shutdown(ctx)
	o.setState(StateTerminated)
	logger.Debugf(ctx, "render: terminated (%v)", o.Stats())
}

func (o *Output) show(ctx context.Context, f *frame.Frame) {
	if o.visible != nil && !o.visible() {
		logger.Tracef(ctx, "render: console hidden, dropping %v", f)
		o.hidden.Inc()
		f.Release()
		return
	}

	o.setState(StateImporting)
	s, err := o.pool.Acquire(ctx, f)
	if err != nil {
		o.importErrors.Inc()
		logger.Errorf(ctx, "render: %v", err)
		return
	}

	o.setState(StatePresenting)
	if err := o.engine.Present(ctx, s); err != nil {
		o.presentErrors.Inc()
		logger.Errorf(ctx, "render: presenting %v: %v", f, err)
		return
	}
	o.pool.SetOnScreen(s)
	o.presented.Inc()
	logger.Tracef(ctx, "render: presented %v from slot %d", f, s.Index)
}

func (o *Output) shutdown(ctx context.Context) error {
	var errs []error
	if err := o.engine.Disable(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disabling plane: %w", err))
	}
	o.pool.Release(ctx)
	if err := o.engine.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing display: %w", err))
	}
	err := errors.Join(errs...)
	if err != nil {
		logger.Errorf(ctx, "render: %v", err)
	}
	return err
}
