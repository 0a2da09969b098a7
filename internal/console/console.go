// Package console leases a Linux console in graphics mode, so that the
// kernel text console does not draw over the display planes.
package console

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"unsafe"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gokrazy/drmprime/internal/linuxvt"
	"github.com/xaionaro-go/observability"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

const tty = "/dev/tty0"

func ioctl(fd uintptr, name string, req uintptr, arg unsafe.Pointer) error {
	if _, _, eno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg)); eno != 0 {
		return fmt.Errorf("%s: %v", name, eno)
	}
	return nil
}

func nextFreeConsole() (int, error) {
	f, err := os.OpenFile(tty, os.O_WRONLY, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	free, err := unix.IoctlGetInt(int(f.Fd()), linuxvt.VT_OPENQRY)
	if err != nil {
		return 0, fmt.Errorf("VT_OPENQRY: %v", err)
	}
	return free, f.Close()
}

func disallocateConsole(num int) error {
	f, err := os.OpenFile(tty, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := unix.IoctlSetInt(int(f.Fd()), linuxvt.VT_DISALLOCATE, num); err != nil {
		return fmt.Errorf("VT_DISALLOCATE(%d): %v", num, err)
	}
	return f.Close()
}

func setSwitchSignals(fd uintptr, mode int8, rel, acq unix.Signal) error {
	var vtMode linuxvt.VTMode
	if err := ioctl(fd, "VT_GETMODE", linuxvt.VT_GETMODE, unsafe.Pointer(&vtMode)); err != nil {
		return err
	}
	vtMode.Mode = mode
	vtMode.Relsig = int16(rel)
	vtMode.Acqsig = int16(acq)
	return ioctl(fd, "VT_SETMODE", linuxvt.VT_SETMODE, unsafe.Pointer(&vtMode))
}

// A Handle represents a leased Linux console.
type Handle struct {
	f      *os.File
	vt     int
	prevVT int

	visible atomic.Bool
	signals chan os.Signal
	// reldisp answers a switch request; VT_RELDISP on f unless in tests.
	reldisp func(arg int) error
}

// LeaseForGraphics switches to the next free Linux console and puts it in
// graphics mode. Switching away with Ctrl+Alt+Fn is acknowledged and
// reflected in Visible. Call Cleanup when done.
func LeaseForGraphics(ctx context.Context) (*Handle, error) {
	// Modeled after https://github.com/g0hl1n/psplash/blob/master/psplash-linuxvt.c
	free, err := nextFreeConsole()
	if err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "opening next free console /dev/tty%d", free)

	f, err := os.OpenFile(fmt.Sprintf("/dev/tty%d", free), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	fd := f.Fd()

	var state linuxvt.VTState
	if err := ioctl(fd, "VT_GETSTATE", linuxvt.VT_GETSTATE, unsafe.Pointer(&state)); err != nil {
		f.Close()
		return nil, err
	}
	if err := unix.IoctlSetInt(int(fd), linuxvt.VT_ACTIVATE, free); err != nil {
		f.Close()
		return nil, fmt.Errorf("VT_ACTIVATE: %v", err)
	}
	if err := unix.IoctlSetInt(int(fd), linuxvt.VT_WAITACTIVE, free); err != nil {
		f.Close()
		return nil, fmt.Errorf("VT_WAITACTIVE: %v", err)
	}

	h := &Handle{
		f:       f,
		vt:      free,
		prevVT:  int(state.Active),
		signals: make(chan os.Signal, 1),
		reldisp: func(arg int) error {
			return unix.IoctlSetInt(int(fd), linuxvt.VT_RELDISP, arg)
		},
	}
	h.visible.Store(true)

	signal.Notify(h.signals, unix.SIGUSR1, unix.SIGUSR2)
	observability.Go(ctx, func(ctx context.Context) {
		for sig := range h.signals {
			h.switched(ctx, sig)
		}
	})
	if err := setSwitchSignals(fd, linuxvt.VT_PROCESS, unix.SIGUSR1, unix.SIGUSR2); err != nil {
		h.stopSignals()
		f.Close()
		return nil, err
	}

	if err := unix.IoctlSetInt(int(fd), linuxvt.KDSETMODE, linuxvt.KD_GRAPHICS); err != nil {
		h.stopSignals()
		f.Close()
		return nil, fmt.Errorf("KDSETMODE: %v", err)
	}
	logger.Infof(ctx, "leased /dev/tty%d in graphics mode (previous: tty%d)", h.vt, h.prevVT)
	return h, nil
}

// switched handles the release (SIGUSR1) and acquire (SIGUSR2) signals the
// kernel sends in VT_PROCESS mode.
func (h *Handle) switched(ctx context.Context, sig os.Signal) {
	switch sig {
	case unix.SIGUSR1:
		logger.Infof(ctx, "user switched to different VT, no longer visible")
		h.visible.Store(false)
		if err := h.reldisp(1); err != nil {
			logger.Errorf(ctx, "VT_RELDISP: %v", err)
		}
	case unix.SIGUSR2:
		logger.Infof(ctx, "user switched back, now visible")
		h.visible.Store(true)
		if err := h.reldisp(linuxvt.VT_ACKACQ); err != nil {
			logger.Errorf(ctx, "VT_RELDISP: %v", err)
		}
	}
}

func (h *Handle) stopSignals() {
	signal.Stop(h.signals)
	close(h.signals)
}

// Visible returns whether this Linux console is currently visible.
func (h *Handle) Visible() bool {
	return h.visible.Load()
}

// Cleanup switches the console from graphics mode back to text mode, then
// to the previous console, and finally disallocates the console.
func (h *Handle) Cleanup(ctx context.Context) error {
	fd := h.f.Fd()
	if err := unix.IoctlSetInt(int(fd), linuxvt.KDSETMODE, linuxvt.KD_TEXT); err != nil {
		return fmt.Errorf("KDSETMODE: %v", err)
	}

	if err := setSwitchSignals(fd, linuxvt.VT_AUTO, 0, 0); err != nil {
		return err
	}
	h.stopSignals()

	if err := unix.IoctlSetInt(int(fd), linuxvt.VT_ACTIVATE, h.prevVT); err != nil {
		return fmt.Errorf("VT_ACTIVATE: %v", err)
	}
	if err := unix.IoctlSetInt(int(fd), linuxvt.VT_WAITACTIVE, h.prevVT); err != nil {
		return fmt.Errorf("VT_WAITACTIVE: %v", err)
	}
	if err := h.f.Close(); err != nil {
		return err
	}
	logger.Debugf(ctx, "returned to tty%d", h.prevVT)
	return disallocateConsole(h.vt)
}
