// Program drmprime shows hardware-decoded video on a DRM/KMS plane, without
// a compositor, typically on a Raspberry Pi running gokrazy.
//
// Decoded pictures stay in dma-buf backed kernel memory all the way: the
// decoder exports them as PRIME file descriptors, which are imported into
// framebuffers and scanned out by a hardware plane.
//
// Without a file argument, drmprime shows a test pattern instead, which
// makes dropped, repeated or flickering frames easy to spot.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/pkg/runtime"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/gokrazy/drmprime/internal/avdecode"
	"github.com/gokrazy/drmprime/internal/console"
	"github.com/gokrazy/drmprime/internal/display"
	"github.com/gokrazy/drmprime/internal/drm"
	"github.com/gokrazy/drmprime/internal/frame"
	"github.com/gokrazy/drmprime/internal/handoff"
	"github.com/gokrazy/drmprime/internal/mediainfo"
	"github.com/gokrazy/drmprime/internal/render"
	"github.com/gokrazy/drmprime/internal/slotpool"
	"github.com/gokrazy/drmprime/internal/testpattern"
	"github.com/gokrazy/gokrazy"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
)

type options struct {
	device   string
	screen   int
	plane    int
	src      string
	dst      string
	ringSize int

	hwDevice  string
	decoder   string
	filter    string
	loops     int
	maxFrames uint64

	testPattern       bool
	testPatternFormat string
	testPatternFPS    float64

	pivid     string
	mediaRoot string

	leaseConsole bool
	logLevel     logger.Level
	cpuprofile   string

	file string
}

func parseFlags(args []string) (*options, error) {
	o := &options{logLevel: logger.LevelInfo}
	fs := pflag.NewFlagSet("drmprime", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: drmprime [flags] [<video file>]\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&o.device, "device", drm.DefaultCard, "DRM card device node")
	fs.IntVar(&o.screen, "screen", 0, "index of the connected screen to use")
	fs.IntVar(&o.plane, "plane", 0, "index of the plane to use among those usable on the screen")
	fs.StringVar(&o.src, "src", "", "source crop rectangle WxH+X+Y (default: full frame)")
	fs.StringVar(&o.dst, "dst", "", "destination rectangle WxH+X+Y on the screen (default: full screen)")
	fs.IntVar(&o.ringSize, "ring-size", slotpool.DefaultCapacity, "number of framebuffer slots cycled through")
	fs.StringVar(&o.hwDevice, "hwdevice", "drm", "hardware device type for decoders without V4L2 support")
	fs.StringVar(&o.decoder, "decoder", "", "force a decoder by name, e.g. hevc")
	fs.StringVar(&o.filter, "filter", "", "libavfilter graph applied to decoded frames, e.g. deinterlace_v4l2m2m")
	fs.IntVar(&o.loops, "loops", 0, "replay the file this many more times; negative loops forever")
	fs.Uint64Var(&o.maxFrames, "max-frames", 0, "stop after this many frames (0: no limit)")
	fs.BoolVar(&o.testPattern, "testpattern", false, "show a test pattern instead of a video file")
	fs.StringVar(&o.testPatternFormat, "testpattern-format", "XR24", "test pattern pixel format: XR24 or RG16")
	fs.Float64Var(&o.testPatternFPS, "testpattern-fps", 30, "test pattern frame rate (0: as fast as possible)")
	fs.StringVar(&o.pivid, "pivid", "", "pivid_server binary used to look up the clip duration (disabled if empty)")
	fs.StringVar(&o.mediaRoot, "media-root", "", "media root for pivid_server (default: directory of the video file)")
	fs.BoolVar(&o.leaseConsole, "lease-console", true, "switch to a free Linux console in graphics mode while running")
	fs.Var(&o.logLevel, "log-level", "Log level")
	fs.StringVar(&o.cpuprofile, "cpuprofile", "", "write a CPU profile to this file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch fs.NArg() {
	case 0:
		o.testPattern = true
	case 1:
		o.file = fs.Arg(0)
	default:
		fs.Usage()
		return nil, fmt.Errorf("expected at most one video file, got %d arguments", fs.NArg())
	}
	if o.testPattern && o.file != "" {
		return nil, errors.New("--testpattern and a video file are mutually exclusive")
	}
	if o.ringSize < 1 {
		return nil, fmt.Errorf("invalid --ring-size %d", o.ringSize)
	}
	return o, nil
}

func (o *options) displayConfig() (display.Config, error) {
	src, err := display.ParseRect(o.src)
	if err != nil {
		return display.Config{}, fmt.Errorf("--src: %w", err)
	}
	dst, err := display.ParseRect(o.dst)
	if err != nil {
		return display.Config{}, fmt.Errorf("--dst: %w", err)
	}
	return display.Config{
		Device:       o.device,
		ScreenNumber: o.screen,
		PlaneNumber:  o.plane,
		Geometry:     display.Geometry{Source: src, Destination: dst},
	}, nil
}

func parseTestPatternFormat(s string) (drm.Format, error) {
	switch strings.ToUpper(s) {
	case "XR24", "XRGB8888":
		return drm.FormatXRGB8888, nil
	case "RG16", "RGB565":
		return drm.FormatRGB565, nil
	}
	return 0, fmt.Errorf("unsupported test pattern format %q", s)
}

func (o *options) testPatternConfig(screen display.Rect) (testpattern.Config, error) {
	format, err := parseTestPatternFormat(o.testPatternFormat)
	if err != nil {
		return testpattern.Config{}, err
	}
	cfg := testpattern.Config{
		Width:   screen.W,
		Height:  screen.H,
		Format:  format,
		Buffers: o.ringSize + 2,
		Frames:  o.maxFrames,
	}
	if o.testPatternFPS > 0 {
		cfg.Interval = time.Duration(float64(time.Second) / o.testPatternFPS)
	}
	return cfg, nil
}

// producer is a frame source driving the render loop.
type producer interface {
	Run(ctx context.Context, sink func(context.Context, *frame.Frame) error) error
	Frames() uint64
	Close() error
}

func logDuration(ctx context.Context, o *options) {
	root := o.mediaRoot
	if root == "" {
		root = filepath.Dir(o.file)
	}
	srv, err := mediainfo.Start(ctx, mediainfo.Config{Binary: o.pivid, MediaRoot: root})
	if err != nil {
		logger.Warnf(ctx, "media info: %v", err)
		return
	}
	defer srv.Close()
	rel, err := filepath.Rel(root, o.file)
	if err != nil {
		rel = filepath.Base(o.file)
	}
	d, err := srv.Duration(ctx, rel)
	if err != nil {
		logger.Warnf(ctx, "media info: %v", err)
		return
	}
	logger.Infof(ctx, "%s: duration %v", rel, d)
}

func drmprime(ctx context.Context, o *options) error {
	logger.Infof(ctx, "drmprime on %s", gokrazy.Model())

	dcfg, err := o.displayConfig()
	if err != nil {
		return err
	}

	var visible func() bool
	if o.leaseConsole {
		cons, err := console.LeaseForGraphics(ctx)
		if err != nil {
			logger.Warnf(ctx, "not leasing a console: %v", err)
		} else {
			defer func() {
				if err := cons.Cleanup(ctx); err != nil {
					logger.Error(ctx, err)
				}
			}()
			visible = cons.Visible
		}
	}

	binding, err := display.Open(ctx, dcfg)
	if err != nil {
		return err
	}

	var src producer
	if o.testPattern {
		tcfg, err := o.testPatternConfig(binding.Screen())
		if err != nil {
			binding.Close(ctx)
			return err
		}
		if !binding.SupportsFormat(tcfg.Format) {
			logger.Warnf(ctx, "plane does not list %v, expect ADDFB2 or SETPLANE to fail", tcfg.Format)
		}
		ts, err := testpattern.Open(ctx, o.device, tcfg)
		if err != nil {
			binding.Close(ctx)
			return err
		}
		src = ts
	} else {
		if o.pivid != "" {
			logDuration(ctx, o)
		}
		avdecode.SetupLogging(ctx)
		sess, err := avdecode.Open(ctx, o.file, avdecode.Config{
			HWDevice:    o.hwDevice,
			DecoderName: o.decoder,
			Filter:      o.filter,
			Loops:       o.loops,
			MaxFrames:   o.maxFrames,
		})
		if err != nil {
			binding.Close(ctx)
			return err
		}
		src = sess
	}
	defer src.Close()

	out, err := render.New(ctx, binding, render.Config{
		RingSize: o.ringSize,
		Visible:  visible,
	})
	if err != nil {
		binding.Close(ctx)
		return err
	}

	start := time.Now()
	runErr := src.Run(ctx, out.DisplayFrame)
	if errors.Is(runErr, handoff.ErrClosed) || errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	// ctx may be canceled already; the plane still has to be disabled.
	if err := out.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Errorf(ctx, "closing the display: %v", err)
	}

	elapsed := time.Since(start)
	fps := float64(src.Frames()) / elapsed.Seconds()
	logger.Infof(ctx, "%d frames in %v (%.1f fps), %v",
		src.Frames(), elapsed.Round(time.Millisecond), fps, out.Stats())
	return runErr
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	runtime.DefaultCallerPCFilter = observability.CallerPCFilter(runtime.DefaultCallerPCFilter)
	l := logrus.Default().WithLevel(o.logLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	// Cancel the context instead of exiting the program:
	ctx, canc := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer canc()

	if o.cpuprofile != "" {
		f, err := os.Create(o.cpuprofile)
		if err != nil {
			l.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if err := drmprime(ctx, o); err != nil {
		logger.Error(ctx, err)
		belt.Flush(ctx)
		os.Exit(1)
	}
}
