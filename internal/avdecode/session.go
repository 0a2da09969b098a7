// Package avdecode decodes a video file with a hardware decoder and hands
// every picture on as a dma-buf backed frame.Frame, without the pixels ever
// touching the CPU.
package avdecode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gokrazy/drmprime/internal/frame"
)

type Config struct {
	// HWDevice is the libavutil hardware device type used by decoders
	// other than the V4L2 ones, "drm" if empty.
	HWDevice string
	// DecoderName forces a decoder, e.g. "hevc". By default H.264 and
	// HEVC use their V4L2 decoder when present.
	DecoderName string
	// Filter is an optional libavfilter graph description applied to the
	// decoded frames, e.g. "deinterlace_v4l2m2m".
	Filter string
	// ThreadCount is passed to the decoder; 0 lets libavcodec decide.
	ThreadCount int
	// Loops is how many times the file is replayed after the first pass.
	// Negative replays forever.
	Loops int
	// MaxFrames stops decoding after that many frames; 0 means no limit.
	MaxFrames uint64
}

// Sink receives decoded frames in decode order. On success the sink owns
// the frame; on error the caller releases it and Run stops.
type Sink func(ctx context.Context, f *frame.Frame) error

var errMaxFrames = errors.New("frame limit reached")

// Session decodes one file. It is not safe for concurrent use, but the
// frames it emits may be released from any goroutine.
type Session struct {
	filename string
	cfg      Config
	hwType   astiav.HardwareDeviceType
	seq      uint64

	// Per pass, reset by open.
	closer   *astikit.Closer
	input    *astiav.FormatContext
	stream   *astiav.Stream
	decoder  *astiav.CodecContext
	hwPixFmt astiav.PixelFormat
	filter   *filterGraph
	packet   *astiav.Packet
	decoded  *astiav.Frame
}

func Open(ctx context.Context, filename string, cfg Config) (*Session, error) {
	if cfg.HWDevice == "" {
		cfg.HWDevice = "drm"
	}
	hwType, err := hardwareDeviceTypeFromString(cfg.HWDevice)
	if err != nil {
		return nil, err
	}
	s := &Session{
		filename: filename,
		cfg:      cfg,
		hwType:   hwType,
	}
	if err := s.open(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) open(ctx context.Context) error {
	s.closer = astikit.NewCloser()

	if s.input = astiav.AllocFormatContext(); s.input == nil {
		return errors.New("unable to allocate format context")
	}
	s.closer.Add(s.input.Free)
	if err := s.input.OpenInput(s.filename, nil, nil); err != nil {
		return fmt.Errorf("opening %s: %w", s.filename, err)
	}
	s.closer.Add(s.input.CloseInput)
	if err := s.input.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("finding stream info: %w", err)
	}

	for _, st := range s.input.Streams() {
		if st.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			s.stream = st
			break
		}
	}
	if s.stream == nil {
		return fmt.Errorf("%s has no video stream", s.filename)
	}
	params := s.stream.CodecParameters()

	codec, err := findDecoder(ctx, params.CodecID(), s.cfg)
	if err != nil {
		return err
	}
	if s.decoder = astiav.AllocCodecContext(codec); s.decoder == nil {
		return errors.New("unable to allocate codec context")
	}
	s.closer.Add(s.decoder.Free)
	if err := params.ToCodecContext(s.decoder); err != nil {
		return fmt.Errorf("copying codec parameters: %w", err)
	}
	if s.cfg.ThreadCount > 0 {
		s.decoder.SetThreadCount(s.cfg.ThreadCount)
	}

	if isV4L2M2M(codec) {
		s.hwPixFmt = astiav.PixelFormatDrmPrime
	} else {
		if s.hwPixFmt, err = hardwarePixelFormat(codec, s.hwType); err != nil {
			return err
		}
		hw, err := astiav.CreateHardwareDeviceContext(s.hwType, "", nil, 0)
		if err != nil {
			return fmt.Errorf("unable to create %s device context: %w", s.hwType, err)
		}
		s.closer.Add(hw.Free)
		s.decoder.SetHardwareDeviceContext(hw)
	}
	s.decoder.SetPixelFormatCallback(func(pfs []astiav.PixelFormat) astiav.PixelFormat {
		for _, pf := range pfs {
			if pf == s.hwPixFmt {
				return pf
			}
		}
		logger.Errorf(ctx, "decoder cannot produce %s (offers %v)", s.hwPixFmt, pfs)
		return astiav.PixelFormatNone
	})

	if err := s.decoder.Open(codec, nil); err != nil {
		return fmt.Errorf("opening decoder %s: %w", codec.Name(), err)
	}

	s.packet = astiav.AllocPacket()
	s.closer.Add(s.packet.Free)
	s.decoded = astiav.AllocFrame()
	s.closer.Add(s.decoded.Free)

	logger.Infof(ctx, "decoding %s: stream #%d %s %dx%d with %s (%s)",
		s.filename, s.stream.Index(), params.CodecID(), params.Width(), params.Height(), codec.Name(), s.hwPixFmt)
	return nil
}

// Close frees the decoder. Frames already emitted stay valid until they
// are released.
func (s *Session) Close() error {
	if s.filter != nil {
		s.filter.Free()
		s.filter = nil
	}
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// Frames returns how many frames have been emitted so far.
func (s *Session) Frames() uint64 {
	return s.seq
}

// Run decodes the file, replaying it as configured, and passes every frame
// to sink. It returns nil at the end of the input or once MaxFrames frames
// were emitted, ctx.Err() when ctx is done, and the sink's error if it
// refuses a frame.
func (s *Session) Run(ctx context.Context, sink func(context.Context, *frame.Frame) error) error {
	for pass := 0; s.cfg.Loops < 0 || pass <= s.cfg.Loops; pass++ {
		if pass > 0 {
			logger.Debugf(ctx, "replaying %s (pass %d)", s.filename, pass+1)
			s.Close()
			if err := s.open(ctx); err != nil {
				return err
			}
		}
		err := s.decodeAll(ctx, sink)
		if errors.Is(err, errMaxFrames) {
			logger.Debugf(ctx, "stopping after %d frames", s.seq)
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) decodeAll(ctx context.Context, sink Sink) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.input.ReadFrame(s.packet)
		if errors.Is(err, astiav.ErrEof) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading packet: %w", err)
		}
		if s.packet.StreamIndex() != s.stream.Index() {
			s.packet.Unref()
			continue
		}
		err = s.send(ctx, s.packet, sink)
		s.packet.Unref()
		if err != nil {
			return err
		}
	}

	// Drain the decoder.
	if err := s.send(ctx, nil, sink); err != nil {
		return err
	}
	if s.filter != nil {
		return s.filter.filter(nil, func(f *astiav.Frame) error {
			return s.emit(ctx, f, sink)
		})
	}
	return nil
}

// send feeds pkt (nil at the end of the stream) to the decoder and passes
// on everything the decoder has ready.
func (s *Session) send(ctx context.Context, pkt *astiav.Packet, sink Sink) error {
	for {
		err := s.decoder.SendPacket(pkt)
		switch {
		case err == nil, errors.Is(err, astiav.ErrEof):
			return s.receive(ctx, sink)
		case errors.Is(err, astiav.ErrEagain):
			// The decoder is full; make room and try again.
			if err := s.receive(ctx, sink); err != nil {
				return err
			}
		default:
			return fmt.Errorf("sending packet: %w", err)
		}
	}
}

func (s *Session) receive(ctx context.Context, sink Sink) error {
	for {
		err := s.decoder.ReceiveFrame(s.decoded)
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receiving frame: %w", err)
		}
		err = s.process(ctx, s.decoded, sink)
		s.decoded.Unref()
		if err != nil {
			return err
		}
	}
}

func (s *Session) process(ctx context.Context, f *astiav.Frame, sink Sink) error {
	if s.cfg.Filter == "" {
		return s.emit(ctx, f, sink)
	}
	if s.filter == nil {
		g, err := newFilterGraph(s.cfg.Filter, f, s.stream.TimeBase(), s.decoder.HardwareFramesContext())
		if err != nil {
			return err
		}
		s.filter = g
	}
	return s.filter.filter(f, func(f *astiav.Frame) error {
		return s.emit(ctx, f, sink)
	})
}

// emit takes a new reference to f and hands it to sink as a frame.Frame.
// The reference is dropped when the frame is released.
func (s *Session) emit(ctx context.Context, f *astiav.Frame, sink Sink) error {
	if s.cfg.MaxFrames > 0 && s.seq >= s.cfg.MaxFrames {
		return errMaxFrames
	}
	held := astiav.AllocFrame()
	if err := held.Ref(f); err != nil {
		held.Free()
		return fmt.Errorf("referencing frame: %w", err)
	}
	desc, err := readDescriptor(held)
	if err != nil {
		held.Free()
		return err
	}
	out, err := desc.toFrame(held.Width(), held.Height(), held.Free)
	if err != nil {
		held.Free()
		return err
	}
	s.seq++
	out.Seq = s.seq
	out.PTS = ptsToDuration(held.Pts(), s.stream.TimeBase())
	logger.Tracef(ctx, "decoded %v", out)
	if err := sink(ctx, out); err != nil {
		out.Release()
		return err
	}
	return nil
}

func ptsToDuration(pts int64, timeBase astiav.Rational) time.Duration {
	if pts == astiav.NoPtsValue || timeBase.Den() == 0 {
		return 0
	}
	return time.Duration(astiav.RescaleQ(pts, timeBase, astiav.NewRational(1, 1000000))) * time.Microsecond
}
