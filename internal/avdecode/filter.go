package avdecode

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

// filterGraph runs decoded frames through a libavfilter graph, e.g.
// "deinterlace_v4l2m2m". It is built from the first decoded frame since
// only then the hardware frames context is known.
type filterGraph struct {
	graph *astiav.FilterGraph
	src   *astiav.BuffersrcFilterContext
	sink  *astiav.BuffersinkFilterContext
	out   *astiav.Frame
}

func newFilterGraph(
	description string,
	f *astiav.Frame,
	timeBase astiav.Rational,
	hwFrames *astiav.HardwareFramesContext,
) (_ *filterGraph, _err error) {
	g := &filterGraph{graph: astiav.AllocFilterGraph()}
	if g.graph == nil {
		return nil, errors.New("unable to allocate filter graph")
	}
	defer func() {
		if _err != nil {
			g.Free()
		}
	}()

	srcFilter := astiav.FindFilterByName("buffer")
	sinkFilter := astiav.FindFilterByName("buffersink")
	if srcFilter == nil || sinkFilter == nil {
		return nil, errors.New("unable to find buffer or buffersink filters")
	}

	var err error
	if g.src, err = g.graph.NewBuffersrcFilterContext(srcFilter, "in"); err != nil {
		return nil, fmt.Errorf("unable to create buffersrc context: %w", err)
	}
	if g.sink, err = g.graph.NewBuffersinkFilterContext(sinkFilter, "out"); err != nil {
		return nil, fmt.Errorf("unable to create buffersink context: %w", err)
	}

	params := astiav.AllocBuffersrcFilterContextParameters()
	defer params.Free()
	params.SetWidth(f.Width())
	params.SetHeight(f.Height())
	params.SetPixelFormat(f.PixelFormat())
	params.SetTimeBase(timeBase)
	params.SetSampleAspectRatio(f.SampleAspectRatio())
	if hwFrames != nil {
		params.SetHardwareFramesContext(hwFrames)
	}
	if err := g.src.SetParameters(params); err != nil {
		return nil, fmt.Errorf("unable to set buffersrc parameters: %w", err)
	}
	if err := g.src.Initialize(nil); err != nil {
		return nil, fmt.Errorf("unable to initialize buffersrc: %w", err)
	}

	outputs := astiav.AllocFilterInOut()
	defer outputs.Free()
	outputs.SetName("in")
	outputs.SetFilterContext(g.src.FilterContext())
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	inputs := astiav.AllocFilterInOut()
	defer inputs.Free()
	inputs.SetName("out")
	inputs.SetFilterContext(g.sink.FilterContext())
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	if err := g.graph.Parse(description, inputs, outputs); err != nil {
		return nil, fmt.Errorf("unable to parse filter %q: %w", description, err)
	}
	if err := g.graph.Configure(); err != nil {
		return nil, fmt.Errorf("unable to configure filter graph: %w", err)
	}
	g.out = astiav.AllocFrame()
	return g, nil
}

// filter pushes f (nil flushes the graph) and calls fn with every frame
// the graph produces. fn does not own the frame it is passed.
func (g *filterGraph) filter(f *astiav.Frame, fn func(*astiav.Frame) error) error {
	if err := g.src.AddFrame(f, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)); err != nil {
		return fmt.Errorf("feeding filter graph: %w", err)
	}
	for {
		err := g.sink.GetFrame(g.out, astiav.NewBuffersinkFlags())
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pulling from filter graph: %w", err)
		}
		err = fn(g.out)
		g.out.Unref()
		if err != nil {
			return err
		}
	}
}

func (g *filterGraph) Free() {
	if g.out != nil {
		g.out.Free()
	}
	g.graph.Free()
}
