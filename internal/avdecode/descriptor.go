package avdecode

import (
	"errors"
	"fmt"

	"github.com/gokrazy/drmprime/internal/drm"
	"github.com/gokrazy/drmprime/internal/frame"
)

// descriptor is a Go copy of an AVDRMFrameDescriptor.
type descriptor struct {
	Objects []frame.Object
	Layers  []layer
}

type layer struct {
	Format drm.Format
	Planes []frame.Plane
}

// format returns the fourcc of the whole picture. Decoders which export
// every plane as its own layer describe e.g. NV12 as an R8 and a GR88
// layer.
func (d *descriptor) format() (drm.Format, error) {
	if len(d.Layers) == 0 {
		return 0, errors.New("DRM descriptor has no layers")
	}
	if len(d.Layers) == 1 {
		return d.Layers[0].Format, nil
	}
	formats := make([]drm.Format, len(d.Layers))
	for idx, l := range d.Layers {
		formats[idx] = l.Format
	}
	switch {
	case len(formats) == 2 && formats[0] == drm.FormatR8 && formats[1] == drm.FormatGR88:
		return drm.FormatNV12, nil
	case len(formats) == 3 && formats[0] == drm.FormatR8 && formats[1] == drm.FormatR8 && formats[2] == drm.FormatR8:
		return drm.FormatYUV420, nil
	}
	return 0, fmt.Errorf("unsupported layer combination %v", formats)
}

// toFrame flattens the planes of all layers into one Frame.
func (d *descriptor) toFrame(width, height int, release func()) (*frame.Frame, error) {
	format, err := d.format()
	if err != nil {
		return nil, err
	}
	var planes []frame.Plane
	for _, l := range d.Layers {
		planes = append(planes, l.Planes...)
	}
	if len(planes) > frame.MaxPlanes || len(d.Objects) > frame.MaxPlanes {
		return nil, frame.ErrTooManyPlanes
	}
	f := frame.New(format, width, height, d.Objects, planes, release)
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}
