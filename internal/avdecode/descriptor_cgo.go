package avdecode

// #cgo pkg-config: libavutil
// #include <libavutil/frame.h>
// #include <libavutil/hwcontext_drm.h>
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/asticode/go-astiav"
	"github.com/gokrazy/drmprime/internal/drm"
	"github.com/gokrazy/drmprime/internal/frame"
)

// readDescriptor copies the AVDRMFrameDescriptor which a DRM_PRIME frame
// carries in data[0]. The file descriptors stay owned by f.
func readDescriptor(f *astiav.Frame) (*descriptor, error) {
	if pf := f.PixelFormat(); pf != astiav.PixelFormatDrmPrime {
		return nil, fmt.Errorf("decoder produced %s frames, want drm_prime", pf)
	}
	av := (*C.AVFrame)(f.UnsafePointer())
	if av.data[0] == nil {
		return nil, errors.New("drm_prime frame without descriptor")
	}
	d := (*C.AVDRMFrameDescriptor)(unsafe.Pointer(av.data[0]))
	if d.nb_objects > C.AV_DRM_MAX_PLANES || d.nb_layers > C.AV_DRM_MAX_PLANES {
		return nil, frame.ErrTooManyPlanes
	}

	desc := &descriptor{}
	for i := 0; i < int(d.nb_objects); i++ {
		o := &d.objects[i]
		desc.Objects = append(desc.Objects, frame.Object{
			FD:       int(o.fd),
			Size:     uint64(o.size),
			Modifier: uint64(o.format_modifier),
		})
	}
	for i := 0; i < int(d.nb_layers); i++ {
		l := &d.layers[i]
		if l.nb_planes > C.AV_DRM_MAX_PLANES {
			return nil, frame.ErrTooManyPlanes
		}
		ly := layer{Format: drm.Format(l.format)}
		for j := 0; j < int(l.nb_planes); j++ {
			p := &l.planes[j]
			ly.Planes = append(ly.Planes, frame.Plane{
				Object: int(p.object_index),
				Offset: uint32(p.offset),
				Pitch:  uint32(p.pitch),
			})
		}
		desc.Layers = append(desc.Layers, ly)
	}
	return desc, nil
}
