// Copyright 2018 Axel Wagner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fbimage provides draw.Image views of scanout buffer memory in the
// DRM pixel formats the test pattern uses.
package fbimage

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/gokrazy/drmprime/internal/drm"
)

// Image is a draw.Image over scanout memory which can be filled from an
// *image.RGBA quickly.
type Image interface {
	draw.Image
	CopyRGBA(src *image.RGBA)
}

// New wraps pix, a mapped buffer of the given size and pitch.
func New(format drm.Format, pix []byte, width, height, pitch int) (Image, error) {
	r := image.Rect(0, 0, width, height)
	var bpp int
	switch format {
	case drm.FormatXRGB8888:
		bpp = 4
	case drm.FormatRGB565:
		bpp = 2
	default:
		return nil, fmt.Errorf("unsupported pixel format %v", format)
	}
	if pitch < width*bpp || len(pix) < (height-1)*pitch+width*bpp {
		return nil, fmt.Errorf("buffer of %d bytes too small for %dx%d %v with pitch %d",
			len(pix), width, height, format, pitch)
	}
	if bpp == 4 {
		return &XRGB8888{Pix: pix, Rect: r, Stride: pitch}, nil
	}
	return &RGB565{Pix: pix, Rect: r, Stride: pitch}, nil
}

// unpremultiply converts the alpha-premultiplied RGBA pixel s.
func unpremultiply(s []byte) color.NRGBA {
	switch s[3] {
	case 0xff:
		return color.NRGBA{s[0], s[1], s[2], 0xff}
	case 0:
		return color.NRGBA{}
	}
	r := uint32(s[0])
	r |= r << 8
	g := uint32(s[1])
	g |= g << 8
	b := uint32(s[2])
	b |= b << 8
	a := uint32(s[3])
	a |= a << 8

	// Since Color.RGBA returns an alpha-premultiplied color, we
	// should have r <= a && g <= a && b <= a.
	r = (r * 0xffff) / a
	g = (g * 0xffff) / a
	b = (b * 0xffff) / a
	return color.NRGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}
