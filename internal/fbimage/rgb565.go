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

package fbimage

import (
	"encoding/binary"
	"image"
	"image/color"
)

// RGB565 is DRM_FORMAT_RGB565: little-endian 16 bit pixels with red in the
// top five bits.
type RGB565 struct {
	Pix    []byte
	Rect   image.Rectangle
	Stride int
}

func pack565(c color.NRGBA) uint16 {
	return uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
}

// unpack565 widens each channel to 8 bits, repeating its top bits so that
// full intensity maps to 0xff.
func unpack565(p uint16) color.NRGBA {
	r := uint8(p>>11) & 0x1f
	g := uint8(p>>5) & 0x3f
	b := uint8(p) & 0x1f
	return color.NRGBA{
		R: r<<3 | r>>2,
		G: g<<2 | g>>4,
		B: b<<3 | b>>2,
		A: 0xff,
	}
}

func (i *RGB565) Bounds() image.Rectangle { return i.Rect }
func (i *RGB565) ColorModel() color.Model { return color.NRGBAModel }

func (i *RGB565) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(i.Rect)) {
		return color.NRGBA{}
	}
	return unpack565(binary.LittleEndian.Uint16(i.Pix[i.PixOffset(x, y):]))
}

func (i *RGB565) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(i.Rect)) {
		return
	}
	nc := color.NRGBAModel.Convert(c).(color.NRGBA)
	binary.LittleEndian.PutUint16(i.Pix[i.PixOffset(x, y):], pack565(nc))
}

func (i *RGB565) PixOffset(x, y int) int {
	return (y-i.Rect.Min.Y)*i.Stride + (x-i.Rect.Min.X)*2
}

// CopyRGBA is an inlined version of draw.Draw(i, i.Rect, src, ...) for the
// overlapping part of src. Going through Set costs an order of magnitude
// more per frame on a Raspberry Pi 4.
func (i *RGB565) CopyRGBA(src *image.RGBA) {
	r := i.Rect.Intersect(src.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := i.Pix[i.PixOffset(r.Min.X, y):]
		for x := r.Min.X; x < r.Max.X; x++ {
			n := src.PixOffset(x, y)
			// Small cap improves performance, see https://golang.org/issue/27857
			c := unpremultiply(src.Pix[n : n+4 : n+4])
			binary.LittleEndian.PutUint16(row[(x-r.Min.X)*2:], pack565(c))
		}
	}
}
