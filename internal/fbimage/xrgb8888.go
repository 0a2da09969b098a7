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
	"image"
	"image/color"
)

// XRGB8888 is DRM_FORMAT_XRGB8888: little-endian 32 bit pixels, i.e. the
// bytes B, G, R and an unused one.
type XRGB8888 struct {
	Pix    []byte
	Rect   image.Rectangle
	Stride int
}

func (i *XRGB8888) Bounds() image.Rectangle { return i.Rect }
func (i *XRGB8888) ColorModel() color.Model { return color.RGBAModel }

func (i *XRGB8888) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(i.Rect)) {
		return color.RGBA{}
	}

	pix := i.Pix[i.PixOffset(x, y):]
	return color.RGBA{pix[2], pix[1], pix[0], 0xff}
}

func (i *XRGB8888) Set(x, y int, c color.Color) {
	i.SetRGBA(x, y, color.RGBAModel.Convert(c).(color.RGBA))
}

// SetRGBA stores c as if composited onto black; the X byte is ignored by
// the display.
func (i *XRGB8888) SetRGBA(x, y int, c color.RGBA) {
	if !(image.Point{x, y}.In(i.Rect)) {
		return
	}

	pix := i.Pix[i.PixOffset(x, y):]
	pix[0] = c.B
	pix[1] = c.G
	pix[2] = c.R
	pix[3] = 0xff
}

func (i *XRGB8888) PixOffset(x, y int) int {
	return (y-i.Rect.Min.Y)*i.Stride + (x-i.Rect.Min.X)*4
}

// CopyRGBA copies the overlapping part of src, row by row.
func (i *XRGB8888) CopyRGBA(src *image.RGBA) {
	r := i.Rect.Intersect(src.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		s := src.Pix[src.PixOffset(r.Min.X, y):]
		d := i.Pix[i.PixOffset(r.Min.X, y):]
		for x := 0; x < r.Dx(); x++ {
			// Small caps improve performance, see https://golang.org/issue/27857
			sp := s[4*x : 4*x+4 : 4*x+4]
			dp := d[4*x : 4*x+4 : 4*x+4]
			dp[0] = sp[2]
			dp[1] = sp[1]
			dp[2] = sp[0]
			dp[3] = 0xff
		}
	}
}
