package drm

import (
	"fmt"
	"strings"
)

// Format is a DRM fourcc pixel format code (drm_fourcc.h).
type Format uint32

func FourCC(a, b, c, d byte) Format {
	return Format(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

const (
	FormatXRGB8888 Format = 'X' | 'R'<<8 | '2'<<16 | '4'<<24
	FormatARGB8888 Format = 'A' | 'R'<<8 | '2'<<16 | '4'<<24
	FormatRGB565   Format = 'R' | 'G'<<8 | '1'<<16 | '6'<<24
	FormatNV12     Format = 'N' | 'V'<<8 | '1'<<16 | '2'<<24
	FormatNV21     Format = 'N' | 'V'<<8 | '2'<<16 | '1'<<24
	FormatYUV420   Format = 'Y' | 'U'<<8 | '1'<<16 | '2'<<24
	FormatP030     Format = 'P' | '0'<<8 | '3'<<16 | '0'<<24

	// Single-component layers some decoders export planes as.
	FormatR8   Format = 'R' | '8'<<8 | ' '<<16 | ' '<<24
	FormatGR88 Format = 'G' | 'R'<<8 | '8'<<16 | '8'<<24
)

// Format modifiers.
const (
	ModLinear  uint64 = 0
	ModInvalid uint64 = 1<<56 - 1
)

// String returns the four characters of the code, e.g. "NV12".
func (f Format) String() string {
	if f == 0 {
		return "<none>"
	}
	var b strings.Builder
	for shift := 0; shift < 32; shift += 8 {
		c := byte(uint32(f) >> shift)
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(f))
		}
		b.WriteByte(c)
	}
	return strings.TrimRight(b.String(), " ")
}
