package display

import (
	"fmt"
	"strconv"
	"strings"
)

// Rect is an axis-aligned rectangle. A Rect with zero width or height is
// empty.
type Rect struct {
	X, Y int
	W, H int
}

func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// String formats r the way ParseRect accepts it.
func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.W, r.H, r.X, r.Y)
}

// ParseRect parses an X11-style geometry: "WxH+X+Y", "WxH" or "".
func ParseRect(s string) (Rect, error) {
	var r Rect
	if s == "" {
		return r, nil
	}
	size, offset, hasOffset := strings.Cut(s, "+")
	w, h, ok := strings.Cut(size, "x")
	if !ok {
		return r, fmt.Errorf("geometry %q: want WxH[+X+Y]", s)
	}
	var err error
	if r.W, err = strconv.Atoi(w); err != nil {
		return r, fmt.Errorf("geometry %q: width: %v", s, err)
	}
	if r.H, err = strconv.Atoi(h); err != nil {
		return r, fmt.Errorf("geometry %q: height: %v", s, err)
	}
	if r.W < 0 || r.H < 0 {
		return r, fmt.Errorf("geometry %q: negative size", s)
	}
	if hasOffset {
		x, y, ok := strings.Cut(offset, "+")
		if !ok {
			return r, fmt.Errorf("geometry %q: want WxH+X+Y", s)
		}
		if r.X, err = strconv.Atoi(x); err != nil {
			return r, fmt.Errorf("geometry %q: x: %v", s, err)
		}
		if r.Y, err = strconv.Atoi(y); err != nil {
			return r, fmt.Errorf("geometry %q: y: %v", s, err)
		}
	}
	return r, nil
}

// Geometry places the picture on the screen. An empty Source shows the
// whole frame, an empty Destination covers the whole CRTC.
type Geometry struct {
	Source      Rect
	Destination Rect
}
