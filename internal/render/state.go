package render

import "fmt"

type State int32

const (
	// StateIdle waits for the next frame.
	StateIdle State = iota
	// StateImporting turns the frame into a framebuffer.
	StateImporting
	// StatePresenting puts the framebuffer on the plane.
	StatePresenting
	// StateTerminating releases all slots and the display engine.
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateImporting:
		return "importing"
	case StatePresenting:
		return "presenting"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Stats counts what happened to the frames taken by the render loop.
type Stats struct {
	Presented     uint64
	ImportErrors  uint64
	PresentErrors uint64
	// Hidden counts frames dropped while the console was switched away.
	Hidden uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("presented=%d import_errors=%d present_errors=%d hidden=%d",
		s.Presented, s.ImportErrors, s.PresentErrors, s.Hidden)
}
