package slotpool

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gokrazy/drmprime/internal/drm"
	"github.com/gokrazy/drmprime/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeImporter hands out handles and framebuffer ids and records every
// call in order.
type fakeImporter struct {
	nextHandle uint32
	nextFB     uint32
	fdHandles  map[int]uint32

	liveHandles map[uint32]bool
	liveFBs     map[uint32]drm.FB2
	events      []string

	failImportFD int
	failAddFB    bool
}

func newFakeImporter() *fakeImporter {
	return &fakeImporter{
		nextHandle:   100,
		nextFB:       10,
		fdHandles:    map[int]uint32{},
		liveHandles:  map[uint32]bool{},
		liveFBs:      map[uint32]drm.FB2{},
		failImportFD: -1,
	}
}

func (fi *fakeImporter) PrimeFDToHandle(fd int) (uint32, error) {
	if fd == fi.failImportFD {
		return 0, errors.New("EINVAL")
	}
	h, ok := fi.fdHandles[fd]
	if !ok {
		fi.nextHandle++
		h = fi.nextHandle
		fi.fdHandles[fd] = h
	}
	fi.liveHandles[h] = true
	fi.events = append(fi.events, fmt.Sprintf("import %d", h))
	return h, nil
}

func (fi *fakeImporter) GemClose(h uint32) error {
	if !fi.liveHandles[h] {
		return fmt.Errorf("handle %d not open", h)
	}
	delete(fi.liveHandles, h)
	for fd, fh := range fi.fdHandles {
		if fh == h {
			delete(fi.fdHandles, fd)
		}
	}
	fi.events = append(fi.events, fmt.Sprintf("close %d", h))
	return nil
}

func (fi *fakeImporter) AddFB2(fb drm.FB2) (uint32, error) {
	if fi.failAddFB {
		return 0, errors.New("ENOSPC")
	}
	fi.nextFB++
	fi.liveFBs[fi.nextFB] = fb
	fi.events = append(fi.events, fmt.Sprintf("addfb %d", fi.nextFB))
	return fi.nextFB, nil
}

func (fi *fakeImporter) RmFB(id uint32) error {
	if _, ok := fi.liveFBs[id]; !ok {
		return fmt.Errorf("fb %d not found", id)
	}
	delete(fi.liveFBs, id)
	fi.events = append(fi.events, fmt.Sprintf("rmfb %d", id))
	return nil
}

type testFrame struct {
	*frame.Frame
	released *bool
}

func newFrame(seq uint64, fds ...int) testFrame {
	released := new(bool)
	var objects []frame.Object
	var planes []frame.Plane
	for idx, fd := range fds {
		objects = append(objects, frame.Object{FD: fd, Size: 4096})
		planes = append(planes, frame.Plane{Object: idx, Pitch: 64})
	}
	f := frame.New(drm.FormatNV12, 64, 64, objects, planes, func() { *released = true })
	f.Seq = seq
	return testFrame{Frame: f, released: released}
}

func TestNewInvalidCapacity(t *testing.T) {
	_, err := New(newFakeImporter(), 0)
	require.Error(t, err)
}

func TestAcquireCursorWraps(t *testing.T) {
	ctx := context.Background()
	fi := newFakeImporter()
	p, err := New(fi, 3)
	require.NoError(t, err)
	require.Equal(t, -1, p.Cursor())

	var cursors []int
	for seq := uint64(1); seq <= 7; seq++ {
		s, err := p.Acquire(ctx, newFrame(seq, int(seq)).Frame)
		require.NoError(t, err)
		require.Equal(t, seq, s.Frame.Seq)
		cursors = append(cursors, p.Cursor())
	}
	require.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, cursors)
	// Only the last three frames hold resources.
	require.Len(t, fi.liveFBs, 3)
	require.Len(t, fi.liveHandles, 3)
}

func TestReuseReleasesPreviousOccupantFirst(t *testing.T) {
	ctx := context.Background()
	fi := newFakeImporter()
	p, err := New(fi, 2)
	require.NoError(t, err)

	first := newFrame(1, 1)
	s, err := p.Acquire(ctx, first.Frame)
	require.NoError(t, err)
	oldFB, oldHandle := s.FB, s.Handles[0]

	_, err = p.Acquire(ctx, newFrame(2, 2).Frame)
	require.NoError(t, err)
	require.False(t, *first.released)

	fi.events = nil
	s, err = p.Acquire(ctx, newFrame(3, 3).Frame)
	require.NoError(t, err)
	require.Equal(t, 0, s.Index)
	require.True(t, *first.released)
	require.NotContains(t, fi.liveFBs, oldFB)
	require.NotContains(t, fi.liveHandles, oldHandle)
	require.NotContains(t, s.Handles, oldHandle)
	require.Equal(t, []string{
		fmt.Sprintf("rmfb %d", oldFB),
		fmt.Sprintf("close %d", oldHandle),
		fmt.Sprintf("import %d", s.Handles[0]),
		fmt.Sprintf("addfb %d", s.FB),
	}, fi.events)
}

func TestImportFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	fi := newFakeImporter()
	p, err := New(fi, 3)
	require.NoError(t, err)

	fi.failImportFD = 22
	bad := newFrame(1, 21, 22)
	_, err = p.Acquire(ctx, bad.Frame)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "import", perr.Op)
	require.Equal(t, uint64(1), perr.Frame)
	require.True(t, *bad.released)
	// The handle imported for fd 21 was closed again.
	require.Empty(t, fi.liveHandles)
	require.False(t, p.Slots()[0].Allocated())
	require.Nil(t, p.Slots()[0].Frame)

	// The next frame goes into the next slot.
	s, err := p.Acquire(ctx, newFrame(2, 23).Frame)
	require.NoError(t, err)
	require.Equal(t, 1, s.Index)
}

func TestAddFBFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	fi := newFakeImporter()
	p, err := New(fi, 3)
	require.NoError(t, err)

	fi.failAddFB = true
	f := newFrame(1, 5)
	_, err = p.Acquire(ctx, f.Frame)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "addfb", perr.Op)
	require.True(t, *f.released)
	require.Empty(t, fi.liveHandles)
}

func TestInvalidFrame(t *testing.T) {
	ctx := context.Background()
	fi := newFakeImporter()
	p, err := New(fi, 3)
	require.NoError(t, err)

	f := newFrame(1)
	_, err = p.Acquire(ctx, f.Frame)
	require.ErrorIs(t, err, frame.ErrNoPlanes)
	require.True(t, *f.released)
	require.Empty(t, fi.events)
}

func TestSharedObjectClosedOnce(t *testing.T) {
	ctx := context.Background()
	fi := newFakeImporter()
	p, err := New(fi, 1)
	require.NoError(t, err)

	// Two objects backed by the same dma-buf import as the same handle.
	s, err := p.Acquire(ctx, newFrame(1, 9, 9).Frame)
	require.NoError(t, err)
	require.Equal(t, s.Handles[0], s.Handles[1])

	p.Release(ctx)
	require.Empty(t, fi.liveHandles)
	require.Empty(t, fi.liveFBs)
}

func TestModifiers(t *testing.T) {
	ctx := context.Background()
	fi := newFakeImporter()
	p, err := New(fi, 2)
	require.NoError(t, err)

	linear := newFrame(1, 1)
	linear.Objects[0].Modifier = drm.ModInvalid
	s, err := p.Acquire(ctx, linear.Frame)
	require.NoError(t, err)
	fb := fi.liveFBs[s.FB]
	assert.Zero(t, fb.Flags&drm.FlagModifiers)
	assert.Equal(t, [4]uint64{}, fb.Modifiers)

	const broadcomSAND128 = 0x0700000000000004
	tiled := newFrame(2, 2)
	tiled.Objects[0].Modifier = broadcomSAND128
	s, err = p.Acquire(ctx, tiled.Frame)
	require.NoError(t, err)
	fb = fi.liveFBs[s.FB]
	assert.NotZero(t, fb.Flags&drm.FlagModifiers)
	assert.Equal(t, uint64(broadcomSAND128), fb.Modifiers[0])
}

func TestReleaseAll(t *testing.T) {
	ctx := context.Background()
	fi := newFakeImporter()
	p, err := New(fi, 3)
	require.NoError(t, err)

	var frames []testFrame
	for seq := uint64(1); seq <= 2; seq++ {
		f := newFrame(seq, int(seq))
		frames = append(frames, f)
		_, err := p.Acquire(ctx, f.Frame)
		require.NoError(t, err)
	}
	p.Release(ctx)
	for _, f := range frames {
		require.True(t, *f.released)
	}
	require.Empty(t, fi.liveFBs)
	require.Empty(t, fi.liveHandles)
	for _, s := range p.Slots() {
		require.False(t, s.Allocated())
	}
}

func TestAcquireSkipsOnScreenSlot(t *testing.T) {
	ctx := context.Background()
	fi := newFakeImporter()
	fi.failImportFD = 2
	p, err := New(fi, 3)
	require.NoError(t, err)

	first := newFrame(1, 1)
	s, err := p.Acquire(ctx, first.Frame)
	require.NoError(t, err)
	p.SetOnScreen(s)
	require.Equal(t, 0, p.OnScreen())
	shown := s.FB

	// Two frames in a row fail to import; the next one must not evict the
	// frame still on screen.
	for seq := uint64(2); seq <= 3; seq++ {
		_, err := p.Acquire(ctx, newFrame(seq, 2).Frame)
		require.Error(t, err)
	}
	s, err = p.Acquire(ctx, newFrame(4, 4).Frame)
	require.NoError(t, err)
	require.Equal(t, 1, s.Index)
	require.False(t, *first.released)
	require.Contains(t, fi.liveFBs, shown)

	p.SetOnScreen(s)
	s, err = p.Acquire(ctx, newFrame(5, 5).Frame)
	require.NoError(t, err)
	require.Equal(t, 2, s.Index)

	p.Release(ctx)
	require.Equal(t, -1, p.OnScreen())
	require.True(t, *first.released)
}

func TestSingleSlotReusesOnScreenSlot(t *testing.T) {
	ctx := context.Background()
	p, err := New(newFakeImporter(), 1)
	require.NoError(t, err)

	s, err := p.Acquire(ctx, newFrame(1, 1).Frame)
	require.NoError(t, err)
	p.SetOnScreen(s)
	s, err = p.Acquire(ctx, newFrame(2, 2).Frame)
	require.NoError(t, err)
	require.Equal(t, 0, s.Index)
}
