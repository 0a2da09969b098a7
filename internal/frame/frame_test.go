package frame

import (
	"sync"
	"testing"

	"github.com/gokrazy/drmprime/internal/drm"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func nv12(release func()) *Frame {
	return New(drm.FormatNV12, 1920, 1080,
		[]Object{{FD: 7, Size: 1920 * 1088 * 3 / 2}},
		[]Plane{
			{Object: 0, Offset: 0, Pitch: 1920},
			{Object: 0, Offset: 1920 * 1088, Pitch: 1920},
		},
		release)
}

func TestReleaseOnce(t *testing.T) {
	var released atomic.Int32
	f := nv12(func() { released.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Release()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), released.Load())
}

func TestReleaseNil(t *testing.T) {
	var f *Frame
	f.Release()
	New(drm.FormatNV12, 1, 1, nil, nil, nil).Release()
}

func TestValidate(t *testing.T) {
	require.NoError(t, nv12(nil).Validate())

	f := nv12(nil)
	f.Planes = nil
	require.ErrorIs(t, f.Validate(), ErrNoPlanes)

	f = nv12(nil)
	f.Planes = append(f.Planes, f.Planes...)
	f.Planes = append(f.Planes, f.Planes[0])
	require.ErrorIs(t, f.Validate(), ErrTooManyPlanes)

	f = nv12(nil)
	f.Planes[1].Object = 1
	require.Error(t, f.Validate())

	f = nv12(nil)
	f.Width = 0
	require.Error(t, f.Validate())

	f = nv12(nil)
	f.Format = 0
	require.Error(t, f.Validate())
}
