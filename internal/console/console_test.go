package console

import (
	"context"
	"testing"

	"github.com/gokrazy/drmprime/internal/linuxvt"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestSwitched(t *testing.T) {
	var acks []int
	h := &Handle{
		reldisp: func(arg int) error {
			acks = append(acks, arg)
			return nil
		},
	}
	h.visible.Store(true)
	ctx := context.Background()

	h.switched(ctx, unix.SIGUSR1)
	assert.False(t, h.Visible())

	h.switched(ctx, unix.SIGUSR2)
	assert.True(t, h.Visible())

	h.switched(ctx, unix.SIGHUP)
	assert.True(t, h.Visible())

	assert.Equal(t, []int{1, linuxvt.VT_ACKACQ}, acks)
}
