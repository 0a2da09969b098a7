package testpattern

import (
	"context"

	"github.com/gokrazy/drmprime/internal/drm"
	"golang.org/x/sys/unix"
)

// DeviceSource is a Source with its own descriptor of the card. Dumb
// buffers are per-descriptor, so the frames go through the same PRIME
// import as decoded ones.
type DeviceSource struct {
	*Source
	dev *drm.Device
}

func Open(ctx context.Context, card string, cfg Config) (*DeviceSource, error) {
	if card == "" {
		card = drm.DefaultCard
	}
	dev, err := drm.Open(card)
	if err != nil {
		return nil, err
	}
	src, err := newSource(ctx, dev, unix.Munmap, unix.Close, cfg)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return &DeviceSource{Source: src, dev: dev}, nil
}

func (d *DeviceSource) Close() error {
	err := d.Source.Close()
	if cerr := d.dev.Close(); err == nil {
		err = cerr
	}
	return err
}
