// Package display binds the render loop to one hardware overlay plane of
// one screen.
package display

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gokrazy/drmprime/internal/drm"
	"github.com/gokrazy/drmprime/internal/slotpool"
)

type Config struct {
	// Device is the DRM card node, drm.DefaultCard if empty.
	Device string
	// ScreenNumber selects among the connected connectors, in the order
	// the kernel lists them.
	ScreenNumber int
	// PlaneNumber selects among the planes usable on the screen's CRTC.
	PlaneNumber int
	Geometry    Geometry
}

// Binding is an open card with a chosen connector, CRTC and plane. It
// implements slotpool.Importer on the same card descriptor.
type Binding struct {
	*drm.Device

	connector uint32
	crtc      uint32
	plane     uint32
	mode      drm.ModeInfo
	formats   []drm.Format
	geometry  Geometry
}

var _ slotpool.Importer = (*Binding)(nil)

func Open(ctx context.Context, cfg Config) (*Binding, error) {
	if cfg.Device == "" {
		cfg.Device = drm.DefaultCard
	}
	dev, err := drm.Open(cfg.Device)
	if err != nil {
		return nil, err
	}
	b, err := bind(ctx, dev, cfg)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("%s: %w", cfg.Device, err)
	}
	return b, nil
}

func bind(ctx context.Context, dev *drm.Device, cfg Config) (*Binding, error) {
	if err := dev.SetClientCap(drm.ClientCapUniversalPlanes, 1); err != nil {
		return nil, err
	}
	sel, err := selectOutput(dev, cfg.ScreenNumber, cfg.PlaneNumber)
	if err != nil {
		return nil, err
	}
	b := &Binding{
		Device:    dev,
		connector: sel.Connector,
		crtc:      sel.Crtc.ID,
		plane:     sel.Plane.ID,
		mode:      sel.Crtc.Mode,
		formats:   sel.Plane.Formats,
		geometry:  cfg.Geometry,
	}
	logger.Infof(ctx, "display: connector %d, crtc %d (%v), plane %d, %d formats",
		b.connector, b.crtc, b.mode, b.plane, len(b.formats))
	return b, nil
}

// Screen is the full CRTC area.
func (b *Binding) Screen() Rect {
	return Rect{W: int(b.mode.Hdisplay), H: int(b.mode.Vdisplay)}
}

func (b *Binding) Mode() drm.ModeInfo {
	return b.mode
}

// SupportsFormat reports whether the plane can scan out f.
func (b *Binding) SupportsFormat(f drm.Format) bool {
	for _, pf := range b.formats {
		if pf == f {
			return true
		}
	}
	return false
}

// Present puts the framebuffer of s on the plane.
func (b *Binding) Present(ctx context.Context, s *slotpool.Slot) error {
	if !s.Allocated() {
		return fmt.Errorf("slot %d holds no framebuffer", s.Index)
	}
	sp := planeUpdate(b.plane, b.crtc, b.Screen(), b.geometry, s.FB, s.Frame.Width, s.Frame.Height)
	logger.Tracef(ctx, "display: fb %d src %dx%d dst %dx%d+%d+%d",
		sp.FBID, sp.SrcW>>16, sp.SrcH>>16, sp.CrtcW, sp.CrtcH, sp.CrtcX, sp.CrtcY)
	return b.SetPlane(sp)
}

// Disable detaches the plane from any framebuffer.
func (b *Binding) Disable(ctx context.Context) error {
	logger.Debugf(ctx, "display: disabling plane %d", b.plane)
	return b.SetPlane(drm.SetPlane{PlaneID: b.plane})
}

// Close disables the plane and closes the card.
func (b *Binding) Close(ctx context.Context) error {
	derr := b.Disable(ctx)
	if err := b.Device.Close(); err != nil {
		return err
	}
	return derr
}

func planeUpdate(plane, crtc uint32, screen Rect, g Geometry, fb uint32, width, height int) drm.SetPlane {
	src := g.Source
	if src.Empty() {
		src = Rect{W: width, H: height}
	}
	dst := g.Destination
	if dst.Empty() {
		dst = screen
	}
	return drm.SetPlane{
		PlaneID: plane,
		CrtcID:  crtc,
		FBID:    fb,
		CrtcX:   int32(dst.X),
		CrtcY:   int32(dst.Y),
		CrtcW:   uint32(dst.W),
		CrtcH:   uint32(dst.H),
		SrcX:    uint32(src.X) << 16,
		SrcY:    uint32(src.Y) << 16,
		SrcW:    uint32(src.W) << 16,
		SrcH:    uint32(src.H) << 16,
	}
}
