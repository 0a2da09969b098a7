package display

import (
	"fmt"
	"testing"

	"github.com/gokrazy/drmprime/internal/drm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCard struct {
	res        drm.Resources
	connectors map[uint32]*drm.Connector
	encoders   map[uint32]*drm.Encoder
	crtcs      map[uint32]*drm.Crtc
	planes     []*drm.Plane
}

func (c *fakeCard) Resources() (*drm.Resources, error) { return &c.res, nil }

func (c *fakeCard) Connector(id uint32) (*drm.Connector, error) {
	if conn, ok := c.connectors[id]; ok {
		return conn, nil
	}
	return nil, fmt.Errorf("no connector %d", id)
}

func (c *fakeCard) Encoder(id uint32) (*drm.Encoder, error) {
	if enc, ok := c.encoders[id]; ok {
		return enc, nil
	}
	return nil, fmt.Errorf("no encoder %d", id)
}

func (c *fakeCard) Crtc(id uint32) (*drm.Crtc, error) {
	if crtc, ok := c.crtcs[id]; ok {
		return crtc, nil
	}
	return nil, fmt.Errorf("no crtc %d", id)
}

func (c *fakeCard) Planes() ([]uint32, error) {
	ids := make([]uint32, len(c.planes))
	for i, p := range c.planes {
		ids[i] = p.ID
	}
	return ids, nil
}

func (c *fakeCard) Plane(id uint32) (*drm.Plane, error) {
	for _, p := range c.planes {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no plane %d", id)
}

var mode1080p = drm.ModeInfo{Hdisplay: 1920, Vdisplay: 1080, Vrefresh: 60}

// dualHead resembles a Raspberry Pi 4: two HDMI connectors, the second one
// connected and driven by the second CRTC.
func dualHead() *fakeCard {
	return &fakeCard{
		res: drm.Resources{
			Crtcs:      []uint32{10, 20},
			Connectors: []uint32{31, 32, 33},
			Encoders:   []uint32{41, 42},
		},
		connectors: map[uint32]*drm.Connector{
			31: {ID: 31, Connection: drm.Disconnected},
			32: {ID: 32, Connection: drm.Connected, EncoderID: 41, Modes: []drm.ModeInfo{mode1080p}},
			33: {ID: 33, Connection: drm.Connected, EncoderID: 42, Modes: []drm.ModeInfo{mode1080p}},
		},
		encoders: map[uint32]*drm.Encoder{
			41: {ID: 41, CrtcID: 10, PossibleCrtcs: 0b01},
			42: {ID: 42, CrtcID: 20, PossibleCrtcs: 0b10},
		},
		crtcs: map[uint32]*drm.Crtc{
			10: {ID: 10, ModeValid: true, Mode: mode1080p},
			20: {ID: 20, ModeValid: true, Mode: mode1080p},
		},
		planes: []*drm.Plane{
			{ID: 50, PossibleCrtcs: 0b01},
			{ID: 51, PossibleCrtcs: 0b10},
			{ID: 52, PossibleCrtcs: 0b11},
			{ID: 53, PossibleCrtcs: 0b10},
		},
	}
}

func TestSelectOutput(t *testing.T) {
	for _, tt := range []struct {
		screen, plane int
		wantConnector uint32
		wantCrtc      uint32
		wantPlane     uint32
	}{
		{screen: 0, plane: 0, wantConnector: 32, wantCrtc: 10, wantPlane: 50},
		{screen: 0, plane: 1, wantConnector: 32, wantCrtc: 10, wantPlane: 52},
		{screen: 1, plane: 0, wantConnector: 33, wantCrtc: 20, wantPlane: 51},
		{screen: 1, plane: 2, wantConnector: 33, wantCrtc: 20, wantPlane: 53},
	} {
		t.Run(fmt.Sprintf("screen%d/plane%d", tt.screen, tt.plane), func(t *testing.T) {
			sel, err := selectOutput(dualHead(), tt.screen, tt.plane)
			require.NoError(t, err)
			assert.Equal(t, tt.wantConnector, sel.Connector)
			assert.Equal(t, tt.wantCrtc, sel.Crtc.ID)
			assert.Equal(t, tt.wantPlane, sel.Plane.ID)
		})
	}
}

func TestSelectOutputErrors(t *testing.T) {
	t.Run("no such screen", func(t *testing.T) {
		_, err := selectOutput(dualHead(), 2, 0)
		require.Error(t, err)
	})

	t.Run("no such plane", func(t *testing.T) {
		_, err := selectOutput(dualHead(), 0, 2)
		require.Error(t, err)
	})

	t.Run("crtc without mode", func(t *testing.T) {
		card := dualHead()
		card.crtcs[10].ModeValid = false
		_, err := selectOutput(card, 0, 0)
		require.Error(t, err)
	})

	t.Run("connector not driven", func(t *testing.T) {
		card := dualHead()
		card.encoders[41].CrtcID = 0
		_, err := selectOutput(card, 0, 0)
		require.Error(t, err)
	})
}

func TestPlaneUpdate(t *testing.T) {
	screen := Rect{W: 1920, H: 1080}

	t.Run("full frame to full screen", func(t *testing.T) {
		sp := planeUpdate(50, 10, screen, Geometry{}, 7, 1280, 720)
		assert.Equal(t, drm.SetPlane{
			PlaneID: 50,
			CrtcID:  10,
			FBID:    7,
			CrtcW:   1920,
			CrtcH:   1080,
			SrcW:    1280 << 16,
			SrcH:    720 << 16,
		}, sp)
	})

	t.Run("crop and place", func(t *testing.T) {
		g := Geometry{
			Source:      Rect{X: 8, Y: 4, W: 640, H: 360},
			Destination: Rect{X: 100, Y: 50, W: 960, H: 540},
		}
		sp := planeUpdate(50, 10, screen, g, 7, 1280, 720)
		assert.Equal(t, int32(100), sp.CrtcX)
		assert.Equal(t, int32(50), sp.CrtcY)
		assert.Equal(t, uint32(960), sp.CrtcW)
		assert.Equal(t, uint32(540), sp.CrtcH)
		assert.Equal(t, uint32(8<<16), sp.SrcX)
		assert.Equal(t, uint32(4<<16), sp.SrcY)
		assert.Equal(t, uint32(640<<16), sp.SrcW)
		assert.Equal(t, uint32(360<<16), sp.SrcH)
	})
}

func TestParseRect(t *testing.T) {
	for _, tt := range []struct {
		in      string
		want    Rect
		wantErr bool
	}{
		{in: "", want: Rect{}},
		{in: "1280x720", want: Rect{W: 1280, H: 720}},
		{in: "640x360+10+20", want: Rect{X: 10, Y: 20, W: 640, H: 360}},
		{in: "640", wantErr: true},
		{in: "640x360+10", wantErr: true},
		{in: "axb", wantErr: true},
		{in: "-1x5", wantErr: true},
	} {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRect(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if !got.Empty() {
				back, err := ParseRect(got.String())
				require.NoError(t, err)
				assert.Equal(t, got, back)
			}
		})
	}
}
