package display

import (
	"fmt"

	"github.com/gokrazy/drmprime/internal/drm"
)

// modeObjects is the read-only part of the KMS API used to pick an output.
type modeObjects interface {
	Resources() (*drm.Resources, error)
	Connector(id uint32) (*drm.Connector, error)
	Encoder(id uint32) (*drm.Encoder, error)
	Crtc(id uint32) (*drm.Crtc, error)
	Planes() ([]uint32, error)
	Plane(id uint32) (*drm.Plane, error)
}

type selection struct {
	Connector uint32
	Crtc      *drm.Crtc
	CrtcIndex int
	Plane     *drm.Plane
}

// selectOutput picks the screen-th connected connector, the CRTC currently
// driving it and the planeNumber-th plane which can be attached to that
// CRTC.
func selectOutput(m modeObjects, screen, planeNumber int) (*selection, error) {
	res, err := m.Resources()
	if err != nil {
		return nil, err
	}

	var conn *drm.Connector
	n := 0
	for _, id := range res.Connectors {
		c, err := m.Connector(id)
		if err != nil {
			return nil, err
		}
		if c.Connection != drm.Connected || len(c.Modes) == 0 {
			continue
		}
		if n == screen {
			conn = c
			break
		}
		n++
	}
	if conn == nil {
		return nil, fmt.Errorf("screen %d not found (%d connected)", screen, n)
	}

	crtcID, err := activeCrtc(m, conn)
	if err != nil {
		return nil, err
	}
	crtcIndex := -1
	for idx, id := range res.Crtcs {
		if id == crtcID {
			crtcIndex = idx
			break
		}
	}
	if crtcIndex < 0 {
		return nil, fmt.Errorf("crtc %d not listed in resources", crtcID)
	}
	crtc, err := m.Crtc(crtcID)
	if err != nil {
		return nil, err
	}
	if !crtc.ModeValid {
		return nil, fmt.Errorf("crtc %d has no active mode", crtcID)
	}

	planeIDs, err := m.Planes()
	if err != nil {
		return nil, err
	}
	var plane *drm.Plane
	n = 0
	for _, id := range planeIDs {
		p, err := m.Plane(id)
		if err != nil {
			return nil, err
		}
		if p.PossibleCrtcs&(1<<uint(crtcIndex)) == 0 {
			continue
		}
		if n == planeNumber {
			plane = p
			break
		}
		n++
	}
	if plane == nil {
		return nil, fmt.Errorf("plane %d not found for crtc %d (%d usable)", planeNumber, crtcID, n)
	}

	return &selection{
		Connector: conn.ID,
		Crtc:      crtc,
		CrtcIndex: crtcIndex,
		Plane:     plane,
	}, nil
}

func activeCrtc(m modeObjects, conn *drm.Connector) (uint32, error) {
	encoders := conn.Encoders
	if conn.EncoderID != 0 {
		encoders = append([]uint32{conn.EncoderID}, encoders...)
	}
	for _, id := range encoders {
		enc, err := m.Encoder(id)
		if err != nil {
			return 0, err
		}
		if enc.CrtcID != 0 {
			return enc.CrtcID, nil
		}
	}
	return 0, fmt.Errorf("connector %d is not driven by any crtc", conn.ID)
}
