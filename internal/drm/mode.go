package drm

import (
	"bytes"
	"fmt"
	"unsafe"
)

// Connector states as reported in drm_mode_get_connector.connection.
const (
	Connected         = 1
	Disconnected      = 2
	UnknownConnection = 3
)

// ModeInfo mirrors struct drm_mode_modeinfo.
type ModeInfo struct {
	Clock      uint32
	Hdisplay   uint16
	HsyncStart uint16
	HsyncEnd   uint16
	Htotal     uint16
	Hskew      uint16
	Vdisplay   uint16
	VsyncStart uint16
	VsyncEnd   uint16
	Vtotal     uint16
	Vscan      uint16
	Vrefresh   uint32
	Flags      uint32
	Type       uint32
	RawName    [32]byte
}

func (m ModeInfo) Name() string {
	name, _, _ := bytes.Cut(m.RawName[:], []byte{0})
	return string(name)
}

func (m ModeInfo) String() string {
	return fmt.Sprintf("%s@%d", m.Name(), m.Vrefresh)
}

type Resources struct {
	Crtcs      []uint32
	Connectors []uint32
	Encoders   []uint32

	MinWidth, MaxWidth   uint32
	MinHeight, MaxHeight uint32
}

type Connector struct {
	ID         uint32
	EncoderID  uint32
	Type       uint32
	TypeID     uint32
	Connection uint32
	Modes      []ModeInfo
	Encoders   []uint32
}

type Encoder struct {
	ID             uint32
	Type           uint32
	CrtcID         uint32
	PossibleCrtcs  uint32
	PossibleClones uint32
}

type Crtc struct {
	ID        uint32
	FBID      uint32
	X, Y      uint32
	ModeValid bool
	Mode      ModeInfo
}

type Plane struct {
	ID            uint32
	CrtcID        uint32
	FBID          uint32
	PossibleCrtcs uint32
	Formats       []Format
}

// ptr returns the address of the first element of s as the __u64 the kernel
// expects in its *_ptr fields.
func ptr[T any](s []T) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

func (d *Device) Resources() (*Resources, error) {
	// The first call only reports the counts, the second fills the arrays.
	var res cardRes
	if err := d.ioctl("DRM_IOCTL_MODE_GETRESOURCES", ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}
	// The frame buffer list is not needed, skip it.
	res.CountFBs = 0
	crtcs := make([]uint32, res.CountCrtcs)
	connectors := make([]uint32, res.CountConnectors)
	encoders := make([]uint32, res.CountEncoders)
	res.CrtcIDPtr = ptr(crtcs)
	res.ConnectorIDPtr = ptr(connectors)
	res.EncoderIDPtr = ptr(encoders)
	if err := d.ioctl("DRM_IOCTL_MODE_GETRESOURCES", ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}
	// TODO: retry when a hotplug changed the counts in between the two calls.
	return &Resources{
		Crtcs:      crtcs[:min(len(crtcs), int(res.CountCrtcs))],
		Connectors: connectors[:min(len(connectors), int(res.CountConnectors))],
		Encoders:   encoders[:min(len(encoders), int(res.CountEncoders))],
		MinWidth:   res.MinWidth,
		MaxWidth:   res.MaxWidth,
		MinHeight:  res.MinHeight,
		MaxHeight:  res.MaxHeight,
	}, nil
}

func (d *Device) Connector(id uint32) (*Connector, error) {
	conn := modeGetConnector{ConnectorID: id}
	if err := d.ioctl("DRM_IOCTL_MODE_GETCONNECTOR", ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
		return nil, fmt.Errorf("connector %d: %w", id, err)
	}
	modes := make([]ModeInfo, conn.CountModes)
	encoders := make([]uint32, conn.CountEncoders)
	conn.ModesPtr = ptr(modes)
	conn.EncodersPtr = ptr(encoders)
	conn.CountProps = 0
	conn.PropsPtr = 0
	conn.PropValuesPtr = 0
	if err := d.ioctl("DRM_IOCTL_MODE_GETCONNECTOR", ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
		return nil, fmt.Errorf("connector %d: %w", id, err)
	}
	return &Connector{
		ID:         conn.ConnectorID,
		EncoderID:  conn.EncoderID,
		Type:       conn.ConnectorType,
		TypeID:     conn.ConnectorTypeID,
		Connection: conn.Connection,
		Modes:      modes[:min(len(modes), int(conn.CountModes))],
		Encoders:   encoders[:min(len(encoders), int(conn.CountEncoders))],
	}, nil
}

func (d *Device) Encoder(id uint32) (*Encoder, error) {
	enc := modeGetEncoder{EncoderID: id}
	if err := d.ioctl("DRM_IOCTL_MODE_GETENCODER", ioctlModeGetEncoder, unsafe.Pointer(&enc)); err != nil {
		return nil, fmt.Errorf("encoder %d: %w", id, err)
	}
	return &Encoder{
		ID:             enc.EncoderID,
		Type:           enc.EncoderType,
		CrtcID:         enc.CrtcID,
		PossibleCrtcs:  enc.PossibleCrtcs,
		PossibleClones: enc.PossibleClones,
	}, nil
}

func (d *Device) Crtc(id uint32) (*Crtc, error) {
	crtc := modeCrtc{CrtcID: id}
	if err := d.ioctl("DRM_IOCTL_MODE_GETCRTC", ioctlModeGetCrtc, unsafe.Pointer(&crtc)); err != nil {
		return nil, fmt.Errorf("crtc %d: %w", id, err)
	}
	return &Crtc{
		ID:        crtc.CrtcID,
		FBID:      crtc.FBID,
		X:         crtc.X,
		Y:         crtc.Y,
		ModeValid: crtc.ModeValid != 0,
		Mode:      crtc.Mode,
	}, nil
}

// Planes lists all plane ids. Primary and cursor planes are only included
// after enabling ClientCapUniversalPlanes.
func (d *Device) Planes() ([]uint32, error) {
	var res modeGetPlaneRes
	if err := d.ioctl("DRM_IOCTL_MODE_GETPLANERESOURCES", ioctlModeGetPlaneRes, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}
	ids := make([]uint32, res.CountPlanes)
	res.PlaneIDPtr = ptr(ids)
	if err := d.ioctl("DRM_IOCTL_MODE_GETPLANERESOURCES", ioctlModeGetPlaneRes, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}
	return ids[:min(len(ids), int(res.CountPlanes))], nil
}

func (d *Device) Plane(id uint32) (*Plane, error) {
	p := modeGetPlane{PlaneID: id}
	if err := d.ioctl("DRM_IOCTL_MODE_GETPLANE", ioctlModeGetPlane, unsafe.Pointer(&p)); err != nil {
		return nil, fmt.Errorf("plane %d: %w", id, err)
	}
	formats := make([]Format, p.CountFormatTypes)
	p.FormatTypePtr = ptr(formats)
	if err := d.ioctl("DRM_IOCTL_MODE_GETPLANE", ioctlModeGetPlane, unsafe.Pointer(&p)); err != nil {
		return nil, fmt.Errorf("plane %d: %w", id, err)
	}
	return &Plane{
		ID:            p.PlaneID,
		CrtcID:        p.CrtcID,
		FBID:          p.FBID,
		PossibleCrtcs: p.PossibleCrtcs,
		Formats:       formats[:min(len(formats), int(p.CountFormatTypes))],
	}, nil
}

// SetPlane describes a DRM_IOCTL_MODE_SETPLANE request. A zero FBID
// disables the plane.
type SetPlane struct {
	PlaneID, CrtcID, FBID uint32

	CrtcX, CrtcY int32
	CrtcW, CrtcH uint32

	// Source rectangle in 16.16 fixed point.
	SrcX, SrcY, SrcW, SrcH uint32
}

func (d *Device) SetPlane(sp SetPlane) error {
	arg := modeSetPlane{
		PlaneID: sp.PlaneID,
		CrtcID:  sp.CrtcID,
		FBID:    sp.FBID,
		CrtcX:   sp.CrtcX,
		CrtcY:   sp.CrtcY,
		CrtcW:   sp.CrtcW,
		CrtcH:   sp.CrtcH,
		SrcX:    sp.SrcX,
		SrcY:    sp.SrcY,
		SrcW:    sp.SrcW,
		SrcH:    sp.SrcH,
	}
	return d.ioctl("DRM_IOCTL_MODE_SETPLANE", ioctlModeSetPlane, unsafe.Pointer(&arg))
}
