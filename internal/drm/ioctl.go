package drm

import (
	"unsafe"
)

// Request codes follow the generic Linux _IOC encoding used on arm, arm64
// and amd64. All argument structs below carry explicit padding so that
// their size matches the kernel's on 32-bit ARM, where Go only aligns
// uint64 to 4 bytes.
const (
	iocWrite = 1
	iocRead  = 2

	ioctlBase = 'd'
)

func ioc(dir uintptr, nr uintptr, size uintptr) uintptr {
	return dir<<30 | size<<16 | ioctlBase<<8 | nr
}

func iow(nr, size uintptr) uintptr  { return ioc(iocWrite, nr, size) }
func iowr(nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, nr, size) }

// struct drm_gem_close
type gemClose struct {
	Handle uint32
	_      uint32
}

// struct drm_set_client_cap
type setClientCap struct {
	Capability uint64
	Value      uint64
}

// struct drm_prime_handle
type primeHandle struct {
	Handle uint32
	Flags  uint32
	FD     int32
}

// struct drm_mode_card_res
type cardRes struct {
	FBIDPtr         uint64
	CrtcIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFBs        uint32
	CountCrtcs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

// struct drm_mode_crtc
type modeCrtc struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CrtcID           uint32
	FBID             uint32
	X                uint32
	Y                uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             ModeInfo
}

// struct drm_mode_get_encoder
type modeGetEncoder struct {
	EncoderID      uint32
	EncoderType    uint32
	CrtcID         uint32
	PossibleCrtcs  uint32
	PossibleClones uint32
}

// struct drm_mode_get_connector
type modeGetConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MMWidth         uint32
	MMHeight        uint32
	Subpixel        uint32
	_               uint32
}

// struct drm_mode_get_plane_res
type modeGetPlaneRes struct {
	PlaneIDPtr  uint64
	CountPlanes uint32
	_           uint32
}

// struct drm_mode_get_plane
type modeGetPlane struct {
	PlaneID          uint32
	CrtcID           uint32
	FBID             uint32
	PossibleCrtcs    uint32
	GammaSize        uint32
	CountFormatTypes uint32
	FormatTypePtr    uint64
}

// struct drm_mode_set_plane
type modeSetPlane struct {
	PlaneID uint32
	CrtcID  uint32
	FBID    uint32
	Flags   uint32
	CrtcX   int32
	CrtcY   int32
	CrtcW   uint32
	CrtcH   uint32
	// source values are 16.16 fixed point
	SrcX uint32
	SrcY uint32
	SrcH uint32
	SrcW uint32
}

// struct drm_mode_fb_cmd2
type modeFBCmd2 struct {
	FBID        uint32
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Flags       uint32
	Handles     [4]uint32
	Pitches     [4]uint32
	Offsets     [4]uint32
	_           uint32
	Modifier    [4]uint64
}

// struct drm_mode_create_dumb
type modeCreateDumb struct {
	Height uint32
	Width  uint32
	BPP    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// struct drm_mode_map_dumb
type modeMapDumb struct {
	Handle uint32
	_      uint32
	Offset uint64
}

// struct drm_mode_destroy_dumb
type modeDestroyDumb struct {
	Handle uint32
}

var (
	ioctlGemClose         = iow(0x09, unsafe.Sizeof(gemClose{}))
	ioctlSetClientCap     = iow(0x0d, unsafe.Sizeof(setClientCap{}))
	ioctlPrimeHandleToFD  = iowr(0x2d, unsafe.Sizeof(primeHandle{}))
	ioctlPrimeFDToHandle  = iowr(0x2e, unsafe.Sizeof(primeHandle{}))
	ioctlModeGetResources = iowr(0xa0, unsafe.Sizeof(cardRes{}))
	ioctlModeGetCrtc      = iowr(0xa1, unsafe.Sizeof(modeCrtc{}))
	ioctlModeGetEncoder   = iowr(0xa6, unsafe.Sizeof(modeGetEncoder{}))
	ioctlModeGetConnector = iowr(0xa7, unsafe.Sizeof(modeGetConnector{}))
	ioctlModeRmFB         = iowr(0xaf, unsafe.Sizeof(uint32(0)))
	ioctlModeCreateDumb   = iowr(0xb2, unsafe.Sizeof(modeCreateDumb{}))
	ioctlModeMapDumb      = iowr(0xb3, unsafe.Sizeof(modeMapDumb{}))
	ioctlModeDestroyDumb  = iowr(0xb4, unsafe.Sizeof(modeDestroyDumb{}))
	ioctlModeGetPlaneRes  = iowr(0xb5, unsafe.Sizeof(modeGetPlaneRes{}))
	ioctlModeGetPlane     = iowr(0xb6, unsafe.Sizeof(modeGetPlane{}))
	ioctlModeSetPlane     = iowr(0xb7, unsafe.Sizeof(modeSetPlane{}))
	ioctlModeAddFB2       = iowr(0xb8, unsafe.Sizeof(modeFBCmd2{}))
)
