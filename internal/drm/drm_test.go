package drm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructSizes(t *testing.T) {
	// Sizes of the kernel structs on every architecture we run on.
	for _, tc := range []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"drm_gem_close", unsafe.Sizeof(gemClose{}), 8},
		{"drm_prime_handle", unsafe.Sizeof(primeHandle{}), 12},
		{"drm_mode_card_res", unsafe.Sizeof(cardRes{}), 64},
		{"drm_mode_modeinfo", unsafe.Sizeof(ModeInfo{}), 68},
		{"drm_mode_crtc", unsafe.Sizeof(modeCrtc{}), 104},
		{"drm_mode_get_encoder", unsafe.Sizeof(modeGetEncoder{}), 20},
		{"drm_mode_get_connector", unsafe.Sizeof(modeGetConnector{}), 80},
		{"drm_mode_get_plane_res", unsafe.Sizeof(modeGetPlaneRes{}), 16},
		{"drm_mode_get_plane", unsafe.Sizeof(modeGetPlane{}), 32},
		{"drm_mode_set_plane", unsafe.Sizeof(modeSetPlane{}), 48},
		{"drm_mode_fb_cmd2", unsafe.Sizeof(modeFBCmd2{}), 104},
		{"drm_mode_create_dumb", unsafe.Sizeof(modeCreateDumb{}), 32},
		{"drm_mode_map_dumb", unsafe.Sizeof(modeMapDumb{}), 16},
	} {
		assert.Equal(t, tc.want, tc.got, tc.name)
	}
	assert.Equal(t, uintptr(72), unsafe.Offsetof(modeFBCmd2{}.Modifier))
}

func TestRequestCodes(t *testing.T) {
	// Values as printed by a C program including <drm/drm.h>.
	for _, tc := range []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"DRM_IOCTL_GEM_CLOSE", ioctlGemClose, 0x40086409},
		{"DRM_IOCTL_SET_CLIENT_CAP", ioctlSetClientCap, 0x4010640d},
		{"DRM_IOCTL_PRIME_HANDLE_TO_FD", ioctlPrimeHandleToFD, 0xc00c642d},
		{"DRM_IOCTL_PRIME_FD_TO_HANDLE", ioctlPrimeFDToHandle, 0xc00c642e},
		{"DRM_IOCTL_MODE_GETRESOURCES", ioctlModeGetResources, 0xc04064a0},
		{"DRM_IOCTL_MODE_GETCRTC", ioctlModeGetCrtc, 0xc06864a1},
		{"DRM_IOCTL_MODE_GETENCODER", ioctlModeGetEncoder, 0xc01464a6},
		{"DRM_IOCTL_MODE_GETCONNECTOR", ioctlModeGetConnector, 0xc05064a7},
		{"DRM_IOCTL_MODE_RMFB", ioctlModeRmFB, 0xc00464af},
		{"DRM_IOCTL_MODE_CREATE_DUMB", ioctlModeCreateDumb, 0xc02064b2},
		{"DRM_IOCTL_MODE_MAP_DUMB", ioctlModeMapDumb, 0xc01064b3},
		{"DRM_IOCTL_MODE_DESTROY_DUMB", ioctlModeDestroyDumb, 0xc00464b4},
		{"DRM_IOCTL_MODE_GETPLANERESOURCES", ioctlModeGetPlaneRes, 0xc01064b5},
		{"DRM_IOCTL_MODE_GETPLANE", ioctlModeGetPlane, 0xc02064b6},
		{"DRM_IOCTL_MODE_SETPLANE", ioctlModeSetPlane, 0xc03064b7},
		{"DRM_IOCTL_MODE_ADDFB2", ioctlModeAddFB2, 0xc06864b8},
	} {
		assert.Equalf(t, tc.want, tc.got, "%s: got %#x", tc.name, tc.got)
	}
}

func TestFormatString(t *testing.T) {
	require.Equal(t, "NV12", FormatNV12.String())
	require.Equal(t, "XR24", FormatXRGB8888.String())
	require.Equal(t, "RG16", FormatRGB565.String())
	require.Equal(t, "<none>", Format(0).String())
	require.Equal(t, "0x00000001", Format(1).String())
	require.Equal(t, "R8", FormatR8.String())
	require.Equal(t, FormatNV12, FourCC('N', 'V', '1', '2'))
}

func TestModeName(t *testing.T) {
	var m ModeInfo
	copy(m.RawName[:], "1920x1080")
	m.Vrefresh = 60
	require.Equal(t, "1920x1080", m.Name())
	require.Equal(t, "1920x1080@60", m.String())
}
