package avdecode

import (
	"context"
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// v4l2m2mDecoders are the stateful V4L2 memory-to-memory decoders. They
// need no hardware device context and output drm_prime directly when asked
// to.
var v4l2m2mDecoders = map[astiav.CodecID]string{
	astiav.CodecIDH264: "h264_v4l2m2m",
	astiav.CodecIDHevc: "hevc_v4l2m2m",
}

// hardwareDeviceTypeFromString resolves a libav hardware device type name
// such as "drm", "vaapi" or "vulkan".
func hardwareDeviceTypeFromString(s string) (astiav.HardwareDeviceType, error) {
	t := astiav.FindHardwareDeviceTypeByName(strings.ToLower(strings.TrimSpace(s)))
	if t == astiav.HardwareDeviceTypeNone {
		return t, fmt.Errorf("unknown hardware device type %q", s)
	}
	return t, nil
}

// findDecoder returns the decoder named in cfg, the V4L2 decoder for the
// codec if the system has one, or libavcodec's default decoder.
func findDecoder(ctx context.Context, id astiav.CodecID, cfg Config) (*astiav.Codec, error) {
	if cfg.DecoderName != "" {
		c := astiav.FindDecoderByName(cfg.DecoderName)
		if c == nil {
			return nil, fmt.Errorf("decoder %q not found", cfg.DecoderName)
		}
		return c, nil
	}
	if name, ok := v4l2m2mDecoders[id]; ok {
		if c := astiav.FindDecoderByName(name); c != nil {
			return c, nil
		}
		logger.Debugf(ctx, "%s not available, falling back to the default %s decoder", name, id)
	}
	c := astiav.FindDecoder(id)
	if c == nil {
		return nil, fmt.Errorf("no decoder for %s", id)
	}
	return c, nil
}

func isV4L2M2M(c *astiav.Codec) bool {
	return strings.HasSuffix(c.Name(), "_v4l2m2m")
}

// hardwarePixelFormat picks the pixel format the decoder produces when
// driven through a device context of type t.
func hardwarePixelFormat(c *astiav.Codec, t astiav.HardwareDeviceType) (astiav.PixelFormat, error) {
	for _, cfg := range c.HardwareConfigs() {
		if cfg.HardwareDeviceType() != t {
			continue
		}
		if !cfg.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx) {
			continue
		}
		return cfg.PixelFormat(), nil
	}
	return astiav.PixelFormatNone, fmt.Errorf("decoder %s does not support %s", c.Name(), t)
}
