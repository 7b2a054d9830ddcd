package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// formatUndefined is the zero TextureFormat: no preference.
var formatUndefined gputypes.TextureFormat

// colorFormats are the 8-bit RGBA formats the fade can render into, in
// order of preference.
var colorFormats = []gputypes.TextureFormat{
	gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatBGRA8Unorm,
}

// chooseColorFormat picks the render target format. A preferred format
// (typically a provider's surface format) wins when it is 8-bit RGBA;
// an undefined preference selects RGBA8Unorm.
func chooseColorFormat(preferred gputypes.TextureFormat) (gputypes.TextureFormat, error) {
	if preferred == formatUndefined {
		return colorFormats[0], nil
	}
	for _, f := range colorFormats {
		if f == preferred {
			return f, nil
		}
	}
	return formatUndefined, fmt.Errorf("%w: %v", ErrUnsupportedFormat, preferred)
}

// isBGRA reports whether pixels of f are stored blue first.
func isBGRA(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatBGRA8Unorm
}

// swizzleBGRA swaps the red and blue channels of packed 8-bit pixels in
// place.
func swizzleBGRA(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
