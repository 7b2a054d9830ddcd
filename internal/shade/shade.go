// Package shade is a CPU rendition of the fade fragment shader.
//
// The headless demo uses it to preview frames when the GPU backend cannot
// read back rendered pixels. Channels are decoded from sRGB to linear,
// raised to gamma, encoded back and scaled by opacity, as fs_main does.
//
// Transfer functions go through lookup tables, replacing a math.Pow per
// channel with two array lookups and one pow per distinct gamma.
package shade

import (
	"image"
	"math"
)

// toLinear maps an sRGB byte to linear [0,1].
var toLinear [256]float32

// toSRGB maps linear [0,1], quantized to 12 bits, to an sRGB byte.
var toSRGB [4096]uint8

func init() {
	for i := range toLinear {
		toLinear[i] = float32(srgbToLinear(float64(i) / 255))
	}
	for i := range toSRGB {
		toSRGB[i] = quantize(linearToSRGB(float64(i) / 4095))
	}
}

func srgbToLinear(s float64) float64 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return math.Pow((s+0.055)/1.055, 2.4)
}

func linearToSRGB(l float64) float64 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*math.Pow(l, 1/2.4) - 0.055
}

// quantize clamps v to [0,1] and rounds it to a byte.
func quantize(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

// Table is the per-channel response of the fade shader for one
// opacity/gamma pair.
type Table [256]uint8

// NewTable evaluates linear_to_srgb(pow(srgb_to_linear(c), gamma)) * opacity
// for every channel value c.
func NewTable(opacity, gamma float32) *Table {
	var t Table
	o := float64(max(0, min(opacity, 1)))
	for i := range t {
		lin := math.Pow(float64(toLinear[i]), float64(gamma))
		idx := int(min(max(lin, 0), 1)*4095 + 0.5)
		s := float64(toSRGB[idx]) / 255
		t[i] = quantize(s * o)
	}
	return &t
}

// Fade writes the faded src into dst. Alpha is forced to opaque, as the
// shader outputs alpha 1. dst and src must have the same bounds; dst may
// be src.
func Fade(dst, src *image.RGBA, opacity, gamma float32) {
	t := NewTable(opacity, gamma)
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		si := src.PixOffset(b.Min.X, y)
		di := dst.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			s := src.Pix[si : si+4 : si+4]
			d := dst.Pix[di : di+4 : di+4]
			d[0], d[1], d[2], d[3] = t[s[0]], t[s[1]], t[s[2]], 0xff
			si += 4
			di += 4
		}
	}
}
