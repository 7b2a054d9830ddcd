// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package overlay

import (
	"github.com/gogpu/colorfade/compositor"
	"github.com/gogpu/colorfade/display"
)

// Transform places a surface drawn in natural orientation onto a rotated
// display. Matrix holds (dsdx, dtdx, dtdy, dsdy).
type Transform struct {
	X, Y   float32
	Matrix [4]float32
}

// NaturalTransform returns the position and matrix that keep a surface
// upright in the display's natural orientation for the given rotation.
// Width and height are the display's logical (rotated) dimensions.
func NaturalTransform(r display.Rotation, width, height int) Transform {
	w, h := float32(width), float32(height)
	switch r {
	case display.Rotation90:
		return Transform{X: 0, Y: h, Matrix: [4]float32{0, -1, 1, 0}}
	case display.Rotation180:
		return Transform{X: w, Y: h, Matrix: [4]float32{-1, 0, 0, -1}}
	case display.Rotation270:
		return Transform{X: w, Y: 0, Matrix: [4]float32{0, 1, -1, 0}}
	default:
		return Transform{X: 0, Y: 0, Matrix: [4]float32{1, 0, 0, 1}}
	}
}

// Apply records the transform for h into tx.
func (t Transform) Apply(tx compositor.Transaction, h compositor.Handle) {
	tx.SetPosition(h, t.X, t.Y)
	tx.SetMatrix(h, t.Matrix[0], t.Matrix[1], t.Matrix[2], t.Matrix[3])
}

// MapPoint maps a point in surface (natural) coordinates to display
// coordinates.
func (t Transform) MapPoint(x, y float32) (float32, float32) {
	m := t.Matrix
	return t.X + x*m[0] + y*m[2], t.Y + x*m[1] + y*m[3]
}
