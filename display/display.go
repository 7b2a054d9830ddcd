// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package display describes the display information consumed by the
// color fade: geometry in natural orientation, current rotation, and
// notification of display transform changes.
package display

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/colorfade/compositor"
)

// ErrDisconnected is returned by a Screenshotter when the display token
// cannot be resolved.
var ErrDisconnected = errors.New("display: disconnected")

// DefaultID is the identifier of the built-in display.
const DefaultID = 0

// Rotation is a display rotation in 90 degree steps.
type Rotation uint8

const (
	Rotation0 Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// Degrees returns the rotation angle in degrees.
func (r Rotation) Degrees() int {
	return int(r%4) * 90
}

// String returns the rotation as "<degrees>°".
func (r Rotation) String() string {
	if r > Rotation270 {
		return fmt.Sprintf("Rotation(%d)", uint8(r))
	}
	return fmt.Sprintf("%d°", r.Degrees())
}

// Swapped reports whether the rotation exchanges width and height.
func (r Rotation) Swapped() bool {
	return r == Rotation90 || r == Rotation270
}

// Info is a snapshot of a display's geometry.
type Info struct {
	// LayerStack is the compositor group the display shows.
	LayerStack int

	// NaturalWidth and NaturalHeight are the unrotated pixel dimensions.
	NaturalWidth  int
	NaturalHeight int

	// LogicalWidth and LogicalHeight are the dimensions as currently
	// rotated.
	LogicalWidth  int
	LogicalHeight int

	Rotation Rotation
}

// Valid reports whether the info describes a usable display.
func (i Info) Valid() bool {
	return i.NaturalWidth > 0 && i.NaturalHeight > 0
}

// Token is an opaque handle the screenshot primitive resolves to a
// physical display. A nil Token means the display is not connected.
type Token interface {
	// DisplayID returns the logical display the token was issued for.
	DisplayID() int
}

// Provider answers display queries. It replaces any global service
// lookup; the color fade receives it through its constructor.
type Provider interface {
	// Info returns the current info for the display, or false when the
	// display does not exist.
	Info(displayID int) (Info, bool)

	// Token returns the physical display token, or nil when the display
	// is disconnected.
	Token(displayID int) Token
}

// TransactionFunc is called whenever the transform of any display
// changes. Changes recorded into tx are applied together with the
// display change.
type TransactionFunc func(displayID int, tx compositor.Transaction)

// TransactionNotifier delivers display transform changes.
type TransactionNotifier interface {
	// Subscribe registers fn and returns a function that unregisters it.
	// The returned function is safe to call more than once.
	Subscribe(fn TransactionFunc) (unsubscribe func())
}

// Identity is the 4x4 identity texture transform.
var Identity = [16]float32{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// FlipVertical is the texture transform for images stored top row first.
// It maps texture coordinates with a bottom-left origin onto them.
var FlipVertical = [16]float32{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 1, 0,
	0, 1, 0, 1,
}

// Screenshot is one captured display frame.
type Screenshot struct {
	Image image.Image

	// Transform is a column-major 4x4 matrix mapping texture coordinates
	// (origin bottom-left) to sample coordinates of Image. It accounts for
	// the buffer's orientation and cropping.
	Transform [16]float32

	// Secure reports that the display showed secure content. Such content
	// is blacked out in Image and the overlay showing it must be secure.
	Secure bool
}

// ScreenshotConsumer receives frames produced by a Screenshotter.
type ScreenshotConsumer interface {
	QueueScreenshot(s Screenshot)
}

// Screenshotter is the display screenshot primitive.
type Screenshotter interface {
	// Screenshot copies the current contents of the display identified by
	// token into dst. It returns ErrDisconnected when the token cannot be
	// resolved.
	Screenshot(token Token, dst ScreenshotConsumer) error
}
