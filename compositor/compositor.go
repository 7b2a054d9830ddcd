// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package compositor declares the compositor primitive consumed by the
// overlay and display packages.
//
// A compositor owns surfaces that are stacked above (or below) other
// content. All attribute changes are batched into a Transaction and become
// visible atomically when the transaction is applied. Implementations are
// supplied by the platform; package internal/headless provides an
// in-memory one.
package compositor

import (
	"image"
	"image/color"
)

// Handle identifies a surface owned by a Compositor.
type Handle interface {
	// Name returns the debug name the surface was created with.
	Name() string
}

// Kind selects how a surface's content is produced.
type Kind uint8

const (
	// KindBuffer surfaces display frames posted through a Drawable.
	KindBuffer Kind = iota

	// KindColor surfaces are filled with a single solid colour.
	KindColor
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindColor:
		return "color"
	default:
		return "unknown"
	}
}

// SurfaceOptions describes a surface to create.
type SurfaceOptions struct {
	Name   string
	Kind   Kind
	Width  int
	Height int
}

// Drawable is the client side of a buffer surface. Frames posted to it
// become the surface content on the next composition.
type Drawable interface {
	// Post queues img as the next frame. The image is not retained.
	Post(img *image.RGBA) error

	// Release detaches the drawable from its surface. Further Post calls
	// fail.
	Release()
}

// Transaction batches surface changes. Setters only record; nothing is
// visible until Apply.
type Transaction interface {
	SetLayerStack(h Handle, stack int)
	SetLayer(h Handle, z int32)
	SetCrop(h Handle, r image.Rectangle)
	SetPosition(h Handle, x, y float32)

	// SetMatrix sets the 2x2 transform in (dsdx, dtdx, dtdy, dsdy) order.
	SetMatrix(h Handle, dsdx, dtdx, dtdy, dsdy float32)
	SetAlpha(h Handle, alpha float32)
	SetColor(h Handle, c color.Color)

	// SetSecure excludes the surface from screenshots and recordings.
	SetSecure(h Handle, secure bool)
	Show(h Handle)
	Hide(h Handle)

	// Remove detaches the surface from the composition tree and releases it.
	Remove(h Handle)

	// Apply commits every recorded change atomically.
	Apply() error
}

// Compositor creates surfaces, drawables and transactions.
type Compositor interface {
	CreateSurface(opts SurfaceOptions) (Handle, error)

	// CreateDrawable binds a client drawable to a buffer surface.
	CreateDrawable(h Handle) (Drawable, error)

	// Begin opens a new transaction.
	Begin() Transaction
}

// Apply runs fn against a fresh transaction and commits it. The
// transaction is always applied, even when fn records nothing.
func Apply(c Compositor, fn func(tx Transaction)) error {
	tx := c.Begin()
	fn(tx)
	return tx.Apply()
}
