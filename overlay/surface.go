// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package overlay manages the compositor surface that shows the color fade
// above all other content.
//
// A Surface is created per fade session, kept upright in the display's
// natural orientation while the display rotates, and removed when the
// session ends. Apart from the rotation callback, a Surface is driven from
// a single goroutine.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/gogpu/colorfade/compositor"
	"github.com/gogpu/colorfade/display"
)

// Layer is the z-order of the overlay: above every normal surface.
const Layer int32 = 0x40000001

// Name is the debug name given to the compositor surface.
const Name = "ColorFade"

var (
	// ErrNoSurface is returned when an operation needs a surface that has
	// not been created or has already been destroyed.
	ErrNoSurface = errors.New("overlay: no surface")

	// ErrInvalidSize is returned when the surface dimensions are not positive.
	ErrInvalidSize = errors.New("overlay: invalid surface size")
)

// Surface is the overlay surface controller.
type Surface struct {
	comp      compositor.Compositor
	displays  display.Provider
	notifier  display.TransactionNotifier
	displayID int

	// mu guards handle against the asynchronous rotation callback.
	mu       sync.Mutex
	handle   compositor.Handle
	drawable compositor.Drawable

	unsubscribe func()

	kind    compositor.Kind
	width   int
	height  int
	secure  bool
	visible bool
	alpha   float32
}

// New returns a controller for the overlay on displayID. The notifier may
// be nil, in which case the surface does not follow rotation changes.
func New(comp compositor.Compositor, displays display.Provider, notifier display.TransactionNotifier, displayID int) *Surface {
	return &Surface{
		comp:      comp,
		displays:  displays,
		notifier:  notifier,
		displayID: displayID,
	}
}

// Create allocates the overlay surface sized to the display.
//
// Buffer surfaces get a client drawable for rendered frames; color surfaces
// are filled with opaque black. Layer stack, crop and the natural
// orientation transform are set in the same transaction that publishes the
// surface. Create is a no-op if the surface already exists.
func (s *Surface) Create(kind compositor.Kind, width, height, layerStack int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if s.Exists() {
		return nil
	}

	// The callback is live before the rotation is read, so a rotation
	// racing with creation is caught either here or by syncRotation.
	if s.notifier != nil && s.unsubscribe == nil {
		s.unsubscribe = s.notifier.Subscribe(s.onDisplayTransaction)
	}

	h, drawable, info, err := s.create(kind, width, height, layerStack)
	if err != nil {
		if s.unsubscribe != nil {
			s.unsubscribe()
			s.unsubscribe = nil
		}
		return err
	}

	s.mu.Lock()
	s.handle = h
	s.drawable = drawable
	s.kind = kind
	s.width = width
	s.height = height
	s.secure = false
	s.visible = false
	s.alpha = 0
	s.mu.Unlock()

	s.syncRotation(info)

	slogger().Debug("overlay: surface created",
		"kind", kind, "width", width, "height", height,
		"layerStack", layerStack)
	return nil
}

// create allocates the surface and applies the create transaction. It
// returns the display info the transform was computed from. mu is not
// held: the compositor may deliver rotation callbacks during Apply.
func (s *Surface) create(kind compositor.Kind, width, height, layerStack int) (compositor.Handle, compositor.Drawable, display.Info, error) {
	h, err := s.comp.CreateSurface(compositor.SurfaceOptions{
		Name:   Name,
		Kind:   kind,
		Width:  width,
		Height: height,
	})
	if err != nil {
		return nil, nil, display.Info{}, fmt.Errorf("create surface: %w", err)
	}

	var drawable compositor.Drawable
	if kind == compositor.KindBuffer {
		drawable, err = s.comp.CreateDrawable(h)
		if err != nil {
			s.remove(h, nil)
			return nil, nil, display.Info{}, fmt.Errorf("create drawable: %w", err)
		}
	}

	info, ok := s.displays.Info(s.displayID)
	err = compositor.Apply(s.comp, func(tx compositor.Transaction) {
		tx.SetLayerStack(h, layerStack)
		tx.SetCrop(h, image.Rect(0, 0, width, height))
		if kind == compositor.KindColor {
			tx.SetColor(h, color.Black)
		}
		if ok {
			NaturalTransform(info.Rotation, info.LogicalWidth, info.LogicalHeight).Apply(tx, h)
		}
	})
	if err != nil {
		s.remove(h, drawable)
		return nil, nil, display.Info{}, fmt.Errorf("apply create transaction: %w", err)
	}
	return h, drawable, info, nil
}

// syncRotation reapplies the natural orientation transform until it
// matches the display. A rotation that happened after the create
// transaction read applied, but before the handle was published, was
// skipped by the callback.
func (s *Surface) syncRotation(applied display.Info) {
	for {
		info, ok := s.displays.Info(s.displayID)
		if !ok || sameOrientation(info, applied) {
			return
		}
		s.mu.Lock()
		h := s.handle
		s.mu.Unlock()
		if h == nil {
			return
		}
		t := NaturalTransform(info.Rotation, info.LogicalWidth, info.LogicalHeight)
		if err := compositor.Apply(s.comp, func(tx compositor.Transaction) { t.Apply(tx, h) }); err != nil {
			slogger().Warn("overlay: rotation transform after create", "err", err)
			return
		}
		slogger().Debug("overlay: rotation changed during create", "rotation", info.Rotation)
		applied = info
	}
}

func sameOrientation(a, b display.Info) bool {
	return a.Rotation == b.Rotation &&
		a.LogicalWidth == b.LogicalWidth && a.LogicalHeight == b.LogicalHeight
}

// SetSecure marks the surface secure so its content is excluded from
// screenshots and recordings. Redundant calls issue no transaction.
func (s *Surface) SetSecure(secure bool) error {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return ErrNoSurface
	}
	if s.secure == secure {
		return nil
	}
	err := compositor.Apply(s.comp, func(tx compositor.Transaction) {
		tx.SetSecure(h, secure)
	})
	if err != nil {
		return fmt.Errorf("set secure: %w", err)
	}
	s.secure = secure
	return nil
}

// remove best-effort removes a half-created surface.
func (s *Surface) remove(h compositor.Handle, d compositor.Drawable) {
	err := compositor.Apply(s.comp, func(tx compositor.Transaction) {
		tx.Remove(h)
		if d != nil {
			d.Release()
		}
	})
	if err != nil {
		slogger().Warn("overlay: remove after failed create", "err", err)
	}
}

// onDisplayTransaction is the rotation callback. It runs on the
// notifier's goroutine.
func (s *Surface) onDisplayTransaction(displayID int, tx compositor.Transaction) {
	if displayID != s.displayID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return
	}
	info, ok := s.displays.Info(s.displayID)
	if !ok {
		return
	}
	s.setRotationTransformLocked(tx, info)
}

// SetRotationTransform records the natural orientation transform for info
// into tx. It does nothing once the surface is destroyed.
func (s *Surface) SetRotationTransform(tx compositor.Transaction, info display.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return
	}
	s.setRotationTransformLocked(tx, info)
}

func (s *Surface) setRotationTransformLocked(tx compositor.Transaction, info display.Info) {
	t := NaturalTransform(info.Rotation, info.LogicalWidth, info.LogicalHeight)
	t.Apply(tx, s.handle)
	slogger().Debug("overlay: rotation transform", "rotation", info.Rotation, "x", t.X, "y", t.Y)
}

// Show makes the surface visible with the given alpha. When the surface
// is already visible at that alpha no transaction is issued.
func (s *Surface) Show(alpha float32) error {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return ErrNoSurface
	}
	if s.visible && s.alpha == alpha {
		return nil
	}
	err := compositor.Apply(s.comp, func(tx compositor.Transaction) {
		tx.SetLayer(h, Layer)
		tx.SetAlpha(h, alpha)
		tx.Show(h)
	})
	if err != nil {
		return fmt.Errorf("show surface: %w", err)
	}
	s.visible = true
	s.alpha = alpha
	return nil
}

// Destroy unregisters the rotation callback, removes the surface and
// releases its drawable in one transaction. Safe to call when no surface
// exists.
func (s *Surface) Destroy() {
	// Unsubscribe outside mu: the notifier may wait for a callback that
	// is blocked on mu.
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return
	}
	h, d := s.handle, s.drawable
	err := compositor.Apply(s.comp, func(tx compositor.Transaction) {
		tx.Remove(h)
		if d != nil {
			d.Release()
		}
	})
	if err != nil {
		slogger().Warn("overlay: remove surface", "err", err)
	}
	s.handle = nil
	s.drawable = nil
	s.secure = false
	s.visible = false
	s.alpha = 0
	slogger().Debug("overlay: surface destroyed")
}

// Exists reports whether the surface is currently allocated.
func (s *Surface) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Drawable returns the client drawable of a buffer surface, or nil.
func (s *Surface) Drawable() compositor.Drawable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawable
}

// Kind returns the kind the surface was created with.
func (s *Surface) Kind() compositor.Kind { return s.kind }

// Secure reports whether the surface is marked secure.
func (s *Surface) Secure() bool { return s.secure }

// Visible reports whether the surface has been shown.
func (s *Surface) Visible() bool { return s.visible }

// Alpha returns the last alpha applied by Show.
func (s *Surface) Alpha() float32 { return s.alpha }

// Size returns the surface dimensions.
func (s *Surface) Size() (width, height int) { return s.width, s.height }
