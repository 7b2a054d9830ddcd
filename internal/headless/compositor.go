// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package headless provides in-memory implementations of the platform
// primitives the color fade consumes: a compositor, a display with
// rotation notifications and screenshots, and an accounting GPU device
// provider on the HAL noop backend.
//
// Everything here records what it was asked to do so tests and the demo
// command can inspect it.
package headless

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/gogpu/colorfade/compositor"
)

var (
	// ErrReleased is returned by Post on a released drawable.
	ErrReleased = errors.New("headless: drawable released")

	// ErrUnknownSurface is returned for handles the compositor did not
	// create or has removed.
	ErrUnknownSurface = errors.New("headless: unknown surface")
)

// SurfaceState is a snapshot of a compositor surface.
type SurfaceState struct {
	Name   string
	Kind   compositor.Kind
	Width  int
	Height int

	LayerStack int
	Layer      int32
	Crop       image.Rectangle
	X, Y       float32
	Matrix     [4]float32
	Alpha      float32
	Color      color.Color
	Secure     bool
	Visible    bool
	Removed    bool

	// Frames counts frames posted through the surface's drawable.
	Frames int

	// LastFrame is a copy of the latest posted frame.
	LastFrame *image.RGBA
}

type surface struct {
	id    int
	state SurfaceState
}

func (s *surface) Name() string { return s.state.Name }

// Compositor is an in-memory compositor.Compositor. It is safe for
// concurrent use.
type Compositor struct {
	mu       sync.Mutex
	nextID   int
	surfaces map[int]*surface
	removed  []SurfaceState
	applied  int
	log      []string

	// Fault injection. A non-nil error is returned by the next matching
	// call and then cleared.
	failCreate   error
	failDrawable error
	failApply    error
}

// NewCompositor returns an empty compositor.
func NewCompositor() *Compositor {
	return &Compositor{surfaces: make(map[int]*surface)}
}

// FailNextCreate makes the next CreateSurface return err.
func (c *Compositor) FailNextCreate(err error) {
	c.mu.Lock()
	c.failCreate = err
	c.mu.Unlock()
}

// FailNextDrawable makes the next CreateDrawable return err.
func (c *Compositor) FailNextDrawable(err error) {
	c.mu.Lock()
	c.failDrawable = err
	c.mu.Unlock()
}

// FailNextApply makes the next Transaction.Apply return err without
// applying anything.
func (c *Compositor) FailNextApply(err error) {
	c.mu.Lock()
	c.failApply = err
	c.mu.Unlock()
}

// CreateSurface implements compositor.Compositor.
func (c *Compositor) CreateSurface(opts compositor.SurfaceOptions) (compositor.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failCreate; err != nil {
		c.failCreate = nil
		return nil, err
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("headless: invalid surface size %dx%d", opts.Width, opts.Height)
	}
	c.nextID++
	s := &surface{
		id: c.nextID,
		state: SurfaceState{
			Name:   opts.Name,
			Kind:   opts.Kind,
			Width:  opts.Width,
			Height: opts.Height,
			Matrix: [4]float32{1, 0, 0, 1},
			Alpha:  1,
		},
	}
	c.surfaces[s.id] = s
	c.log = append(c.log, fmt.Sprintf("create %s %s %dx%d", opts.Name, opts.Kind, opts.Width, opts.Height))
	return s, nil
}

// CreateDrawable implements compositor.Compositor.
func (c *Compositor) CreateDrawable(h compositor.Handle) (compositor.Drawable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failDrawable; err != nil {
		c.failDrawable = nil
		return nil, err
	}
	s, ok := h.(*surface)
	if !ok || c.surfaces[s.id] != s {
		return nil, ErrUnknownSurface
	}
	if s.state.Kind != compositor.KindBuffer {
		return nil, fmt.Errorf("headless: %s surface has no drawable", s.state.Kind)
	}
	return &Drawable{comp: c, surface: s}, nil
}

// Begin implements compositor.Compositor.
func (c *Compositor) Begin() compositor.Transaction {
	return &transaction{comp: c}
}

// Transactions returns the number of transactions applied.
func (c *Compositor) Transactions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// Log returns the operations applied so far, one line each.
func (c *Compositor) Log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// Surface returns the state of the live surface called name.
func (c *Compositor) Surface(name string) (SurfaceState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.surfaces {
		if s.state.Name == name {
			return cloneState(s.state), true
		}
	}
	return SurfaceState{}, false
}

// Live returns the number of surfaces not yet removed.
func (c *Compositor) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.surfaces)
}

// Removed returns the final state of every removed surface.
func (c *Compositor) Removed() []SurfaceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SurfaceState, len(c.removed))
	for i, s := range c.removed {
		out[i] = cloneState(s)
	}
	return out
}

func cloneState(s SurfaceState) SurfaceState {
	if s.LastFrame != nil {
		f := *s.LastFrame
		f.Pix = append([]uint8(nil), s.LastFrame.Pix...)
		s.LastFrame = &f
	}
	return s
}

type op struct {
	name string
	h    compositor.Handle
	fn   func(*SurfaceState)
}

type transaction struct {
	comp *Compositor
	ops  []op
}

func (t *transaction) add(name string, h compositor.Handle, fn func(*SurfaceState)) {
	t.ops = append(t.ops, op{name: name, h: h, fn: fn})
}

func (t *transaction) SetLayerStack(h compositor.Handle, stack int) {
	t.add(fmt.Sprintf("layerStack %d", stack), h, func(s *SurfaceState) { s.LayerStack = stack })
}

func (t *transaction) SetLayer(h compositor.Handle, z int32) {
	t.add(fmt.Sprintf("layer %#x", z), h, func(s *SurfaceState) { s.Layer = z })
}

func (t *transaction) SetCrop(h compositor.Handle, r image.Rectangle) {
	t.add("crop "+r.String(), h, func(s *SurfaceState) { s.Crop = r })
}

func (t *transaction) SetPosition(h compositor.Handle, x, y float32) {
	t.add(fmt.Sprintf("position %g,%g", x, y), h, func(s *SurfaceState) { s.X, s.Y = x, y })
}

func (t *transaction) SetMatrix(h compositor.Handle, dsdx, dtdx, dtdy, dsdy float32) {
	t.add(fmt.Sprintf("matrix %g,%g,%g,%g", dsdx, dtdx, dtdy, dsdy), h, func(s *SurfaceState) {
		s.Matrix = [4]float32{dsdx, dtdx, dtdy, dsdy}
	})
}

func (t *transaction) SetAlpha(h compositor.Handle, alpha float32) {
	t.add(fmt.Sprintf("alpha %g", alpha), h, func(s *SurfaceState) { s.Alpha = alpha })
}

func (t *transaction) SetColor(h compositor.Handle, c color.Color) {
	t.add("color", h, func(s *SurfaceState) { s.Color = c })
}

func (t *transaction) SetSecure(h compositor.Handle, secure bool) {
	t.add(fmt.Sprintf("secure %t", secure), h, func(s *SurfaceState) { s.Secure = secure })
}

func (t *transaction) Show(h compositor.Handle) {
	t.add("show", h, func(s *SurfaceState) { s.Visible = true })
}

func (t *transaction) Hide(h compositor.Handle) {
	t.add("hide", h, func(s *SurfaceState) { s.Visible = false })
}

func (t *transaction) Remove(h compositor.Handle) {
	t.add("remove", h, func(s *SurfaceState) {
		s.Visible = false
		s.Removed = true
	})
}

// Apply applies all recorded operations atomically. Operations on
// unknown surfaces fail the whole transaction.
func (t *transaction) Apply() error {
	c := t.comp
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failApply; err != nil {
		c.failApply = nil
		return err
	}

	for _, o := range t.ops {
		s, ok := o.h.(*surface)
		if !ok || c.surfaces[s.id] != s {
			return fmt.Errorf("%w: %s", ErrUnknownSurface, o.name)
		}
	}
	for _, o := range t.ops {
		s := o.h.(*surface)
		o.fn(&s.state)
		c.log = append(c.log, s.state.Name+": "+o.name)
		if s.state.Removed {
			delete(c.surfaces, s.id)
			c.removed = append(c.removed, s.state)
		}
	}
	t.ops = nil
	c.applied++
	return nil
}

// Drawable is the client side of a headless buffer surface.
type Drawable struct {
	comp     *Compositor
	surface  *surface
	released bool
}

// Post implements compositor.Drawable.
func (d *Drawable) Post(img *image.RGBA) error {
	c := d.comp
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.released {
		return ErrReleased
	}
	frame := image.NewRGBA(img.Bounds())
	copy(frame.Pix, img.Pix)
	d.surface.state.Frames++
	d.surface.state.LastFrame = frame
	return nil
}

// Release implements compositor.Drawable.
func (d *Drawable) Release() {
	c := d.comp
	c.mu.Lock()
	d.released = true
	c.mu.Unlock()
}

// Released reports whether Release was called.
func (d *Drawable) Released() bool {
	d.comp.mu.Lock()
	defer d.comp.mu.Unlock()
	return d.released
}
