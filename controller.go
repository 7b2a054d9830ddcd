package colorfade

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/colorfade/compositor"
	"github.com/gogpu/colorfade/display"
	"github.com/gogpu/colorfade/gpu"
	"github.com/gogpu/colorfade/overlay"
)

// Controller runs fade sessions on one display.
//
// A session starts with Prepare, renders any number of frames with Draw
// and ends with Dismiss. Every operation reports failure as false; the
// cause is logged. A Controller is not safe for concurrent use.
type Controller struct {
	opts     options
	displays display.Provider

	overlay *overlay.Surface
	gpu     *gpu.Context
	capture *gpu.Capture
	program *gpu.FadeProgram

	// Session state, valid between Prepare and Dismiss.
	mode             Mode
	info             display.Info
	frame            *gpu.CapturedFrame
	proj             [16]float32
	resourcesCreated bool
	prepared         bool
	closed           bool

	warmUpFrames int
	frames       int
}

// New returns a Controller for the configured display (display.DefaultID
// unless WithDisplayID is given). comp creates the overlay surface,
// displays answers geometry queries, notifier reports rotation changes
// and shooter captures the screen. notifier may be nil.
func New(comp compositor.Compositor, displays display.Provider, notifier display.TransactionNotifier, shooter display.Screenshotter, opts ...Option) *Controller {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Controller{
		opts:     o,
		displays: displays,
		overlay:  overlay.New(comp, displays, notifier, o.displayID),
		gpu:      gpu.NewContext(o.gpuOptions...),
		capture:  gpu.NewCapture(shooter),
		program:  gpu.NewFadeProgram(o.loader),
	}
}

func (c *Controller) log() *slog.Logger {
	if c.opts.logger != nil {
		return c.opts.logger
	}
	return Logger()
}

// Prepare starts a session in the given mode and reports whether it
// succeeded.
//
// The overlay surface is created first. In Fade mode nothing else is
// needed. Rendered modes then create the GPU context and its rendering
// surface, capture the screen, load the fade program and upload the quad.
// WarmUp finally renders DejankFrames frames at full level. Any failure
// rolls the whole session back.
//
// Calling Prepare on a prepared Controller dismisses the running session
// first.
func (c *Controller) Prepare(mode Mode) bool {
	if c.closed {
		c.log().Warn("colorfade: prepare", "err", ErrClosed)
		return false
	}
	if !mode.valid() {
		c.log().Warn("colorfade: prepare", "mode", mode, "err", ErrInvalidMode)
		return false
	}
	if c.prepared {
		c.log().Debug("colorfade: prepare while prepared, dismissing previous session")
		c.Dismiss()
	}

	if err := c.prepare(mode); err != nil {
		c.log().Warn("colorfade: prepare failed", "mode", mode, "display", c.opts.displayID, "err", err)
		c.Dismiss()
		return false
	}
	c.prepared = true

	if mode == WarmUp {
		for range DejankFrames {
			if !c.Draw(1) {
				c.log().Warn("colorfade: warm-up frame failed", "frame", c.warmUpFrames)
				c.Dismiss()
				return false
			}
			c.warmUpFrames++
		}
	}

	c.log().Info("colorfade: prepared",
		"mode", mode, "display", c.opts.displayID,
		"width", c.info.NaturalWidth, "height", c.info.NaturalHeight,
		"rotation", c.info.Rotation)
	return true
}

func (c *Controller) prepare(mode Mode) error {
	info, ok := c.displays.Info(c.opts.displayID)
	if !ok || !info.Valid() {
		return fmt.Errorf("%w: %d", ErrNoDisplay, c.opts.displayID)
	}
	c.mode = mode
	c.info = info
	c.warmUpFrames = 0
	c.frames = 0

	kind := compositor.KindColor
	if mode.rendered() {
		kind = compositor.KindBuffer
	}
	w, h := info.NaturalWidth, info.NaturalHeight
	if err := c.overlay.Create(kind, w, h, info.LayerStack); err != nil {
		return fmt.Errorf("create overlay: %w", err)
	}
	if !mode.rendered() {
		return nil
	}

	c.resourcesCreated = true
	if err := c.gpu.Create(); err != nil {
		return fmt.Errorf("create context: %w", err)
	}
	if err := c.gpu.CreateSurface(c.overlay.Drawable(), w, h); err != nil {
		return fmt.Errorf("create rendering surface: %w", err)
	}

	err := c.attached(func(b *gpu.Binding) error {
		frame, err := c.capture.Capture(b, c.displays.Token(c.opts.displayID), w, h)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		c.frame = frame
		if err := c.program.Load(b); err != nil {
			return fmt.Errorf("load fade program: %w", err)
		}
		if err := c.program.UploadGeometry(b, w, h); err != nil {
			return fmt.Errorf("upload geometry: %w", err)
		}
		return b.CheckErrors("prepare")
	})
	if err != nil {
		return err
	}

	// Overlay transactions only after detach.
	if c.frame.Secure {
		if err := c.overlay.SetSecure(true); err != nil {
			return err
		}
	}
	c.proj = gpu.Projection(w, h)
	return nil
}

// attached runs fn with the GPU context attached to the calling goroutine
// and always detaches afterwards.
func (c *Controller) attached(fn func(b *gpu.Binding) error) error {
	b, err := c.gpu.Attach()
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	defer b.Detach()
	return fn(b)
}

// Draw renders the frame for level, where 0 is fully faded to black and 1
// shows the captured screen unchanged. Levels outside [0, 1] are clamped.
//
// In Fade mode Draw only sets the overlay alpha to 1-level. Otherwise it
// renders one frame through the fade program, swaps it onto the overlay
// and shows the overlay at full alpha.
//
// Draw returns false when the Controller is not prepared or the frame
// could not be produced. The session should be dismissed after a failure.
func (c *Controller) Draw(level float64) bool {
	if !c.prepared {
		c.log().Debug("colorfade: draw", "err", ErrNotPrepared)
		return false
	}
	level = clampLevel(level)

	if !c.mode.rendered() {
		if err := c.overlay.Show(float32(1 - level)); err != nil {
			c.log().Warn("colorfade: draw", "level", level, "err", err)
			return false
		}
		return true
	}

	err := c.attached(func(b *gpu.Binding) error {
		b.Clear(gpu.OpaqueBlack)
		opacity, gamma := FadeCurve(level)
		if err := c.program.DrawFrame(b, float32(opacity), float32(gamma), c.frame, c.proj); err != nil {
			return err
		}
		if err := b.CheckErrors("drawFrame"); err != nil {
			return err
		}
		return b.Swap()
	})
	if err != nil {
		c.log().Warn("colorfade: draw failed", "level", level, "err", err)
		return false
	}
	c.frames++

	if err := c.overlay.Show(1); err != nil {
		c.log().Warn("colorfade: draw", "level", level, "err", err)
		return false
	}
	return true
}

// DismissResources releases the GPU resources of the session: the
// screenshot texture, the fade program, the quad buffers and the
// rendering surface. The overlay surface and the GPU device are kept. It
// does nothing when no resources were created.
func (c *Controller) DismissResources() {
	if !c.resourcesCreated {
		return
	}

	// Every resource but the rendering surface needs a binding to be
	// created, so an attach failure means only the surface can exist.
	err := c.attached(func(b *gpu.Binding) error {
		c.capture.Destroy(b)
		c.program.DestroyProgram(b)
		c.program.DestroyBuffers(b)
		return b.Flush()
	})
	if err != nil && !errors.Is(err, gpu.ErrNoSurface) && !errors.Is(err, gpu.ErrNoContext) {
		c.log().Warn("colorfade: dismiss resources", "err", err)
	}
	c.gpu.DestroySurface()

	c.frame = nil
	c.resourcesCreated = false
	c.log().Debug("colorfade: resources dismissed")
}

// Dismiss ends the session: GPU resources are released, then the overlay
// surface is removed. Dismiss is idempotent and also cleans up after a
// failed Prepare.
func (c *Controller) Dismiss() {
	c.DismissResources()
	wasPrepared := c.prepared || c.overlay.Exists()
	c.overlay.Destroy()
	c.prepared = false
	if wasPrepared {
		c.log().Info("colorfade: dismissed", "display", c.opts.displayID, "frames", c.frames)
	}
}

// Close dismisses any session and releases the GPU device. The Controller
// cannot be prepared again.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.Dismiss()
	c.gpu.Destroy()
	c.closed = true
}

// Prepared reports whether a session is running.
func (c *Controller) Prepared() bool { return c.prepared }

// Mode returns the mode of the current or last session.
func (c *Controller) Mode() Mode { return c.mode }

// Stats is a snapshot of the session's resources.
type Stats struct {
	Prepared         bool
	ResourcesCreated bool

	// Texture reports a live screenshot texture.
	Texture bool
	// Program reports a loaded fade program.
	Program bool
	// Buffers is the number of live quad vertex buffers.
	Buffers int
	// Surface reports a live rendering surface.
	Surface bool

	OverlayExists  bool
	OverlayVisible bool
	OverlayAlpha   float32
	OverlaySecure  bool

	// WarmUpFrames counts the dejank frames rendered by Prepare.
	WarmUpFrames int
	// Frames counts frames swapped onto the overlay, warm-up included.
	Frames int
}

// Live reports whether any GPU resource of the session is still held.
func (s Stats) Live() bool {
	return s.Texture || s.Program || s.Buffers > 0 || s.Surface
}

// Stats returns the current resource snapshot.
func (c *Controller) Stats() Stats {
	return Stats{
		Prepared:         c.prepared,
		ResourcesCreated: c.resourcesCreated,
		Texture:          c.capture.HasTexture(),
		Program:          c.program.Loaded(),
		Buffers:          c.program.BufferCount(),
		Surface:          c.gpu.HasSurface(),
		OverlayExists:    c.overlay.Exists(),
		OverlayVisible:   c.overlay.Visible(),
		OverlayAlpha:     c.overlay.Alpha(),
		OverlaySecure:    c.overlay.Secure(),
		WarmUpFrames:     c.warmUpFrames,
		Frames:           c.frames,
	}
}
