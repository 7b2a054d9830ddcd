// Package colorfade implements the full-screen fade shown when a display
// powers on or off.
//
// # Overview
//
// A Controller captures the current screen content into a GPU texture and
// renders a faded, gamma-adjusted version of it onto an overlay surface
// composited above everything else. The caller drives the animation: the
// Controller exposes a pure mapping from a fade level in [0, 1] to a
// rendered frame and never runs a clock of its own.
//
// # Quick Start
//
//	cf := colorfade.New(comp, displays, displays, displays,
//	    colorfade.WithDisplayID(display.DefaultID))
//	defer cf.Close()
//
//	if !cf.Prepare(colorfade.CoolDown) {
//	    return errors.New("color fade unavailable")
//	}
//	for _, level := range []float64{1, 0.75, 0.5, 0.25, 0} {
//	    if !cf.Draw(level) {
//	        break
//	    }
//	}
//	cf.Dismiss()
//
// # Modes
//
// WarmUp and CoolDown render the captured screenshot through the fade
// shader. WarmUp additionally renders DejankFrames frames at full level
// during Prepare. Fade skips the GPU entirely and only changes the alpha
// of an opaque black color layer.
//
// # Architecture
//
// The package is organized into:
//   - colorfade: Controller, Mode, FadeCurve, options, Dump
//   - compositor: the compositor primitive (surfaces, drawables, transactions)
//   - display: display geometry queries, rotation notifications, screenshots
//   - overlay: the overlay surface and its natural-orientation transform
//   - gpu: rendering context, screenshot texture and fade shader program
//
// # Threading
//
// A Controller must be driven from a single goroutine. The only work done
// on other goroutines is the rotation callback registered by the overlay,
// which synchronizes with surface destruction internally.
//
// # Logging
//
// colorfade is silent by default. Call SetLogger to route lifecycle and
// failure records from every sub-package to a slog.Logger.
package colorfade
