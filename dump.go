package colorfade

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Dump writes a diagnostic snapshot of the Controller to w. The output is
// meant for humans and bug reports, not for parsing.
func (c *Controller) Dump(w io.Writer) {
	p := message.NewPrinter(language.English)
	s := c.Stats()

	p.Fprintf(w, "\nColor Fade State:\n")
	p.Fprintf(w, "  prepared=%t\n", s.Prepared)
	p.Fprintf(w, "  mode=%v\n", c.mode)
	p.Fprintf(w, "  displayId=%d\n", c.opts.displayID)
	p.Fprintf(w, "  displayLayerStack=%d\n", c.info.LayerStack)
	p.Fprintf(w, "  displayWidth=%d\n", c.info.NaturalWidth)
	p.Fprintf(w, "  displayHeight=%d\n", c.info.NaturalHeight)
	p.Fprintf(w, "  displayRotation=%v\n", c.info.Rotation)
	p.Fprintf(w, "  resourcesCreated=%t\n", s.ResourcesCreated)
	p.Fprintf(w, "  surfaceVisible=%t\n", s.OverlayVisible)
	p.Fprintf(w, "  surfaceAlpha=%.3f\n", s.OverlayAlpha)
	p.Fprintf(w, "  surfaceSecure=%t\n", s.OverlaySecure)
	p.Fprintf(w, "  gpu: texture=%t program=%t buffers=%d surface=%t\n",
		s.Texture, s.Program, s.Buffers, s.Surface)
	p.Fprintf(w, "  frames=%d warmUpFrames=%d\n", s.Frames, s.WarmUpFrames)
}
