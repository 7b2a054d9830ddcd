// Command colorfade runs a color fade against a headless display and
// writes every frame as a PNG file.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gogpu/colorfade"
	"github.com/gogpu/colorfade/display"
	"github.com/gogpu/colorfade/gpu"
	"github.com/gogpu/colorfade/internal/headless"
	"github.com/gogpu/colorfade/internal/shade"
	"github.com/gogpu/colorfade/overlay"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
	xdraw "golang.org/x/image/draw"
)

func main() {
	var (
		width    = flag.Int("width", 1080, "display natural width")
		height   = flag.Int("height", 2340, "display natural height")
		rotation = flag.Int("rotation", 0, "display rotation in degrees (0, 90, 180, 270)")
		modeName = flag.String("mode", "cooldown", "fade mode: warmup, cooldown or fade")
		steps    = flag.Int("steps", 8, "number of frames between level 1 and level 0")
		backend  = flag.String("backend", "noop", "GPU backend: noop or vulkan")
		output   = flag.String("output", "frames", "output directory")
		secure   = flag.Bool("secure", false, "mark the screen content secure")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		colorfade.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	mode, err := parseMode(*modeName)
	if err != nil {
		log.Fatal(err)
	}
	r, err := parseRotation(*rotation)
	if err != nil {
		log.Fatal(err)
	}
	if *steps < 1 {
		log.Fatalf("steps must be positive, got %d", *steps)
	}
	if err := os.MkdirAll(*output, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	comp := headless.NewCompositor()
	disp := headless.NewDisplay(comp, display.DefaultID, *width, *height)
	content := headless.TestPattern(*width, *height)
	disp.SetContent(content)
	disp.SetSecure(*secure)
	if err := disp.Rotate(r); err != nil {
		log.Fatalf("Failed to rotate display: %v", err)
	}

	var gpuOpts []gpu.ContextOption
	switch *backend {
	case "noop":
		gpuOpts = append(gpuOpts, gpu.WithInstanceCreator(&noop.API{}))
	case "vulkan":
		gpuOpts = append(gpuOpts, gpu.WithBackend(gputypes.BackendVulkan))
	default:
		log.Fatalf("unknown backend %q", *backend)
	}

	cf := colorfade.New(comp, disp, disp, disp, colorfade.WithContextOptions(gpuOpts...))
	defer cf.Close()

	if !cf.Prepare(mode) {
		log.Fatalf("Prepare(%v) failed, run with -v for details", mode)
	}

	for i := 0; i <= *steps; i++ {
		level := 1 - float64(i)/float64(*steps)
		if !cf.Draw(level) {
			cf.Dismiss()
			log.Fatalf("Draw(%.3f) failed", level)
		}
		st, ok := comp.Surface(overlay.Name)
		if !ok {
			log.Fatal("overlay surface disappeared")
		}
		var frame *image.RGBA
		if *backend == "noop" && mode != colorfade.Fade {
			// The noop device reads back blank frames; shade on the CPU.
			frame = preview(content, level, *secure)
		} else {
			frame = composite(content, st)
		}
		name := filepath.Join(*output, fmt.Sprintf("frame_%03d.png", i))
		if err := savePNG(name, frame); err != nil {
			log.Fatalf("Failed to save: %v", err)
		}
	}

	cf.Dump(os.Stdout)
	cf.Dismiss()
	log.Printf("%d frames saved to %s (%dx%d, %v)\n", *steps+1, *output, *width, *height, mode)
}

func parseMode(s string) (colorfade.Mode, error) {
	switch s {
	case "warmup":
		return colorfade.WarmUp, nil
	case "cooldown":
		return colorfade.CoolDown, nil
	case "fade":
		return colorfade.Fade, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

func parseRotation(deg int) (display.Rotation, error) {
	switch deg {
	case 0:
		return display.Rotation0, nil
	case 90:
		return display.Rotation90, nil
	case 180:
		return display.Rotation180, nil
	case 270:
		return display.Rotation270, nil
	}
	return 0, fmt.Errorf("unsupported rotation %d", deg)
}

// composite returns what the display shows: the rendered overlay frame,
// or for a color layer the screen content under black at the overlay alpha.
func composite(content *image.RGBA, st headless.SurfaceState) *image.RGBA {
	if st.LastFrame != nil {
		return st.LastFrame
	}
	out := image.NewRGBA(content.Bounds())
	xdraw.Draw(out, out.Bounds(), content, image.Point{}, xdraw.Src)
	if st.Visible {
		mask := image.NewUniform(color.Alpha{A: uint8(st.Alpha*255 + 0.5)})
		xdraw.DrawMask(out, out.Bounds(), image.NewUniform(color.Black), image.Point{}, mask, image.Point{}, xdraw.Over)
	}
	return out
}

// preview renders the frame the fade shader would produce for level.
func preview(content *image.RGBA, level float64, secure bool) *image.RGBA {
	out := image.NewRGBA(content.Bounds())
	if secure {
		xdraw.Draw(out, out.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
		return out
	}
	opacity, gamma := colorfade.FadeCurve(level)
	shade.Fade(out, content, float32(opacity), float32(gamma))
	return out
}

func savePNG(name string, img image.Image) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
