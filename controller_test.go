package colorfade

import (
	"bytes"
	"errors"
	"image/color"
	"strings"
	"testing"

	"github.com/gogpu/colorfade/compositor"
	"github.com/gogpu/colorfade/display"
	"github.com/gogpu/colorfade/gpu"
	"github.com/gogpu/colorfade/internal/headless"
	"github.com/gogpu/colorfade/overlay"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
)

var allResources = []string{
	headless.ResTexture, headless.ResTextureView, headless.ResSampler,
	headless.ResBuffer, headless.ResShaderModule, headless.ResBindGroupLayout,
	headless.ResPipelineLayout, headless.ResRenderPipeline, headless.ResBindGroup,
}

type fadeEnv struct {
	comp *headless.Compositor
	disp *headless.Display
	gpu  *headless.GPU
	cf   *Controller
}

func newFadeEnv(t *testing.T, width, height int, opts ...Option) *fadeEnv {
	t.Helper()
	g, err := headless.NewGPU(gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		t.Fatalf("NewGPU: %v", err)
	}
	comp := headless.NewCompositor()
	disp := headless.NewDisplay(comp, display.DefaultID, width, height)
	disp.SetContent(headless.TestPattern(width, height))

	opts = append([]Option{WithDeviceProvider(g)}, opts...)
	cf := New(comp, disp, disp, disp, opts...)
	t.Cleanup(func() {
		cf.Close()
		g.Close()
	})
	return &fadeEnv{comp: comp, disp: disp, gpu: g, cf: cf}
}

// requireShaderCompiler skips the test when naga cannot compile the
// embedded shaders because of a missing compiler feature.
func requireShaderCompiler(t *testing.T) {
	t.Helper()
	for _, name := range []string{gpu.VertexShader, gpu.FragmentShader} {
		src, err := gpu.EmbeddedShaders(name)
		if err != nil {
			t.Fatalf("EmbeddedShaders(%q): %v", name, err)
		}
		if _, err := naga.Compile(src); err != nil {
			msg := err.Error()
			if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
				t.Skipf("Skipping: naga feature not yet implemented: %v", err)
			}
			t.Fatalf("compile %s: %v", name, err)
		}
	}
}

// requireReleased fails unless every GPU object and compositor surface
// created so far has been released exactly once.
func (e *fadeEnv) requireReleased(t *testing.T) {
	t.Helper()
	if live := e.gpu.Summary(); live != "" {
		t.Errorf("live GPU resources: %s", live)
	}
	for _, kind := range allResources {
		if c, d := e.gpu.Created(kind), e.gpu.Destroyed(kind); c != d {
			t.Errorf("%s: created %d, destroyed %d", kind, c, d)
		}
	}
	if e.comp.Live() != 0 {
		t.Errorf("live compositor surfaces = %d, want 0", e.comp.Live())
	}
	if s := e.cf.Stats(); s.Live() || s.OverlayExists || s.OverlaySecure {
		t.Errorf("Stats() = %+v, want nothing live", s)
	}
}

func TestControllerWarmUp(t *testing.T) {
	requireShaderCompiler(t)
	e := newFadeEnv(t, 1080, 2340)

	if !e.cf.Prepare(WarmUp) {
		t.Fatal("Prepare(WarmUp) = false")
	}
	if !e.cf.Prepared() || e.cf.Mode() != WarmUp {
		t.Errorf("Prepared()=%v Mode()=%v", e.cf.Prepared(), e.cf.Mode())
	}

	s := e.cf.Stats()
	if s.WarmUpFrames != DejankFrames || s.Frames != DejankFrames {
		t.Errorf("warm-up frames = %d, frames = %d, want %d", s.WarmUpFrames, s.Frames, DejankFrames)
	}
	if !s.Texture || !s.Program || s.Buffers != 2 || !s.Surface {
		t.Errorf("resources after Prepare: %+v", s)
	}
	st, ok := e.comp.Surface(overlay.Name)
	if !ok {
		t.Fatal("no overlay surface")
	}
	if st.Frames != DejankFrames {
		t.Errorf("frames posted = %d, want %d", st.Frames, DejankFrames)
	}
	if st.Width != 1080 || st.Height != 2340 || !st.Visible || st.Alpha != 1 {
		t.Errorf("overlay = %dx%d visible=%v alpha=%v", st.Width, st.Height, st.Visible, st.Alpha)
	}
	if b := st.LastFrame.Bounds(); b.Dx() != 1080 || b.Dy() != 2340 {
		t.Errorf("frame bounds = %v", b)
	}

	e.cf.Dismiss()
	if e.cf.Prepared() {
		t.Error("Prepared() = true after Dismiss")
	}
	e.requireReleased(t)
	if removed := e.comp.Removed(); len(removed) != 1 {
		t.Errorf("removed surfaces = %d, want 1", len(removed))
	}

	before := e.comp.Transactions()
	e.cf.Dismiss()
	if e.comp.Transactions() != before {
		t.Error("second Dismiss issued a transaction")
	}
	e.requireReleased(t)
}

func TestControllerCoolDownDraw(t *testing.T) {
	requireShaderCompiler(t)
	e := newFadeEnv(t, 64, 32)

	if !e.cf.Prepare(CoolDown) {
		t.Fatal("Prepare(CoolDown) = false")
	}
	if st, _ := e.comp.Surface(overlay.Name); st.Frames != 0 || st.Visible {
		t.Errorf("CoolDown rendered during Prepare: frames=%d visible=%v", st.Frames, st.Visible)
	}

	before := e.comp.Transactions()
	for _, level := range []float64{1, 0.75, 0.5, 0.25, 0, -1, 2} {
		if !e.cf.Draw(level) {
			t.Fatalf("Draw(%v) = false", level)
		}
	}
	st, _ := e.comp.Surface(overlay.Name)
	if st.Frames != 7 {
		t.Errorf("frames = %d, want 7", st.Frames)
	}
	if got := e.comp.Transactions() - before; got != 1 {
		t.Errorf("transactions during draws = %d, want 1 (the first Show)", got)
	}
	if got := e.gpu.Created(headless.ResBindGroup); got != 1 {
		t.Errorf("bind groups = %d, want 1", got)
	}

	e.cf.Dismiss()
	e.requireReleased(t)
}

func TestControllerFadeMode(t *testing.T) {
	e := newFadeEnv(t, 1080, 2340)

	if !e.cf.Prepare(Fade) {
		t.Fatal("Prepare(Fade) = false")
	}
	st, _ := e.comp.Surface(overlay.Name)
	if st.Kind != compositor.KindColor || st.Color != color.Black {
		t.Errorf("overlay kind=%v color=%v, want black color layer", st.Kind, st.Color)
	}

	tests := []struct {
		level float64
		alpha float32
	}{
		{1, 0},
		{0.25, 0.75},
		{0, 1},
	}
	for _, tt := range tests {
		if !e.cf.Draw(tt.level) {
			t.Fatalf("Draw(%v) = false", tt.level)
		}
		st, _ := e.comp.Surface(overlay.Name)
		if !st.Visible || st.Alpha != tt.alpha {
			t.Errorf("Draw(%v): visible=%v alpha=%v, want alpha %v", tt.level, st.Visible, st.Alpha, tt.alpha)
		}
	}

	for _, kind := range allResources {
		if n := e.gpu.Created(kind); n != 0 {
			t.Errorf("Fade mode created %d %s", n, kind)
		}
	}
	if e.disp.Screenshots() != 0 {
		t.Error("Fade mode took a screenshot")
	}
	if s := e.cf.Stats(); s.ResourcesCreated || s.Frames != 0 {
		t.Errorf("Stats() = %+v", s)
	}

	e.cf.Dismiss()
	e.requireReleased(t)
}

func TestControllerRollbackOnBufferFailure(t *testing.T) {
	requireShaderCompiler(t)
	e := newFadeEnv(t, 1080, 2340)
	e.gpu.FailCreate("colorfade_uvs", errors.New("out of memory"))

	if e.cf.Prepare(CoolDown) {
		t.Fatal("Prepare() = true with failing buffer allocation")
	}
	if e.cf.Prepared() {
		t.Error("Prepared() = true after failed Prepare")
	}

	var buf bytes.Buffer
	e.cf.Dump(&buf)
	if !strings.Contains(buf.String(), "prepared=false") {
		t.Errorf("Dump() missing prepared=false:\n%s", buf.String())
	}
	e.requireReleased(t)

	// The controller is usable again once the fault clears.
	e.gpu.FailCreate("colorfade_uvs", nil)
	if !e.cf.Prepare(CoolDown) {
		t.Fatal("Prepare() after rollback = false")
	}
	e.cf.Dismiss()
	e.requireReleased(t)
}

func TestControllerDrawGPUError(t *testing.T) {
	requireShaderCompiler(t)
	e := newFadeEnv(t, 1080, 2340)
	if !e.cf.Prepare(CoolDown) {
		t.Fatal("Prepare(CoolDown) = false")
	}

	// The bind group is created by the first frame.
	e.gpu.FailCreate("colorfade_bind_group", errors.New("device lost"))
	before := e.comp.Transactions()
	if e.cf.Draw(0.5) {
		t.Fatal("Draw() = true with failing bind group")
	}
	if e.cf.gpu.Attached() {
		t.Error("context still attached after failed Draw")
	}
	if got := e.comp.Transactions() - before; got != 0 {
		t.Errorf("transactions after failed Draw = %d, want 0", got)
	}
	st, ok := e.comp.Surface(overlay.Name)
	if !ok {
		t.Fatal("no overlay surface")
	}
	if st.Visible || st.Frames != 0 {
		t.Errorf("overlay visible=%v frames=%d after failed Draw", st.Visible, st.Frames)
	}
	if s := e.cf.Stats(); s.Frames != 0 || s.OverlayVisible {
		t.Errorf("Stats() = %+v", s)
	}
	if e.gpu.Created(headless.ResBindGroup) != 0 {
		t.Errorf("bind groups created = %d, want 0", e.gpu.Created(headless.ResBindGroup))
	}

	e.gpu.FailCreate("colorfade_bind_group", nil)
	e.cf.Dismiss()
	e.requireReleased(t)
	if removed := e.comp.Removed(); len(removed) != 1 {
		t.Errorf("removed surfaces = %d, want 1", len(removed))
	}
}

func TestControllerPrepareFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		mode   Mode
		opts   []Option
		inject func(*fadeEnv)
	}{
		{"unknown display", CoolDown, []Option{WithDisplayID(7)}, nil},
		{"invalid mode", Mode(0), nil, nil},
		{"overlay", CoolDown, nil, func(e *fadeEnv) { e.comp.FailNextCreate(boom) }},
		{"drawable", WarmUp, nil, func(e *fadeEnv) { e.comp.FailNextDrawable(boom) }},
		{"fade overlay", Fade, nil, func(e *fadeEnv) { e.comp.FailNextApply(boom) }},
		{"disconnected", CoolDown, nil, func(e *fadeEnv) { e.disp.Disconnect() }},
		{"shader source", CoolDown, []Option{WithShaderLoader(func(string) (string, error) { return "", boom })}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFadeEnv(t, 64, 64, tt.opts...)
			if tt.inject != nil {
				tt.inject(e)
			}
			if e.cf.Prepare(tt.mode) {
				t.Fatal("Prepare() = true")
			}
			if e.cf.Prepared() {
				t.Error("Prepared() = true after failure")
			}
			e.requireReleased(t)
			if e.cf.Draw(1) {
				t.Error("Draw() = true after failed Prepare")
			}
		})
	}
}

func TestControllerSecureScreenshot(t *testing.T) {
	requireShaderCompiler(t)
	e := newFadeEnv(t, 32, 32)
	e.disp.SetSecure(true)

	if !e.cf.Prepare(CoolDown) {
		t.Fatal("Prepare() = false")
	}
	if st, _ := e.comp.Surface(overlay.Name); !st.Secure || !e.cf.Stats().OverlaySecure {
		t.Error("overlay not marked secure for a secure screenshot")
	}
	e.cf.Dismiss()
	e.requireReleased(t)

	var buf bytes.Buffer
	e.cf.Dump(&buf)
	if !strings.Contains(buf.String(), "surfaceSecure=false") {
		t.Errorf("Dump() after Dismiss:\n%s", buf.String())
	}
}

func TestControllerDrawNotPrepared(t *testing.T) {
	e := newFadeEnv(t, 16, 16)
	if e.cf.Draw(0.5) {
		t.Error("Draw() = true before Prepare")
	}
	if e.comp.Transactions() != 0 {
		t.Error("Draw() before Prepare issued a transaction")
	}
}

func TestControllerPrepareReplacesSession(t *testing.T) {
	e := newFadeEnv(t, 16, 16)
	if !e.cf.Prepare(Fade) {
		t.Fatal("Prepare(Fade) = false")
	}
	if !e.cf.Prepare(Fade) {
		t.Fatal("second Prepare(Fade) = false")
	}
	if e.comp.Live() != 1 {
		t.Errorf("live surfaces = %d, want 1", e.comp.Live())
	}
	if len(e.comp.Removed()) != 1 {
		t.Errorf("removed surfaces = %d, want 1", len(e.comp.Removed()))
	}
}

func TestControllerDismissResourcesKeepsOverlay(t *testing.T) {
	requireShaderCompiler(t)
	e := newFadeEnv(t, 16, 16)
	if !e.cf.Prepare(CoolDown) {
		t.Fatal("Prepare() = false")
	}
	e.cf.DismissResources()
	s := e.cf.Stats()
	if s.Live() || s.ResourcesCreated {
		t.Errorf("GPU resources left after DismissResources: %+v", s)
	}
	if !s.OverlayExists || !s.Prepared {
		t.Errorf("overlay or session gone after DismissResources: %+v", s)
	}
	if e.cf.Draw(1) {
		t.Error("Draw() = true without GPU resources")
	}
	e.cf.Dismiss()
	e.requireReleased(t)
}

func TestControllerFollowsRotation(t *testing.T) {
	e := newFadeEnv(t, 1080, 2340)
	if !e.cf.Prepare(Fade) {
		t.Fatal("Prepare(Fade) = false")
	}
	if err := e.disp.Rotate(display.Rotation270); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	st, _ := e.comp.Surface(overlay.Name)
	if st.X != 2340 || st.Y != 0 || st.Matrix != [4]float32{0, 1, -1, 0} {
		t.Errorf("after 270°: position (%v,%v) matrix %v", st.X, st.Y, st.Matrix)
	}
	e.cf.Dismiss()
	if e.disp.Subscribers() != 0 {
		t.Errorf("subscribers after Dismiss = %d, want 0", e.disp.Subscribers())
	}
}

func TestControllerClose(t *testing.T) {
	e := newFadeEnv(t, 16, 16)
	if !e.cf.Prepare(Fade) {
		t.Fatal("Prepare(Fade) = false")
	}
	e.cf.Close()
	e.cf.Close()
	if e.cf.Prepare(Fade) {
		t.Error("Prepare() = true after Close")
	}
	e.requireReleased(t)
}

func TestControllerDump(t *testing.T) {
	requireShaderCompiler(t)
	e := newFadeEnv(t, 1080, 2340)
	e.disp.SetLayerStack(4)
	if !e.cf.Prepare(WarmUp) {
		t.Fatal("Prepare() = false")
	}

	var buf bytes.Buffer
	e.cf.Dump(&buf)
	out := buf.String()
	for _, want := range []string{
		"Color Fade State:",
		"prepared=true",
		"mode=WarmUp",
		"displayLayerStack=4",
		"displayWidth=1,080",
		"displayHeight=2,340",
		"surfaceVisible=true",
		"surfaceAlpha=1.000",
		"gpu: texture=true program=true buffers=2 surface=true",
		"frames=3 warmUpFrames=3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump() missing %q:\n%s", want, out)
		}
	}
}
