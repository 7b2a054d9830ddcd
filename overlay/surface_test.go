// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package overlay

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/gogpu/colorfade/compositor"
	"github.com/gogpu/colorfade/display"
	"github.com/gogpu/colorfade/internal/headless"
)

func newTestSurface(t *testing.T, w, h int) (*Surface, *headless.Compositor, *headless.Display) {
	t.Helper()
	comp := headless.NewCompositor()
	disp := headless.NewDisplay(comp, display.DefaultID, w, h)
	return New(comp, disp, disp, display.DefaultID), comp, disp
}

func TestNaturalTransform(t *testing.T) {
	const w, h = 2340, 1080
	tests := []struct {
		rotation display.Rotation
		want     Transform
	}{
		{display.Rotation0, Transform{X: 0, Y: 0, Matrix: [4]float32{1, 0, 0, 1}}},
		{display.Rotation90, Transform{X: 0, Y: h, Matrix: [4]float32{0, -1, 1, 0}}},
		{display.Rotation180, Transform{X: w, Y: h, Matrix: [4]float32{-1, 0, 0, -1}}},
		{display.Rotation270, Transform{X: w, Y: 0, Matrix: [4]float32{0, 1, -1, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.rotation.String(), func(t *testing.T) {
			if got := NaturalTransform(tt.rotation, w, h); got != tt.want {
				t.Errorf("NaturalTransform(%v) = %+v, want %+v", tt.rotation, got, tt.want)
			}
		})
	}
}

func TestNaturalTransformCoversDisplay(t *testing.T) {
	// Natural size 1080x2340; logical size swaps for 90 and 270.
	const nw, nh = 1080, 2340
	for _, r := range []display.Rotation{display.Rotation0, display.Rotation90, display.Rotation180, display.Rotation270} {
		lw, lh := nw, nh
		if r.Swapped() {
			lw, lh = nh, nw
		}
		tr := NaturalTransform(r, lw, lh)
		minX, minY := float32(1e9), float32(1e9)
		maxX, maxY := float32(-1e9), float32(-1e9)
		for _, p := range [][2]float32{{0, 0}, {nw, 0}, {0, nh}, {nw, nh}} {
			x, y := tr.MapPoint(p[0], p[1])
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
		if minX != 0 || minY != 0 || maxX != float32(lw) || maxY != float32(lh) {
			t.Errorf("%v: surface maps to [%v,%v]-[%v,%v], want [0,0]-[%d,%d]",
				r, minX, minY, maxX, maxY, lw, lh)
		}
	}
}

func TestSurfaceCreate(t *testing.T) {
	s, comp, disp := newTestSurface(t, 1080, 2340)
	disp.SetLayerStack(3)
	if err := s.Create(compositor.KindBuffer, 1080, 2340, 3); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Destroy()

	if !s.Exists() || s.Drawable() == nil {
		t.Fatal("surface or drawable missing after Create")
	}
	st, ok := comp.Surface(Name)
	if !ok {
		t.Fatal("compositor has no ColorFade surface")
	}
	if st.LayerStack != 3 || st.Crop != image.Rect(0, 0, 1080, 2340) {
		t.Errorf("layerStack=%d crop=%v", st.LayerStack, st.Crop)
	}
	if st.Visible {
		t.Error("surface visible before Show")
	}
	if comp.Transactions() != 1 {
		t.Errorf("transactions = %d, want 1", comp.Transactions())
	}
	if disp.Subscribers() != 1 {
		t.Errorf("subscribers = %d, want 1", disp.Subscribers())
	}

	if err := s.Create(compositor.KindBuffer, 1080, 2340, 3); err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if comp.Live() != 1 {
		t.Errorf("live surfaces = %d, want 1", comp.Live())
	}
}

func TestSurfaceCreateColor(t *testing.T) {
	s, comp, _ := newTestSurface(t, 100, 200)
	if err := s.Create(compositor.KindColor, 100, 200, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Destroy()

	if s.Drawable() != nil {
		t.Error("color surface has a drawable")
	}
	st, _ := comp.Surface(Name)
	if st.Color != color.Black {
		t.Errorf("color = %v, want black", st.Color)
	}
}

func TestSurfaceCreateRollback(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		inject func(*headless.Compositor)
	}{
		{"surface", func(c *headless.Compositor) { c.FailNextCreate(boom) }},
		{"drawable", func(c *headless.Compositor) { c.FailNextDrawable(boom) }},
		{"transaction", func(c *headless.Compositor) { c.FailNextApply(boom) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, comp, disp := newTestSurface(t, 64, 64)
			tt.inject(comp)
			if err := s.Create(compositor.KindBuffer, 64, 64, 0); !errors.Is(err, boom) {
				t.Fatalf("Create() = %v, want %v", err, boom)
			}
			if s.Exists() {
				t.Error("Exists() = true after failed Create")
			}
			if comp.Live() != 0 {
				t.Errorf("live surfaces = %d, want 0", comp.Live())
			}
			if disp.Subscribers() != 0 {
				t.Errorf("subscribers = %d, want 0", disp.Subscribers())
			}
		})
	}
}

func TestSurfaceCreateInvalidSize(t *testing.T) {
	s, _, _ := newTestSurface(t, 64, 64)
	if err := s.Create(compositor.KindBuffer, 0, 64, 0); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Create(0x64) = %v, want ErrInvalidSize", err)
	}
}

func TestSurfaceShowCoalesces(t *testing.T) {
	s, comp, _ := newTestSurface(t, 64, 64)
	if err := s.Show(1); !errors.Is(err, ErrNoSurface) {
		t.Errorf("Show() before Create = %v, want ErrNoSurface", err)
	}
	if err := s.Create(compositor.KindBuffer, 64, 64, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Destroy()

	before := comp.Transactions()
	if err := s.Show(1); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if err := s.Show(1); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if got := comp.Transactions() - before; got != 1 {
		t.Errorf("transactions for two Show(1) = %d, want 1", got)
	}

	if err := s.Show(0.5); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if got := comp.Transactions() - before; got != 2 {
		t.Errorf("transactions after Show(0.5) = %d, want 2", got)
	}

	st, _ := comp.Surface(Name)
	if !st.Visible || st.Alpha != 0.5 || st.Layer != Layer {
		t.Errorf("state visible=%v alpha=%v layer=%#x", st.Visible, st.Alpha, st.Layer)
	}
	if !s.Visible() || s.Alpha() != 0.5 {
		t.Errorf("Visible()=%v Alpha()=%v", s.Visible(), s.Alpha())
	}
}

func TestSurfaceSetSecure(t *testing.T) {
	s, comp, _ := newTestSurface(t, 64, 64)
	if err := s.SetSecure(true); !errors.Is(err, ErrNoSurface) {
		t.Errorf("SetSecure() before Create = %v, want ErrNoSurface", err)
	}
	if err := s.Create(compositor.KindBuffer, 64, 64, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Destroy()

	before := comp.Transactions()
	for i := 0; i < 2; i++ {
		if err := s.SetSecure(true); err != nil {
			t.Fatalf("SetSecure: %v", err)
		}
	}
	if got := comp.Transactions() - before; got != 1 {
		t.Errorf("transactions = %d, want 1", got)
	}
	if st, _ := comp.Surface(Name); !st.Secure || !s.Secure() {
		t.Error("surface not secure")
	}
}

func TestSurfaceFollowsRotation(t *testing.T) {
	s, comp, disp := newTestSurface(t, 1080, 2340)
	if err := s.Create(compositor.KindBuffer, 1080, 2340, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := disp.Rotate(display.Rotation90); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	st, _ := comp.Surface(Name)
	if st.X != 0 || st.Y != 1080 || st.Matrix != [4]float32{0, -1, 1, 0} {
		t.Errorf("after 90°: position (%v,%v) matrix %v", st.X, st.Y, st.Matrix)
	}

	s.Destroy()
	if disp.Subscribers() != 0 {
		t.Errorf("subscribers after Destroy = %d, want 0", disp.Subscribers())
	}
	before := comp.Transactions()
	if err := disp.Rotate(display.Rotation180); err != nil {
		t.Fatalf("Rotate after Destroy: %v", err)
	}
	if got := comp.Transactions() - before; got != 1 {
		t.Errorf("transactions = %d, want only the empty rotation transaction", got)
	}
}

// rotatingCompositor rotates the display right after the first
// transaction it hands out is applied.
type rotatingCompositor struct {
	*headless.Compositor
	disp    *headless.Display
	to      display.Rotation
	rotated bool
}

func (c *rotatingCompositor) Begin() compositor.Transaction {
	return &rotatingTx{Transaction: c.Compositor.Begin(), comp: c}
}

type rotatingTx struct {
	compositor.Transaction
	comp *rotatingCompositor
}

func (t *rotatingTx) Apply() error {
	if err := t.Transaction.Apply(); err != nil {
		return err
	}
	if !t.comp.rotated {
		t.comp.rotated = true
		return t.comp.disp.Rotate(t.comp.to)
	}
	return nil
}

func TestSurfaceCreateRotationDuringApply(t *testing.T) {
	inner := headless.NewCompositor()
	disp := headless.NewDisplay(inner, display.DefaultID, 1080, 2340)
	comp := &rotatingCompositor{Compositor: inner, disp: disp, to: display.Rotation90}
	s := New(comp, disp, disp, display.DefaultID)

	if err := s.Create(compositor.KindBuffer, 1080, 2340, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Destroy()
	if !comp.rotated {
		t.Fatal("display was not rotated during Create")
	}

	info, _ := disp.Info(display.DefaultID)
	want := NaturalTransform(info.Rotation, info.LogicalWidth, info.LogicalHeight)
	st, _ := inner.Surface(Name)
	if st.X != want.X || st.Y != want.Y || st.Matrix != want.Matrix {
		t.Errorf("after rotation during Create: position (%v,%v) matrix %v, want (%v,%v) %v",
			st.X, st.Y, st.Matrix, want.X, want.Y, want.Matrix)
	}

	// Later rotations still reach the callback.
	if err := disp.Rotate(display.Rotation180); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	st, _ = inner.Surface(Name)
	if st.X != 1080 || st.Y != 2340 || st.Matrix != [4]float32{-1, 0, 0, -1} {
		t.Errorf("after 180°: position (%v,%v) matrix %v", st.X, st.Y, st.Matrix)
	}
}

func TestSurfaceRotationCallbackAfterDestroy(t *testing.T) {
	s, comp, _ := newTestSurface(t, 64, 64)
	if err := s.Create(compositor.KindBuffer, 64, 64, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Destroy()

	// A callback already in flight when Destroy ran must not touch the
	// removed surface.
	tx := comp.Begin()
	s.onDisplayTransaction(display.DefaultID, tx)
	s.SetRotationTransform(tx, display.Info{NaturalWidth: 64, NaturalHeight: 64, Rotation: display.Rotation90})
	if err := tx.Apply(); err != nil {
		t.Errorf("Apply() = %v, want empty transaction", err)
	}
}

func TestSurfaceRotationConcurrentDestroy(t *testing.T) {
	s, _, disp := newTestSurface(t, 64, 64)
	if err := s.Create(compositor.KindBuffer, 64, 64, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			// Transactions racing with removal may fail; they must not panic.
			_ = disp.Rotate(display.Rotation(i % 4))
		}
	}()
	s.Destroy()
	wg.Wait()
	if s.Exists() {
		t.Error("Exists() = true after Destroy")
	}
}

func TestSurfaceDestroy(t *testing.T) {
	s, comp, _ := newTestSurface(t, 64, 64)
	s.Destroy()

	if err := s.Create(compositor.KindBuffer, 64, 64, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	d := s.Drawable().(*headless.Drawable)
	if err := s.Show(1); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if err := s.SetSecure(true); err != nil {
		t.Fatalf("SetSecure: %v", err)
	}

	before := comp.Transactions()
	s.Destroy()
	s.Destroy()
	if got := comp.Transactions() - before; got != 1 {
		t.Errorf("destroy transactions = %d, want 1", got)
	}
	if !d.Released() {
		t.Error("drawable not released")
	}
	if comp.Live() != 0 {
		t.Errorf("live surfaces = %d, want 0", comp.Live())
	}
	if s.Visible() || s.Alpha() != 0 || s.Secure() {
		t.Errorf("state not reset: visible=%v alpha=%v secure=%v", s.Visible(), s.Alpha(), s.Secure())
	}
}
