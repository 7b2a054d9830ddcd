// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package headless

import (
	"image"
	"image/color"
	"sync"

	"github.com/gogpu/colorfade/compositor"
	"github.com/gogpu/colorfade/display"
	xdraw "golang.org/x/image/draw"
)

// Display is an in-memory display. It answers display queries, delivers
// rotation changes inside compositor transactions and takes screenshots
// of its content image. It is safe for concurrent use.
type Display struct {
	mu sync.Mutex

	comp      compositor.Compositor
	id        int
	info      display.Info
	connected bool
	content   image.Image
	secure    bool

	subs    map[int]display.TransactionFunc
	nextSub int

	screenshots int
}

// NewDisplay returns a connected display of the given natural size in
// rotation 0, showing TestPattern. Rotation changes are applied through
// comp.
func NewDisplay(comp compositor.Compositor, id, width, height int) *Display {
	return &Display{
		comp: comp,
		id:   id,
		info: display.Info{
			NaturalWidth:  width,
			NaturalHeight: height,
			LogicalWidth:  width,
			LogicalHeight: height,
		},
		connected: true,
		content:   TestPattern(width, height),
		subs:      make(map[int]display.TransactionFunc),
	}
}

type token struct{ id int }

func (t token) DisplayID() int { return t.id }

// Info implements display.Provider.
func (d *Display) Info(displayID int) (display.Info, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if displayID != d.id {
		return display.Info{}, false
	}
	return d.info, true
}

// Token implements display.Provider. It returns nil while disconnected.
func (d *Display) Token(displayID int) display.Token {
	d.mu.Lock()
	defer d.mu.Unlock()
	if displayID != d.id || !d.connected {
		return nil
	}
	return token{id: d.id}
}

// Subscribe implements display.TransactionNotifier.
func (d *Display) Subscribe(fn display.TransactionFunc) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSub++
	key := d.nextSub
	d.subs[key] = fn
	return func() {
		d.mu.Lock()
		delete(d.subs, key)
		d.mu.Unlock()
	}
}

// Subscribers returns the number of registered callbacks.
func (d *Display) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Rotate changes the display rotation. Subscribers record their changes
// into one transaction that is applied with the rotation.
func (d *Display) Rotate(r display.Rotation) error {
	d.mu.Lock()
	d.info.Rotation = r
	d.info.LogicalWidth, d.info.LogicalHeight = d.info.NaturalWidth, d.info.NaturalHeight
	if r.Swapped() {
		d.info.LogicalWidth, d.info.LogicalHeight = d.info.NaturalHeight, d.info.NaturalWidth
	}
	fns := make([]display.TransactionFunc, 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	id := d.id
	d.mu.Unlock()

	tx := d.comp.Begin()
	for _, fn := range fns {
		fn(id, tx)
	}
	return tx.Apply()
}

// SetLayerStack sets the compositor group the display shows.
func (d *Display) SetLayerStack(stack int) {
	d.mu.Lock()
	d.info.LayerStack = stack
	d.mu.Unlock()
}

// Disconnect makes Token return nil and screenshots fail.
func (d *Display) Disconnect() {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
}

// Connect reverses Disconnect.
func (d *Display) Connect() {
	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()
}

// SetContent replaces the image the display shows. Images of another
// size are scaled to the natural size when screenshotted.
func (d *Display) SetContent(img image.Image) {
	d.mu.Lock()
	d.content = img
	d.mu.Unlock()
}

// SetSecure marks the content as secure. Screenshots of secure content
// are black and flagged Secure.
func (d *Display) SetSecure(secure bool) {
	d.mu.Lock()
	d.secure = secure
	d.mu.Unlock()
}

// Screenshots returns the number of screenshots taken.
func (d *Display) Screenshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screenshots
}

// Screenshot implements display.Screenshotter. The image is delivered in
// natural orientation, top row first.
func (d *Display) Screenshot(t display.Token, dst display.ScreenshotConsumer) error {
	d.mu.Lock()
	if t == nil || t.DisplayID() != d.id || !d.connected {
		d.mu.Unlock()
		return display.ErrDisconnected
	}
	w, h := d.info.NaturalWidth, d.info.NaturalHeight
	content, secure := d.content, d.secure
	d.screenshots++
	d.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	switch {
	case secure || content == nil:
		xdraw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	case content.Bounds().Dx() == w && content.Bounds().Dy() == h:
		xdraw.Draw(img, img.Bounds(), content, content.Bounds().Min, xdraw.Src)
	default:
		xdraw.ApproxBiLinear.Scale(img, img.Bounds(), content, content.Bounds(), xdraw.Src, nil)
	}

	dst.QueueScreenshot(display.Screenshot{
		Image:     img,
		Transform: display.FlipVertical,
		Secure:    secure,
	})
	return nil
}

// TestPattern returns a width x height image of vertical colour bars over
// a horizontal grey ramp.
func TestPattern(width, height int) *image.RGBA {
	bars := []color.RGBA{
		{255, 255, 255, 255},
		{255, 255, 0, 255},
		{0, 255, 255, 255},
		{0, 255, 0, 255},
		{255, 0, 255, 255},
		{255, 0, 0, 255},
		{0, 0, 255, 255},
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	barsEnd := height * 2 / 3
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if y < barsEnd {
				img.SetRGBA(x, y, bars[x*len(bars)/width])
				continue
			}
			v := uint8(x * 255 / max(width-1, 1))
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}
