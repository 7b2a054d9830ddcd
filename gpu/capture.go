// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/gogpu/colorfade/display"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	xdraw "golang.org/x/image/draw"
)

// CapturedFrame is the screenshot texture sampled by the fade program.
type CapturedFrame struct {
	Texture hal.Texture
	View    hal.TextureView
	Sampler hal.Sampler

	// Transform maps quad texture coordinates onto the texture, as
	// reported by the screenshot primitive.
	Transform [16]float32

	// Secure reports that the screenshot contained secure content.
	Secure bool

	Width  int
	Height int
}

// Capture snapshots a display into a sampleable texture. The texture is
// generated on the first Capture and reused by later attempts until
// Destroy.
type Capture struct {
	shooter display.Screenshotter

	texture hal.Texture
	view    hal.TextureView
	sampler hal.Sampler
	width   uint32
	height  uint32
}

// NewCapture returns a capture that takes screenshots through s.
func NewCapture(s display.Screenshotter) *Capture {
	return &Capture{shooter: s}
}

// frameQueue is the consumer end the screenshot primitive fills. Only the
// latest queued frame is kept.
type frameQueue struct {
	latest *display.Screenshot
}

func (q *frameQueue) QueueScreenshot(s display.Screenshot) {
	q.latest = &s
}

// Capture screenshots the display identified by token and uploads the
// image, fitted to width x height, into the capture texture.
//
// It fails with ErrDisplayUnavailable when token is nil or cannot be
// resolved, and with ErrNoFrame when the screenshot yields no image.
func (c *Capture) Capture(b *Binding, token display.Token, width, height int) (*CapturedFrame, error) {
	if err := b.active(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if token == nil || c.shooter == nil {
		slogger().Warn("gpu: capture failed, display token unavailable")
		return nil, ErrDisplayUnavailable
	}

	w, h := uint32(width), uint32(height) //nolint:gosec // checked positive above
	if c.texture != nil && (c.width != w || c.height != h) {
		c.Destroy(b)
	}
	if c.texture == nil {
		if err := c.createTexture(b.Device(), w, h); err != nil {
			return nil, err
		}
	}

	consumer := &frameQueue{}
	if err := c.shooter.Screenshot(token, consumer); err != nil {
		if errors.Is(err, display.ErrDisconnected) {
			return nil, fmt.Errorf("%w: %w", ErrDisplayUnavailable, err)
		}
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	shot := consumer.latest
	if shot == nil || shot.Image == nil || shot.Image.Bounds().Empty() {
		return nil, ErrNoFrame
	}

	pix := fitRGBA(shot.Image, width, height)
	b.Queue().WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  c.texture,
			MipLevel: 0,
			Aspect:   gputypes.TextureAspectAll,
		},
		pix.Pix,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  w * 4,
			RowsPerImage: h,
		},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)

	slogger().Debug("gpu: screenshot captured",
		"display", token.DisplayID(), "width", width, "height", height, "secure", shot.Secure)
	return &CapturedFrame{
		Texture:   c.texture,
		View:      c.view,
		Sampler:   c.sampler,
		Transform: shot.Transform,
		Secure:    shot.Secure,
		Width:     width,
		Height:    height,
	}, nil
}

func (c *Capture) createTexture(device hal.Device, w, h uint32) error {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "colorfade_screenshot",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create screenshot texture: %w", err)
	}

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "colorfade_screenshot_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return fmt.Errorf("create screenshot texture view: %w", err)
	}

	// Content is pixel aligned with the quad it is drawn on.
	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "colorfade_screenshot_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		device.DestroyTextureView(view)
		device.DestroyTexture(tex)
		return fmt.Errorf("create screenshot sampler: %w", err)
	}

	c.texture, c.view, c.sampler = tex, view, sampler
	c.width, c.height = w, h
	return nil
}

// fitRGBA returns img as tightly packed RGBA of exactly width x height,
// scaling with nearest-neighbour sampling when the sizes differ.
func fitRGBA(img image.Image, width, height int) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) &&
		b.Dx() == width && b.Dy() == height && rgba.Stride == width*4 {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if b.Dx() == width && b.Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// HasTexture reports whether the capture texture has been generated.
func (c *Capture) HasTexture() bool { return c.texture != nil }

// Destroy deletes the capture texture if one was generated.
func (c *Capture) Destroy(b *Binding) {
	if c.texture == nil {
		return
	}
	if err := b.active(); err != nil {
		slogger().Warn("gpu: screenshot texture released without binding")
		return
	}
	device := b.Device()
	if c.sampler != nil {
		device.DestroySampler(c.sampler)
		c.sampler = nil
	}
	if c.view != nil {
		device.DestroyTextureView(c.view)
		c.view = nil
	}
	device.DestroyTexture(c.texture)
	c.texture = nil
	c.width, c.height = 0, 0
}
