// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu implements the GPU side of the color fade: the rendering
// context bound to the overlay's drawable, the screenshot texture, and
// the fade shader program.
//
// All resources are created on a wgpu HAL device. Every call that records
// or submits GPU work takes the *Binding returned by Context.Attach, so a
// GPU call made outside an attach/detach bracket is a compile-time
// impossibility rather than a driver error:
//
//	b, err := ctx.Attach()
//	if err != nil {
//	    return err
//	}
//	defer b.Detach()
//
//	b.Clear(gpu.OpaqueBlack)
//	program.DrawFrame(b, opacity, gamma, frame, proj)
//	if err := b.CheckErrors("drawFrame"); err != nil {
//	    return err
//	}
//	return b.Swap()
package gpu

import (
	"fmt"
	"runtime"

	"github.com/gogpu/colorfade/compositor"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// copyPitchAlignment is the row alignment WebGPU requires for
// texture-to-buffer copies.
const copyPitchAlignment = 256

// Context is the GPU context manager. It owns the HAL instance and device
// (unless shared through WithDeviceProvider) and the rendering surface:
// an offscreen render target whose frames are posted to the overlay's
// drawable on Swap.
//
// A Context is not safe for concurrent use.
type Context struct {
	opts contextOptions

	instance     hal.Instance
	device       hal.Device
	queue        hal.Queue
	sharedDevice bool
	adapterName  string
	format       gputypes.TextureFormat

	surface *renderSurface
	binding *Binding
}

// renderSurface is the render target bound to a client drawable.
type renderSurface struct {
	drawable compositor.Drawable
	width    uint32
	height   uint32

	target  hal.Texture
	view    hal.TextureView
	staging hal.Buffer

	bytesPerRow        uint32
	alignedBytesPerRow uint32
}

// NewContext returns an uncreated context. Call Create before use.
func NewContext(opts ...ContextOption) *Context {
	o := defaultContextOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Context{opts: o}
}

// Create opens the device and negotiates an 8-bit RGBA color format.
// It returns nil immediately if the context already exists.
func (c *Context) Create() error {
	if c.device != nil {
		return nil
	}
	if c.opts.provider != nil {
		return c.createShared()
	}

	creator := c.opts.creator
	if creator == nil {
		backend, ok := hal.GetBackend(c.opts.backend)
		if !ok {
			return fmt.Errorf("%w: %v", ErrNoBackend, c.opts.backend)
		}
		creator = backend
	}

	instance, err := creator.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return ErrNoAdapter
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	format, err := chooseColorFormat(formatUndefined)
	if err != nil {
		instance.Destroy()
		return err
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("open device: %w", err)
	}

	c.instance = instance
	c.device = openDev.Device
	c.queue = openDev.Queue
	c.sharedDevice = false
	c.adapterName = selected.Info.Name
	c.format = format
	slogger().Info("gpu: context created", "adapter", c.adapterName, "format", format)
	return nil
}

// createShared adopts the HAL device of the configured provider.
func (c *Context) createShared() error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := c.opts.provider.(halProvider)
	if !ok {
		return ErrNoHalDevice
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHalDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHalDevice)
	}
	format, err := chooseColorFormat(c.opts.provider.SurfaceFormat())
	if err != nil {
		return err
	}

	c.device = device
	c.queue = queue
	c.sharedDevice = true
	c.adapterName = "shared"
	c.format = format
	slogger().Info("gpu: context created on shared device", "format", format)
	return nil
}

// Created reports whether Create succeeded and Destroy has not been called.
func (c *Context) Created() bool { return c.device != nil }

// Format returns the negotiated color format.
func (c *Context) Format() gputypes.TextureFormat { return c.format }

// Device returns the HAL device, or nil before Create.
func (c *Context) Device() hal.Device { return c.device }

// Queue returns the HAL queue, or nil before Create.
func (c *Context) Queue() hal.Queue { return c.queue }

// CreateSurface creates the rendering surface for d: a render target of
// width x height pixels and the staging buffer frames are read back
// through. An existing surface is released first.
func (c *Context) CreateSurface(d compositor.Drawable, width, height int) error {
	if c.device == nil {
		return ErrNoContext
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	c.DestroySurface()

	w, h := uint32(width), uint32(height) //nolint:gosec // checked positive above
	rs := &renderSurface{drawable: d, width: w, height: h}
	rs.bytesPerRow = w * 4
	rs.alignedBytesPerRow = (rs.bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)

	target, err := c.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "colorfade_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        c.format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create render target: %w", err)
	}
	rs.target = target

	view, err := c.device.CreateTextureView(target, &hal.TextureViewDescriptor{
		Label: "colorfade_target_view",
	})
	if err != nil {
		c.releaseSurface(rs)
		return fmt.Errorf("create render target view: %w", err)
	}
	rs.view = view

	staging, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "colorfade_staging",
		Size:  uint64(rs.alignedBytesPerRow) * uint64(h),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		c.releaseSurface(rs)
		return fmt.Errorf("create staging buffer: %w", err)
	}
	rs.staging = staging

	c.surface = rs
	slogger().Debug("gpu: rendering surface created", "width", width, "height", height)
	return nil
}

// HasSurface reports whether a rendering surface exists.
func (c *Context) HasSurface() bool { return c.surface != nil }

// DestroySurface releases the rendering surface only; the device stays
// open so the context can be reused.
func (c *Context) DestroySurface() {
	if c.surface == nil {
		return
	}
	c.releaseSurface(c.surface)
	c.surface = nil
	slogger().Debug("gpu: rendering surface destroyed")
}

func (c *Context) releaseSurface(rs *renderSurface) {
	if rs.staging != nil {
		c.device.DestroyBuffer(rs.staging)
		rs.staging = nil
	}
	if rs.view != nil {
		c.device.DestroyTextureView(rs.view)
		rs.view = nil
	}
	if rs.target != nil {
		c.device.DestroyTexture(rs.target)
		rs.target = nil
	}
}

// Attach makes the context current on the calling goroutine and returns
// the binding every GPU call must go through. The goroutine stays locked
// to its OS thread until Detach.
func (c *Context) Attach() (*Binding, error) {
	if c.device == nil {
		slogger().Warn("gpu: attach failed", "call", "Attach", "err", ErrNoContext)
		return nil, ErrNoContext
	}
	if c.surface == nil {
		slogger().Warn("gpu: attach failed", "call", "Attach", "err", ErrNoSurface)
		return nil, ErrNoSurface
	}
	if c.binding != nil {
		return nil, ErrAlreadyAttached
	}
	runtime.LockOSThread()
	c.binding = &Binding{ctx: c}
	return c.binding, nil
}

// Attached reports whether a binding is active.
func (c *Context) Attached() bool { return c.binding != nil }

// Destroy releases the surface, the device and the instance. A shared
// device is left to its provider. Destroy must not be called while
// attached.
func (c *Context) Destroy() {
	c.DestroySurface()
	if c.device != nil && !c.sharedDevice {
		c.device.Destroy()
	}
	if c.instance != nil {
		c.instance.Destroy()
	}
	c.device = nil
	c.queue = nil
	c.instance = nil
	c.sharedDevice = false
	slogger().Debug("gpu: context destroyed")
}
