// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package headless

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// Resource kinds counted by GPU.
const (
	ResTexture         = "texture"
	ResTextureView     = "textureView"
	ResSampler         = "sampler"
	ResBuffer          = "buffer"
	ResShaderModule    = "shaderModule"
	ResBindGroupLayout = "bindGroupLayout"
	ResPipelineLayout  = "pipelineLayout"
	ResRenderPipeline  = "renderPipeline"
	ResBindGroup       = "bindGroup"
)

// GPU is a gpucontext.DeviceProvider backed by the HAL noop device. It
// counts every resource created and destroyed through it and can fail
// chosen allocations by label.
//
// Like the providers of gogpu applications, it exposes the HAL objects
// through HalDevice and HalQueue.
type GPU struct {
	instance hal.Instance
	device   *countingDevice
	queue    hal.Queue
	format   gputypes.TextureFormat
}

// NewGPU opens a noop device. format is reported as the surface format.
func NewGPU(format gputypes.TextureFormat) (*GPU, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("headless: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("headless: no noop adapter")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("headless: open device: %w", err)
	}
	return &GPU{
		instance: instance,
		device: &countingDevice{
			Device:    openDev.Device,
			created:   make(map[string]int),
			destroyed: make(map[string]int),
			failures:  make(map[string]error),
		},
		queue:  openDev.Queue,
		format: format,
	}, nil
}

type gpuDevice struct{}

func (gpuDevice) Poll(bool) {}
func (gpuDevice) Destroy()  {}

type gpuQueue struct{}

type gpuAdapter struct{}

// Device implements gpucontext.DeviceProvider.
func (g *GPU) Device() gpucontext.Device { return gpuDevice{} }

// Queue implements gpucontext.DeviceProvider.
func (g *GPU) Queue() gpucontext.Queue { return gpuQueue{} }

// Adapter implements gpucontext.DeviceProvider.
func (g *GPU) Adapter() gpucontext.Adapter { return gpuAdapter{} }

// SurfaceFormat implements gpucontext.DeviceProvider.
func (g *GPU) SurfaceFormat() gputypes.TextureFormat { return g.format }

// HalDevice returns the accounting hal.Device.
func (g *GPU) HalDevice() any { return g.device }

// HalQueue returns the hal.Queue.
func (g *GPU) HalQueue() any { return g.queue }

// FailCreate makes every resource creation whose descriptor label is
// label return err, until cleared with a nil err.
func (g *GPU) FailCreate(label string, err error) {
	g.device.mu.Lock()
	defer g.device.mu.Unlock()
	if err == nil {
		delete(g.device.failures, label)
		return
	}
	g.device.failures[label] = err
}

// Created returns how many resources of kind were created.
func (g *GPU) Created(kind string) int {
	g.device.mu.Lock()
	defer g.device.mu.Unlock()
	return g.device.created[kind]
}

// Destroyed returns how many resources of kind were destroyed.
func (g *GPU) Destroyed(kind string) int {
	g.device.mu.Lock()
	defer g.device.mu.Unlock()
	return g.device.destroyed[kind]
}

// Live returns created minus destroyed resources of every kind that has
// a non-zero balance.
func (g *GPU) Live() map[string]int {
	g.device.mu.Lock()
	defer g.device.mu.Unlock()
	live := make(map[string]int)
	for kind, n := range g.device.created {
		if d := n - g.device.destroyed[kind]; d != 0 {
			live[kind] = d
		}
	}
	return live
}

// Summary formats Live as "kind=n" pairs sorted by kind.
func (g *GPU) Summary() string {
	live := g.Live()
	kinds := make([]string, 0, len(live))
	for k := range live {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, live[k])
	}
	return strings.Join(parts, " ")
}

// Close destroys the device and instance.
func (g *GPU) Close() {
	if g.device != nil {
		g.device.Device.Destroy()
		g.device = nil
	}
	if g.instance != nil {
		g.instance.Destroy()
		g.instance = nil
	}
}

// countingDevice wraps a hal.Device, counting resource creation and
// destruction.
type countingDevice struct {
	hal.Device

	mu        sync.Mutex
	created   map[string]int
	destroyed map[string]int
	failures  map[string]error
}

func (d *countingDevice) create(kind string) {
	d.mu.Lock()
	d.created[kind]++
	d.mu.Unlock()
}

func (d *countingDevice) failure(label string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures[label]
}

func (d *countingDevice) destroy(kind string) {
	d.mu.Lock()
	d.destroyed[kind]++
	d.mu.Unlock()
}

func (d *countingDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	if err := d.failure(desc.Label); err != nil {
		return nil, err
	}
	t, err := d.Device.CreateTexture(desc)
	if err == nil {
		d.create(ResTexture)
	}
	return t, err
}

func (d *countingDevice) DestroyTexture(t hal.Texture) {
	d.destroy(ResTexture)
	d.Device.DestroyTexture(t)
}

func (d *countingDevice) CreateTextureView(t hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	if err := d.failure(desc.Label); err != nil {
		return nil, err
	}
	v, err := d.Device.CreateTextureView(t, desc)
	if err == nil {
		d.create(ResTextureView)
	}
	return v, err
}

func (d *countingDevice) DestroyTextureView(v hal.TextureView) {
	d.destroy(ResTextureView)
	d.Device.DestroyTextureView(v)
}

func (d *countingDevice) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	if err := d.failure(desc.Label); err != nil {
		return nil, err
	}
	s, err := d.Device.CreateSampler(desc)
	if err == nil {
		d.create(ResSampler)
	}
	return s, err
}

func (d *countingDevice) DestroySampler(s hal.Sampler) {
	d.destroy(ResSampler)
	d.Device.DestroySampler(s)
}

func (d *countingDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if err := d.failure(desc.Label); err != nil {
		return nil, err
	}
	b, err := d.Device.CreateBuffer(desc)
	if err == nil {
		d.create(ResBuffer)
	}
	return b, err
}

func (d *countingDevice) DestroyBuffer(b hal.Buffer) {
	d.destroy(ResBuffer)
	d.Device.DestroyBuffer(b)
}

func (d *countingDevice) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	if err := d.failure(desc.Label); err != nil {
		return nil, err
	}
	m, err := d.Device.CreateShaderModule(desc)
	if err == nil {
		d.create(ResShaderModule)
	}
	return m, err
}

func (d *countingDevice) DestroyShaderModule(m hal.ShaderModule) {
	d.destroy(ResShaderModule)
	d.Device.DestroyShaderModule(m)
}

func (d *countingDevice) CreateBindGroupLayout(desc *hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error) {
	if err := d.failure(desc.Label); err != nil {
		return nil, err
	}
	l, err := d.Device.CreateBindGroupLayout(desc)
	if err == nil {
		d.create(ResBindGroupLayout)
	}
	return l, err
}

func (d *countingDevice) DestroyBindGroupLayout(l hal.BindGroupLayout) {
	d.destroy(ResBindGroupLayout)
	d.Device.DestroyBindGroupLayout(l)
}

func (d *countingDevice) CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	if err := d.failure(desc.Label); err != nil {
		return nil, err
	}
	l, err := d.Device.CreatePipelineLayout(desc)
	if err == nil {
		d.create(ResPipelineLayout)
	}
	return l, err
}

func (d *countingDevice) DestroyPipelineLayout(l hal.PipelineLayout) {
	d.destroy(ResPipelineLayout)
	d.Device.DestroyPipelineLayout(l)
}

func (d *countingDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	if err := d.failure(desc.Label); err != nil {
		return nil, err
	}
	p, err := d.Device.CreateRenderPipeline(desc)
	if err == nil {
		d.create(ResRenderPipeline)
	}
	return p, err
}

func (d *countingDevice) DestroyRenderPipeline(p hal.RenderPipeline) {
	d.destroy(ResRenderPipeline)
	d.Device.DestroyRenderPipeline(p)
}

func (d *countingDevice) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	if err := d.failure(desc.Label); err != nil {
		return nil, err
	}
	g, err := d.Device.CreateBindGroup(desc)
	if err == nil {
		d.create(ResBindGroup)
	}
	return g, err
}

func (d *countingDevice) DestroyBindGroup(g hal.BindGroup) {
	d.destroy(ResBindGroup)
	d.Device.DestroyBindGroup(g)
}
