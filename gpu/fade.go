// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Names the fade shaders must declare.
const (
	attrPosition = "position"
	attrUV       = "uv"

	uniformProjMatrix = "proj_matrix"
	uniformTexMatrix  = "tex_matrix"
	uniformOpacity    = "opacity"
	uniformGamma      = "gamma"

	textureUnit    = "tex_unit"
	textureSampler = "tex_sampler"
)

// FadeProgram draws a captured frame with the fade applied. It owns the
// shader modules, the render pipeline and the quad geometry.
type FadeProgram struct {
	loader ShaderLoader

	slots      *shaderSlots
	vertModule hal.ShaderModule
	fragModule hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
	uniformBuf hal.Buffer
	uniforms   []byte

	// Bind group for the frame view it was created with.
	bindGroup hal.BindGroup
	boundView hal.TextureView

	positionBuf hal.Buffer
	uvBuf       hal.Buffer
}

// NewFadeProgram returns an unloaded program reading its shaders through
// loader. A nil loader selects EmbeddedShaders.
func NewFadeProgram(loader ShaderLoader) *FadeProgram {
	if loader == nil {
		loader = EmbeddedShaders
	}
	return &FadeProgram{loader: loader}
}

// Load compiles both shaders, links them into a render pipeline for the
// binding's color format and resolves every attribute and uniform slot.
// On failure nothing stays allocated.
func (p *FadeProgram) Load(b *Binding) error {
	if err := b.active(); err != nil {
		return err
	}
	if p.pipeline != nil {
		return nil
	}

	vertSrc, err := p.loader(VertexShader)
	if err != nil {
		return err
	}
	fragSrc, err := p.loader(FragmentShader)
	if err != nil {
		return err
	}

	slots, err := reflectShaders(vertSrc, fragSrc)
	if err != nil {
		return err
	}
	err = slots.require(
		[]string{attrPosition, attrUV},
		[]string{uniformProjMatrix, uniformTexMatrix, uniformOpacity, uniformGamma},
		textureUnit, textureSampler,
	)
	if err != nil {
		return err
	}

	if err := p.link(b, slots, vertSrc, fragSrc); err != nil {
		p.DestroyProgram(b)
		return err
	}
	p.slots = slots
	p.uniforms = make([]byte, slots.uniformSize)
	slogger().Debug("gpu: fade program loaded", "uniformSize", slots.uniformSize)
	return nil
}

func (p *FadeProgram) link(b *Binding, slots *shaderSlots, vertSrc, fragSrc string) error {
	device := b.Device()

	vert, err := createShader(device, StageVertex, VertexShader, vertSrc)
	if err != nil {
		return err
	}
	p.vertModule = vert

	frag, err := createShader(device, StageFragment, FragmentShader, fragSrc)
	if err != nil {
		return err
	}
	p.fragModule = frag

	bindLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "colorfade_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    slots.uniformBinding,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    slots.textures[textureUnit],
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    slots.samplers[textureSampler],
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "colorfade_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout

	uniformBuf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "colorfade_uniforms",
		Size:  slots.uniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	p.uniformBuf = uniformBuf

	pipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "colorfade_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.vertModule,
			EntryPoint: "vs_main",
			Buffers: []gputypes.VertexBufferLayout{
				{
					ArrayStride: 8,
					StepMode:    gputypes.VertexStepModeVertex,
					Attributes: []gputypes.VertexAttribute{
						{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: slots.attributes[attrPosition]},
					},
				},
				{
					ArrayStride: 8,
					StepMode:    gputypes.VertexStepModeVertex,
					Attributes: []gputypes.VertexAttribute{
						{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: slots.attributes[attrUV]},
					},
				},
			},
		},
		Fragment: &hal.FragmentState{
			Module:     p.fragModule,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    b.Format(),
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleStrip,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("create render pipeline: %w", err)
	}
	p.pipeline = pipeline
	return nil
}

// Loaded reports whether the pipeline is linked.
func (p *FadeProgram) Loaded() bool { return p.pipeline != nil }

// UploadGeometry uploads the width x height display quad into static
// position and texture coordinate buffers, replacing earlier ones.
func (p *FadeProgram) UploadGeometry(b *Binding, width, height int) error {
	if err := b.active(); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	p.DestroyBuffers(b)

	usage := gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
	positions, err := createAndUploadBuffer(b, "colorfade_positions",
		float32Bytes(quadPositions(float32(width), float32(height))), usage)
	if err != nil {
		return err
	}
	p.positionBuf = positions

	uvs, err := createAndUploadBuffer(b, "colorfade_uvs", float32Bytes(quadUVs()), usage)
	if err != nil {
		p.DestroyBuffers(b)
		return err
	}
	p.uvBuf = uvs
	return nil
}

// createAndUploadBuffer creates a GPU buffer and uploads data.
func createAndUploadBuffer(b *Binding, label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := b.Device().CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	b.Queue().WriteBuffer(buf, 0, data)
	return buf, nil
}

// BufferCount returns the number of live vertex buffers.
func (p *FadeProgram) BufferCount() int {
	n := 0
	if p.positionBuf != nil {
		n++
	}
	if p.uvBuf != nil {
		n++
	}
	return n
}

// DrawFrame records one draw of the quad sampling frame with the given
// fade uniforms into the binding's current pass. It neither clears nor
// swaps. GPU failures are recorded on the binding.
func (p *FadeProgram) DrawFrame(b *Binding, opacity, gamma float32, frame *CapturedFrame, proj [16]float32) error {
	if err := b.active(); err != nil {
		return err
	}
	if p.pipeline == nil || p.positionBuf == nil || p.uvBuf == nil {
		return ErrNotLoaded
	}
	if frame == nil || frame.View == nil {
		return ErrNoFrame
	}

	putFloat32s(p.uniforms, p.slots.uniforms[uniformProjMatrix], proj[:]...)
	putFloat32s(p.uniforms, p.slots.uniforms[uniformTexMatrix], frame.Transform[:]...)
	putFloat32s(p.uniforms, p.slots.uniforms[uniformOpacity], opacity)
	putFloat32s(p.uniforms, p.slots.uniforms[uniformGamma], gamma)
	b.Queue().WriteBuffer(p.uniformBuf, 0, p.uniforms)

	if err := p.bindFrame(b, frame); err != nil {
		b.fail("CreateBindGroup", err)
		return nil
	}

	rp := b.Pass()
	if rp == nil {
		return nil
	}
	rp.SetPipeline(p.pipeline)
	rp.SetBindGroup(0, p.bindGroup, nil)
	rp.SetVertexBuffer(0, p.positionBuf, 0)
	rp.SetVertexBuffer(1, p.uvBuf, 0)
	rp.Draw(quadVertexCount, 1, 0, 0)
	return nil
}

// bindFrame makes the bind group reference frame's texture.
func (p *FadeProgram) bindFrame(b *Binding, frame *CapturedFrame) error {
	if p.bindGroup != nil && p.boundView == frame.View {
		return nil
	}
	device := b.Device()
	if p.bindGroup != nil {
		device.DestroyBindGroup(p.bindGroup)
		p.bindGroup, p.boundView = nil, nil
	}
	bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "colorfade_bind_group",
		Layout: p.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{
				Binding: p.slots.uniformBinding,
				Resource: gputypes.BufferBinding{
					Buffer: p.uniformBuf.NativeHandle(), Offset: 0, Size: p.slots.uniformSize,
				},
			},
			{
				Binding: p.slots.textures[textureUnit],
				Resource: gputypes.TextureViewBinding{
					TextureView: frame.View.NativeHandle(),
				},
			},
			{
				Binding: p.slots.samplers[textureSampler],
				Resource: gputypes.SamplerBinding{
					Sampler: frame.Sampler.NativeHandle(),
				},
			},
		},
	})
	if err != nil {
		return err
	}
	p.bindGroup, p.boundView = bg, frame.View
	return nil
}

// DestroyProgram releases the pipeline and everything it was linked
// from, in reverse creation order.
func (p *FadeProgram) DestroyProgram(b *Binding) {
	if b.active() != nil {
		return
	}
	device := b.Device()
	if p.bindGroup != nil {
		device.DestroyBindGroup(p.bindGroup)
		p.bindGroup, p.boundView = nil, nil
	}
	if p.pipeline != nil {
		device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.uniformBuf != nil {
		device.DestroyBuffer(p.uniformBuf)
		p.uniformBuf = nil
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.fragModule != nil {
		device.DestroyShaderModule(p.fragModule)
		p.fragModule = nil
	}
	if p.vertModule != nil {
		device.DestroyShaderModule(p.vertModule)
		p.vertModule = nil
	}
	p.slots = nil
	p.uniforms = nil
}

// DestroyBuffers releases the vertex buffers.
func (p *FadeProgram) DestroyBuffers(b *Binding) {
	if b.active() != nil {
		return
	}
	device := b.Device()
	if p.uvBuf != nil {
		device.DestroyBuffer(p.uvBuf)
		p.uvBuf = nil
	}
	if p.positionBuf != nil {
		device.DestroyBuffer(p.positionBuf)
		p.positionBuf = nil
	}
}

// Destroy releases the program and its buffers.
func (p *FadeProgram) Destroy(b *Binding) {
	p.DestroyBuffers(b)
	p.DestroyProgram(b)
}
