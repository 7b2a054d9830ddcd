// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"
	"image"
	"runtime"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// OpaqueBlack is the clear color of every fade frame.
var OpaqueBlack = gputypes.Color{R: 0, G: 0, B: 0, A: 1}

// Binding is an attached Context. It records the frame being built and
// the GPU errors raised since the last CheckErrors.
//
// A Binding is only valid on the goroutine that called Attach, until
// Detach.
type Binding struct {
	ctx      *Context
	detached bool

	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder

	errs []error
}

// active returns ErrNotAttached for a nil or detached binding.
func (b *Binding) active() error {
	if b == nil || b.detached || b.ctx == nil || b.ctx.binding != b {
		return ErrNotAttached
	}
	return nil
}

// fail records a GPU error raised by call.
func (b *Binding) fail(call string, err error) {
	b.errs = append(b.errs, &callError{call: call, err: err})
}

// Device returns the device of the attached context.
func (b *Binding) Device() hal.Device { return b.ctx.device }

// Queue returns the queue of the attached context.
func (b *Binding) Queue() hal.Queue { return b.ctx.queue }

// Format returns the color format of the rendering surface.
func (b *Binding) Format() gputypes.TextureFormat { return b.ctx.format }

// Clear starts a new frame cleared to c, discarding any frame in progress.
// Failures are recorded for CheckErrors.
func (b *Binding) Clear(c gputypes.Color) {
	if err := b.active(); err != nil {
		return
	}
	b.discard()
	b.begin(gputypes.LoadOpClear, c)
}

// Pass returns the render pass of the current frame, starting one that
// keeps the previous contents if Clear was not called. It returns nil
// after a recorded failure.
func (b *Binding) Pass() hal.RenderPassEncoder {
	if err := b.active(); err != nil {
		return nil
	}
	if b.pass == nil {
		b.begin(gputypes.LoadOpLoad, gputypes.Color{})
	}
	return b.pass
}

func (b *Binding) begin(load gputypes.LoadOp, c gputypes.Color) {
	rs := b.ctx.surface
	encoder, err := b.ctx.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "colorfade_encoder",
	})
	if err != nil {
		b.fail("CreateCommandEncoder", err)
		return
	}
	if err := encoder.BeginEncoding("colorfade_frame"); err != nil {
		b.fail("BeginEncoding", err)
		return
	}
	b.encoder = encoder
	b.pass = encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "colorfade_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       rs.view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: c,
		}},
	})
}

// discard drops the frame in progress without submitting it.
func (b *Binding) discard() {
	if b.pass != nil {
		b.pass.End()
		b.pass = nil
	}
	if b.encoder != nil {
		b.encoder.DiscardEncoding()
		b.encoder = nil
	}
}

// CheckErrors drains the recorded GPU errors. Each one is logged with op
// and the failing call; the joined errors are returned, or nil when none
// were recorded.
func (b *Binding) CheckErrors(op string) error {
	if err := b.active(); err != nil {
		return err
	}
	if len(b.errs) == 0 {
		return nil
	}
	for _, err := range b.errs {
		var ce *callError
		if errors.As(err, &ce) {
			slogger().Error("gpu: error", "op", op, "call", ce.call, "err", ce.err)
		} else {
			slogger().Error("gpu: error", "op", op, "err", err)
		}
	}
	err := fmt.Errorf("%s: %w", op, errors.Join(b.errs...))
	b.errs = nil
	return err
}

// Swap presents the current frame: the pass is ended, the render target
// is copied back through the staging buffer and the image is posted to
// the drawable.
func (b *Binding) Swap() error {
	if err := b.active(); err != nil {
		return err
	}
	if b.encoder == nil {
		return ErrNoFrame
	}
	rs := b.ctx.surface
	device, queue := b.ctx.device, b.ctx.queue

	b.pass.End()
	b.pass = nil
	encoder := b.encoder
	b.encoder = nil

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: rs.target,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(rs.target, rs.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: rs.alignedBytesPerRow, RowsPerImage: rs.height},
		TextureBase:  hal.ImageCopyTexture{Texture: rs.target, MipLevel: 0},
		Size:         hal.Extent3D{Width: rs.width, Height: rs.height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: rs.target,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmdBuf)

	if err := b.submitAndWait([]hal.CommandBuffer{cmdBuf}); err != nil {
		return err
	}

	readback := make([]byte, uint64(rs.alignedBytesPerRow)*uint64(rs.height))
	if err := queue.ReadBuffer(rs.staging, 0, readback); err != nil {
		return fmt.Errorf("readback: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, int(rs.width), int(rs.height)))
	for row := 0; row < int(rs.height); row++ {
		src := readback[row*int(rs.alignedBytesPerRow) : row*int(rs.alignedBytesPerRow)+int(rs.bytesPerRow)]
		copy(img.Pix[row*img.Stride:], src)
	}
	if isBGRA(b.ctx.format) {
		swizzleBGRA(img.Pix)
	}

	if rs.drawable == nil {
		return nil
	}
	if err := rs.drawable.Post(img); err != nil {
		return fmt.Errorf("post frame: %w", err)
	}
	return nil
}

// Flush blocks until all submitted GPU work has completed.
func (b *Binding) Flush() error {
	if err := b.active(); err != nil {
		return err
	}
	return b.submitAndWait(nil)
}

func (b *Binding) submitAndWait(cmds []hal.CommandBuffer) error {
	device := b.ctx.device
	fence, err := device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer device.DestroyFence(fence)

	if err := b.ctx.queue.Submit(cmds, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := device.Wait(fence, 1, b.ctx.opts.fenceTimeout)
	if err != nil || !ok {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", ok, err)
	}
	return nil
}

// Detach releases the context from the calling goroutine. Any frame in
// progress is discarded and undrained errors are logged. Detach is safe
// to call more than once.
func (b *Binding) Detach() {
	if b.active() != nil {
		return
	}
	b.discard()
	for _, err := range b.errs {
		slogger().Warn("gpu: undrained error at detach", "err", err)
	}
	b.errs = nil
	b.detached = true
	b.ctx.binding = nil
	runtime.UnlockOSThread()
}
