// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"
)

// GPU context and resource errors.
var (
	// ErrNoBackend is returned when the requested HAL backend is not
	// registered.
	ErrNoBackend = errors.New("gpu: backend not available")

	// ErrNoAdapter is returned when the instance exposes no adapters.
	ErrNoAdapter = errors.New("gpu: no GPU adapters found")

	// ErrNoHalDevice is returned when a device provider does not expose
	// HAL device and queue.
	ErrNoHalDevice = errors.New("gpu: provider does not expose HAL device")

	// ErrUnsupportedFormat is returned when no 8-bit RGBA color format
	// can be negotiated.
	ErrUnsupportedFormat = errors.New("gpu: no 8-bit RGBA color format")

	// ErrNoContext is returned when an operation needs a created context.
	ErrNoContext = errors.New("gpu: context not created")

	// ErrNoSurface is returned by Attach when no rendering surface exists.
	ErrNoSurface = errors.New("gpu: no rendering surface")

	// ErrAlreadyAttached is returned by Attach while a binding is active.
	ErrAlreadyAttached = errors.New("gpu: context already attached")

	// ErrNotAttached is returned when a GPU call is made without an
	// active binding.
	ErrNotAttached = errors.New("gpu: context not attached")

	// ErrNoFrame is returned by Swap when no frame was started, and by
	// Capture when the screenshot primitive produced no image.
	ErrNoFrame = errors.New("gpu: no frame")

	// ErrDisplayUnavailable is returned by Capture when the display
	// cannot be resolved.
	ErrDisplayUnavailable = errors.New("gpu: display unavailable")

	// ErrUnresolvedSlot is returned by Load when a shader attribute,
	// uniform or binding cannot be found by name.
	ErrUnresolvedSlot = errors.New("gpu: unresolved shader slot")

	// ErrInvalidDimensions is returned when width or height is not positive.
	ErrInvalidDimensions = errors.New("gpu: invalid dimensions")

	// ErrNotLoaded is returned when drawing with a program that has not
	// been loaded or has no geometry.
	ErrNotLoaded = errors.New("gpu: program not loaded")
)

// ShaderStage names the pipeline stage a shader belongs to.
type ShaderStage string

const (
	StageVertex   ShaderStage = "vertex"
	StageFragment ShaderStage = "fragment"
)

// ShaderError reports a shader that failed to compile.
type ShaderError struct {
	Stage ShaderStage
	Name  string
	Err   error
}

func (e *ShaderError) Error() string {
	return fmt.Sprintf("gpu: compile %s shader %q: %v", e.Stage, e.Name, e.Err)
}

func (e *ShaderError) Unwrap() error { return e.Err }

// callError is one accumulated GPU error, tagged with the failing call.
type callError struct {
	call string
	err  error
}

func (e *callError) Error() string {
	return e.call + ": " + e.err.Error()
}

func (e *callError) Unwrap() error { return e.err }
