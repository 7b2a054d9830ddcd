// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// InstanceCreator creates HAL instances. Registered hal backends and the
// hal/noop API satisfy it.
type InstanceCreator interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// ContextOption configures a Context.
//
// Example:
//
//	// Default: Vulkan backend, private device
//	ctx := gpu.NewContext()
//
//	// Share the device of a running gogpu application
//	ctx := gpu.NewContext(gpu.WithDeviceProvider(app))
type ContextOption func(*contextOptions)

type contextOptions struct {
	backend      gputypes.Backend
	creator      InstanceCreator
	provider     gpucontext.DeviceProvider
	fenceTimeout time.Duration
}

func defaultContextOptions() contextOptions {
	return contextOptions{
		backend:      gputypes.BackendVulkan,
		fenceTimeout: 5 * time.Second,
	}
}

// WithBackend selects the registered HAL backend used to create the
// instance. Ignored when WithInstanceCreator or WithDeviceProvider is set.
func WithBackend(b gputypes.Backend) ContextOption {
	return func(o *contextOptions) {
		o.backend = b
	}
}

// WithInstanceCreator creates the instance through c instead of a
// registered backend. Tests pass &noop.API{}.
func WithInstanceCreator(c InstanceCreator) ContextOption {
	return func(o *contextOptions) {
		o.creator = c
	}
}

// WithDeviceProvider renders on the device of an external provider. The
// provider must also expose HalDevice() and HalQueue(). The shared device
// is never destroyed by the Context.
func WithDeviceProvider(p gpucontext.DeviceProvider) ContextOption {
	return func(o *contextOptions) {
		o.provider = p
	}
}

// WithFenceTimeout bounds how long Swap and Flush wait for the GPU.
func WithFenceTimeout(d time.Duration) ContextOption {
	return func(o *contextOptions) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}
