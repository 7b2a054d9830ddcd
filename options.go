package colorfade

import (
	"log/slog"

	"github.com/gogpu/colorfade/display"
	"github.com/gogpu/colorfade/gpu"
	"github.com/gogpu/gpucontext"
)

// Option configures a Controller during creation.
// Use functional options to customize Controller behavior.
//
// Example:
//
//	// Default display, private Vulkan device
//	cf := colorfade.New(comp, displays, displays, displays)
//
//	// Second display, rendering on the device of a running gogpu app
//	cf := colorfade.New(comp, displays, displays, displays,
//	    colorfade.WithDisplayID(1),
//	    colorfade.WithDeviceProvider(app))
type Option func(*options)

// options holds optional configuration for Controller creation.
type options struct {
	displayID  int
	logger     *slog.Logger
	gpuOptions []gpu.ContextOption
	loader     gpu.ShaderLoader
}

// defaultOptions returns the default controller options.
func defaultOptions() options {
	return options{
		displayID: display.DefaultID,
		loader:    gpu.EmbeddedShaders,
	}
}

// WithDisplayID selects the display the fade covers.
func WithDisplayID(id int) Option {
	return func(o *options) {
		o.displayID = id
	}
}

// WithLogger sets a logger for this Controller only. Without it the
// Controller logs through Logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithContextOptions passes options to the GPU context created for each
// rendered session.
//
// Example:
//
//	cf := colorfade.New(comp, d, d, d,
//	    colorfade.WithContextOptions(gpu.WithBackend(gputypes.BackendVulkan)))
func WithContextOptions(opts ...gpu.ContextOption) Option {
	return func(o *options) {
		o.gpuOptions = append(o.gpuOptions, opts...)
	}
}

// WithDeviceProvider renders on the device of an external provider, such
// as a gogpu application, instead of opening a private device.
// Shorthand for WithContextOptions(gpu.WithDeviceProvider(p)).
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return WithContextOptions(gpu.WithDeviceProvider(p))
}

// WithShaderLoader replaces the embedded WGSL sources of the fade shader.
// A nil loader restores the embedded sources.
func WithShaderLoader(l gpu.ShaderLoader) Option {
	return func(o *options) {
		if l == nil {
			l = gpu.EmbeddedShaders
		}
		o.loader = l
	}
}
