package imp

import "github.com/gogpu/imp/gpucore"

// DefaultMaxInFlight is the number of command buffers that may be committed
// but not yet completed on one Context.
const DefaultMaxInFlight = 3

// ContextOption configures a Context during creation.
//
// Example:
//
//	ctx, err := imp.NewContext(dev,
//	    imp.WithHazardPolicy(imp.Deferred),
//	    imp.WithMemoryBudget(512<<20),
//	)
type ContextOption func(*contextOptions)

// contextOptions holds optional configuration for Context creation.
type contextOptions struct {
	policy         HazardPolicy
	maxInFlight    int
	memoryBudget   uint64
	maxTextureSize int
}

// defaultOptions returns the default context options.
func defaultOptions() contextOptions {
	return contextOptions{
		policy:      Immediate,
		maxInFlight: DefaultMaxInFlight,
	}
}

// WithHazardPolicy selects how filter passes hand buffers to each other.
func WithHazardPolicy(p HazardPolicy) ContextOption {
	return func(o *contextOptions) {
		o.policy = p
	}
}

// WithMaxInFlight bounds the number of outstanding command buffers. Values
// below 1 keep the default.
func WithMaxInFlight(n int) ContextOption {
	return func(o *contextOptions) {
		if n > 0 {
			o.maxInFlight = n
		}
	}
}

// WithMemoryBudget caps the bytes of textures the Context allocator keeps.
// Purgeable textures are evicted, least recently used first, to stay under
// it. Zero means unlimited.
func WithMemoryBudget(bytes uint64) ContextOption {
	return func(o *contextOptions) {
		o.memoryBudget = bytes
	}
}

// WithMaxTextureSize lowers the largest texture side the Context reports.
// The device limit still applies.
func WithMaxTextureSize(n int) ContextOption {
	return func(o *contextOptions) {
		o.maxTextureSize = n
	}
}

// FilterOption configures a Filter during creation.
type FilterOption func(*Filter)

// WithName labels the filter in logs and texture labels.
func WithName(name string) FilterOption {
	return func(f *Filter) {
		f.name = name
	}
}

// WithDestinationSize fixes the output size of every pass of the filter.
func WithDestinationSize(size gpucore.Size) FilterOption {
	return func(f *Filter) {
		f.destSize = size
	}
}
