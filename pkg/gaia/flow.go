package gaia

import (
	"context"
	"fmt"
)

// Flow is a convenience builder so callers can say Conf → Options →
// Run without touching the underlying wiring.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// Conf loads the runtime YAML from disk, applies FlowOption values and
// returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it
// before building a runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends RuntimeOption values to the builder.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.opts = append(f.opts, opts...)
	return f
}

// Build constructs the Runtime without starting it.
func (f *Flow) Build() (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run builds the runtime and blocks until the context ends.
func (f *Flow) Run(ctx context.Context) error {
	rt, err := f.Build()
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}
