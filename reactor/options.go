package reactor

// reactorOptions holds configuration options for New.
//
// Grounded on the reference reactor's functional-options pattern
// (options.go's LoopOption / loopOptionImpl / resolveLoopOptions).
type reactorOptions struct {
	maxFibers int
}

// Option configures a Reactor instance.
type Option interface {
	apply(*reactorOptions)
}

type optionImpl struct {
	applyFunc func(*reactorOptions)
}

func (o *optionImpl) apply(opts *reactorOptions) { o.applyFunc(opts) }

// WithMaxFibers sets the maximum number of concurrently live fibers the
// reactor's FixedPool can hold. Defaults to 4096.
func WithMaxFibers(n int) Option {
	return &optionImpl{func(opts *reactorOptions) { opts.maxFibers = n }}
}

func resolveOptions(opts []Option) reactorOptions {
	cfg := reactorOptions{
		maxFibers: 4096,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(&cfg)
	}
	return cfg
}
