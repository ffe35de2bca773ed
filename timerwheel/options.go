package timerwheel

// Option configures a Wheel at construction. See WithNumBins,
// WithNumLevels and WithResolution.
//
// Grounded on the reference reactor's functional-options pattern
// (options.go's LoopOption / loopOptionImpl / resolveLoopOptions).
type Option interface {
	apply(*config)
}

type config struct {
	numBins    int
	numLevels  int
	resolution int64
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithNumBins sets the number of bins per level. Must be a power of two;
// defaults to 256.
func WithNumBins(n int) Option {
	return optionFunc(func(c *config) { c.numBins = n })
}

// WithNumLevels sets the number of cascading levels. Defaults to 3.
func WithNumLevels(n int) Option {
	return optionFunc(func(c *config) { c.numLevels = n })
}

// WithResolution sets the width, in cycles, of a single level-0 bin.
// Defaults to 1.
func WithResolution(cycles int64) Option {
	return optionFunc(func(c *config) { c.resolution = cycles })
}

func resolveOptions(opts []Option) config {
	c := config{
		numBins:    256,
		numLevels:  3,
		resolution: 1,
	}
	for _, o := range opts {
		o.apply(&c)
	}
	return c
}
