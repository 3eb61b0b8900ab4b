package weakc

import "go.uber.org/zap"

// Config defines configurable WeakBag and WeakStrongMap options.
type Config struct {
	sizeHint int
	logger   *zap.Logger
	liveness any
}

// WithPresize configures the initial capacity of a new collection.
// For a WeakBag it is the number of slots (at least 1). For a WeakStrongMap
// it is rounded up to a prime no smaller than the minimum map capacity.
// If sizeHint is zero or negative, the default is used.
func WithPresize(sizeHint int) func(*Config) {
	return func(c *Config) {
		c.sizeHint = sizeHint
	}
}

// WithLogger sets the logger used for growth, resize and sweep events.
// Without it the collection uses Logger().
func WithLogger(l *zap.Logger) func(*Config) {
	return func(c *Config) {
		c.logger = l
	}
}

// WithLiveness replaces the liveness check detected by DefaultLiveness.
// The element (or key) type of the collection must be T. A nil fn turns
// off the Destroyable check.
func WithLiveness[T any](fn func(*T) bool) func(*Config) {
	return func(c *Config) {
		c.liveness = Liveness[T](fn)
	}
}

func newConfig(options []func(*Config)) *Config {
	var cfg Config
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = Logger()
	}
	return &cfg
}
