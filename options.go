// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package fixrow

import "log"

const (
	defaultBufferSize   = 256 // records buffered before a write-behind flush
	defaultInitialSpace = 0
)

// config holds the resolved construction parameters for a Table,
// assembled from the defaults plus any Options passed to New.
type config struct {
	bufferSize       int
	initialSpace     int
	allowTailShadow  bool
	exceedArrayLimit bool
	logger           *log.Logger
	registry         *Registry
}

func newConfig(opts ...Option) *config {
	c := &config{
		bufferSize:      defaultBufferSize,
		initialSpace:    defaultInitialSpace,
		allowTailShadow: true,
		logger:          log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures a Table at construction time.
type Option func(*config)

// WithBufferSize sets how many records the RecordFile buffers in RAM
// before flushing to disk.
func WithBufferSize(records int) Option {
	return func(c *config) {
		if records > 0 {
			c.bufferSize = records
		}
	}
}

// WithInitialSpace hints how many records to pre-size the index and
// tail shadow for, when opening a file that is expected to grow.
func WithInitialSpace(records int) Option {
	return func(c *config) {
		if records > 0 {
			c.initialSpace = records
		}
	}
}

// WithTailShadow allows (the default) or forbids the in-RAM tail
// shadow entirely, regardless of available memory.
func WithTailShadow(allowed bool) Option {
	return func(c *config) {
		c.allowTailShadow = allowed
	}
}

// WithExceedArrayLimit permits the tail shadow to be planned even when
// its size would exceed the conservative maxArrayEntries bound that
// some JVMs (and this port, for parity) impose on a single array.
func WithExceedArrayLimit(exceed bool) Option {
	return func(c *config) {
		c.exceedArrayLimit = exceed
	}
}

// WithLogger overrides the *log.Logger used for load/eviction
// diagnostics. Passing nil silences logging entirely.
func WithLogger(logger *log.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithRegistry registers the Table under r at construction time and
// deregisters it from r on Close. Without this option a Table is not
// tracked by any Registry.
func WithRegistry(r *Registry) Option {
	return func(c *config) {
		c.registry = r
	}
}

func (c *config) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
