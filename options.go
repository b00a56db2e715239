package popstore

import (
	"github.com/popgene/popstore/codec"
	"github.com/popgene/popstore/resource"
)

type options struct {
	logger          *Logger
	metrics         MetricsCollector
	depth           int
	controller      *resource.Controller
	codec           codec.Codec
	invariantChecks bool
}

func defaultOptions() options {
	return options{
		logger:          NoopLogger(),
		metrics:         noopMetrics{},
		depth:           0,
		codec:           codec.Default,
		invariantChecks: true,
	}
}

// Option configures Population construction.
type Option func(*options)

// WithLogger sets the structured logger. Nil restores the no-op logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics sink. Nil disables metrics.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = noopMetrics{}
		}
		o.metrics = m
	}
}

// WithAncestralDepth sets the number of prior generations retained by
// PushAndDiscard. 0 retains none; a negative depth retains every generation.
func WithAncestralDepth(depth int) Option {
	return func(o *options) {
		o.depth = depth
	}
}

// WithResourceController attaches a memory budget controller. Buffer
// reallocation that would exceed the budget fails with a ResourceError and
// leaves the population unchanged.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithCodec sets the codec used for the schema section of snapshots.
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithInvariantChecks toggles the internal consistency verification run by
// every public mutator. Enabled by default; disable only in hot paths that
// have been validated elsewhere.
func WithInvariantChecks(enabled bool) Option {
	return func(o *options) {
		o.invariantChecks = enabled
	}
}
