// File: selector/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Functional options for Open.

package selector

import (
	"go.uber.org/zap"

	"github.com/momentics/fanpoll/control"
)

// Option customizes selector construction.
type Option func(*Selector)

// WithLogger routes the selector's structured log output. The default is a
// no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Selector) {
		s.log = log
	}
}

// WithMetrics attaches a metrics registry the selector feeds once per
// round: round and updated-key counters, helper and key-population gauges.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(s *Selector) {
		s.metrics = m
	}
}

// WithProbes registers the selector's live-state probe in pr under its
// instance ID for the lifetime of the selector.
func WithProbes(pr *control.ProbeRegistry) Option {
	return func(s *Selector) {
		s.probes = pr
	}
}

// withMaxFDs shrinks the per-slice descriptor ceiling. Test hook: slice
// arithmetic is identical at any ceiling, and small values let fan-out be
// exercised without thousands of descriptors.
func withMaxFDs(n int) Option {
	return func(s *Selector) {
		s.maxFDs = n
	}
}
