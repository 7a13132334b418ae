package protocol

import "github.com/benbjohnson/clock"

type options struct {
	clock   clock.Clock
	metrics *Metrics
	trace   *Trace
}

// Option customizes a Sender or Receiver.
type Option func(*options)

// WithClock replaces the wall clock driving timers and traces.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTrace records the sender's congestion window or the receiver's arrivals.
func WithTrace(t *Trace) Option {
	return func(o *options) { o.trace = t }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	return o
}
