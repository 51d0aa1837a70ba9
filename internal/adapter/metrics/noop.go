package metrics

import "time"

// NoopSink discards all metrics; used in tests.
type NoopSink struct{}

// NewNoopSink creates a sink that records nothing.
func NewNoopSink() *NoopSink { return &NoopSink{} }

func (*NoopSink) IncPayment(string)                        {}
func (*NoopSink) IncTransition(string, string)             {}
func (*NoopSink) IncRateLimited(string)                    {}
func (*NoopSink) IncLockTimeout()                          {}
func (*NoopSink) IncDeadlock()                             {}
func (*NoopSink) IncWebhook(string)                        {}
func (*NoopSink) ObserveOperation(string, time.Duration)   {}
