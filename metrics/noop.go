package metrics

import "time"

// Noop satisfies Sink with zero-cost stubs. Spec §4.5 requires that a no-op
// implementation satisfy all tests; this is that implementation, and it is
// the default used throughout this module's own runtime tests.
type Noop struct{}

var _ Sink = Noop{}

func (Noop) IncReceived(string, int)                       {}
func (Noop) IncSucceeded(string, int)                       {}
func (Noop) IncInvalid(string, int)                         {}
func (Noop) IncRetried(string, int)                         {}
func (Noop) IncErrored(string, int)                         {}
func (Noop) ObserveBatchSize(string, int)                   {}
func (Noop) ObserveProcessingDuration(string, time.Duration) {}
func (Noop) SetHealthy(bool)                                 {}
