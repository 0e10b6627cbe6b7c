package muzzle

import "time"

// MetricsRecorder observes matcher activity. Implementations must be safe
// for concurrent use.
type MetricsRecorder interface {
	CacheHit()
	CacheMiss()
	// MatchEvaluated is called after a cached match result was computed.
	MatchEvaluated(matched bool, elapsed time.Duration)
	// MismatchFound is called for every mismatch a full check reports.
	MismatchFound(kind string)
}

type noopMetrics struct{}

func (noopMetrics) CacheHit()                          {}
func (noopMetrics) CacheMiss()                         {}
func (noopMetrics) MatchEvaluated(bool, time.Duration) {}
func (noopMetrics) MismatchFound(string)               {}
