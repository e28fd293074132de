package docauth

import "time"

// Metrics receives counters from the bridge and the reaper.
// A nil Metrics is valid and records nothing.
type Metrics interface {
	RecordCredentialCacheHit()
	RecordCredentialMinted(duration time.Duration)
	RecordCredentialMintFailure()
	RecordSessionsReaped(deleted, failed int)
}

type noopMetrics struct{}

func (noopMetrics) RecordCredentialCacheHit() {}
func (noopMetrics) RecordCredentialMinted(time.Duration) {}
func (noopMetrics) RecordCredentialMintFailure() {}
func (noopMetrics) RecordSessionsReaped(deleted, failed int) {}

func metricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
