package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for the relay, backed by any go-utils
// MetricFactory (fapp.Metrics() inside a forge app, or
// metrics.NewMetricsCollector for a standalone daemon). A nil *Metrics is
// valid and records nothing, so callers never need to guard.
//
// Outcomes get their own instrument rather than a label: collectors key
// instruments by name, and a labelled child is not registered with them.
type Metrics struct {
	ConnectionsActive gu.Gauge

	DecodeDrops      gu.Counter
	RateLimitedDrops gu.Counter

	SubmissionsOK     gu.Counter
	SubmissionsFailed gu.Counter
	SubmissionLatency gu.Histogram

	ConfirmationsReceived gu.Counter
	ConfirmationsFailed   gu.Counter
	ConfirmationsRejected gu.Counter

	PendingSubmissions  gu.Gauge
	ConfirmationTimeout gu.Counter
	BroadcastFailures   gu.Counter
}

// NewMetrics creates relay metric instruments using the supplied factory.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		ConnectionsActive: factory.Gauge("chatrelay_connections_active"),

		DecodeDrops:      factory.Counter("chatrelay_frames_dropped_decode_total"),
		RateLimitedDrops: factory.Counter("chatrelay_frames_dropped_rate_limited_total"),

		SubmissionsOK:     factory.Counter("chatrelay_submissions_ok_total"),
		SubmissionsFailed: factory.Counter("chatrelay_submissions_failed_total"),
		SubmissionLatency: factory.Histogram("chatrelay_submission_latency_seconds"),

		ConfirmationsReceived: factory.Counter("chatrelay_confirmations_received_total"),
		ConfirmationsFailed:   factory.Counter("chatrelay_confirmations_error_total"),
		ConfirmationsRejected: factory.Counter("chatrelay_confirmations_rejected_total"),

		PendingSubmissions:  factory.Gauge("chatrelay_pending_submissions"),
		ConfirmationTimeout: factory.Counter("chatrelay_confirmation_timeouts_total"),
		BroadcastFailures:   factory.Counter("chatrelay_broadcast_failures_total"),
	}
}

// SetConnections records the current registry size.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Set(float64(n))
}

// RecordDrop counts an inbound frame dropped for the given reason
// ("decode", "rate_limited").
func (m *Metrics) RecordDrop(reason string) {
	if m == nil {
		return
	}
	if reason == "rate_limited" {
		m.RateLimitedDrops.Inc()
		return
	}
	m.DecodeDrops.Inc()
}

// RecordSubmission records an outbound delivery call with its outcome
// ("ok", "failed") and latency.
func (m *Metrics) RecordSubmission(status string, latencySeconds float64) {
	if m == nil {
		return
	}
	if status == "ok" {
		m.SubmissionsOK.Inc()
	} else {
		m.SubmissionsFailed.Inc()
	}
	m.SubmissionLatency.Observe(latencySeconds)
}

// RecordConfirmation counts an inbound confirmation by resulting state
// ("received", "error"). Anything else is a rejection reason.
func (m *Metrics) RecordConfirmation(outcome string) {
	if m == nil {
		return
	}
	switch outcome {
	case "received":
		m.ConfirmationsReceived.Inc()
	case "error":
		m.ConfirmationsFailed.Inc()
	default:
		m.ConfirmationsRejected.Inc()
	}
}

// SetPending records the number of submissions awaiting confirmation.
func (m *Metrics) SetPending(n int64) {
	if m == nil {
		return
	}
	m.PendingSubmissions.Set(float64(n))
}

// RecordTimeouts counts submissions that were never confirmed.
func (m *Metrics) RecordTimeouts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ConfirmationTimeout.Add(float64(n))
}

// RecordBroadcastFailure counts individual channel sends that failed during
// a broadcast or targeted send.
func (m *Metrics) RecordBroadcastFailure() {
	if m == nil {
		return
	}
	m.BroadcastFailures.Inc()
}
