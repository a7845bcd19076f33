package session

import (
	"time"

	"github.com/satriahrh/segstream/domain/entities"
)

// metricsTracker accumulates counters; owned by the session loop
type metricsTracker struct {
	m entities.Metrics

	processingTotal time.Duration
	successes       int64
	roundTripTotal  time.Duration
	parsed          int64
	lastSequence    int64

	windowStart   time.Time
	windowResults int64
}

func (t *metricsTracker) markStart(now time.Time) {
	t.windowStart = now
	t.windowResults = 0
}

func (t *metricsTracker) frameSent() {
	t.m.FramesSent++
}

// resultReceived records a parsed result and reports a non-increasing sequence number
func (t *metricsTracker) resultReceived(r entities.FrameResult) (anomaly bool) {
	t.m.ResultsReceived++
	t.windowResults++
	t.parsed++

	t.m.LastRoundTrip = r.RoundTrip
	t.roundTripTotal += r.RoundTrip
	t.m.AvgRoundTrip = t.roundTripTotal / time.Duration(t.parsed)

	if !r.Success {
		t.m.FailedResults++
		if r.SequenceNumber > t.lastSequence {
			t.lastSequence = r.SequenceNumber
		}
		return false
	}

	t.successes++
	t.m.LastProcessingTime = r.ProcessingDuration()
	t.processingTotal += t.m.LastProcessingTime
	t.m.AvgProcessingTime = t.processingTotal / time.Duration(t.successes)

	if r.SequenceNumber <= t.lastSequence {
		t.m.SequenceAnomalies++
		anomaly = true
	}
	t.lastSequence = r.SequenceNumber
	return anomaly
}

func (t *metricsTracker) malformed() {
	t.m.ResultsReceived++
	t.m.MalformedResults++
	t.windowResults++
}

func (t *metricsTracker) snapshot(now time.Time, maxOutstanding int) entities.Metrics {
	m := t.m
	m.MaxOutstanding = maxOutstanding
	if !t.windowStart.IsZero() {
		if elapsed := now.Sub(t.windowStart).Seconds(); elapsed > 0 {
			m.EffectiveFPS = float64(t.windowResults) / elapsed
		}
	}
	return m
}
