package phy

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/moffa90/go-cpphy/protocol"
)

// Metrics holds the Prometheus collectors updated by an Engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Transactions *prometheus.CounterVec // labels: control, mode=sync|async
	DecodeErrors *prometheus.CounterVec // labels: kind
	Timeouts     prometheus.Counter
	PollAttempts prometheus.Counter
	ReplyWait    prometheus.Histogram
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cpphy_transactions_total",
			Help: "Frames sent to the companion processor.",
		}, []string{"control", "mode"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cpphy_decode_errors_total",
			Help: "Replies rejected by the frame decoder.",
		}, []string{"kind"}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cpphy_reply_timeouts_total",
			Help: "Synchronous transactions that got no reply in time.",
		}),
		PollAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cpphy_poll_attempts_total",
			Help: "Ready-signal checks.",
		}),
		ReplyWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cpphy_reply_wait_seconds",
			Help:    "Time from command write to decoded reply.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	reg.MustRegister(m.Transactions, m.DecodeErrors, m.Timeouts, m.PollAttempts, m.ReplyWait)
	return m
}

func (m *Metrics) transaction(fc protocol.FrameControl, sync bool) {
	if m == nil {
		return
	}
	mode := "async"
	if sync {
		mode = "sync"
	}
	m.Transactions.WithLabelValues(fc.String(), mode).Inc()
}

func (m *Metrics) decodeError(err error) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(decodeErrorKind(err)).Inc()
}

func (m *Metrics) timeout() {
	if m == nil {
		return
	}
	m.Timeouts.Inc()
}

func (m *Metrics) pollAttempt() {
	if m == nil {
		return
	}
	m.PollAttempts.Inc()
}

func (m *Metrics) replyWait(d time.Duration) {
	if m == nil {
		return
	}
	m.ReplyWait.Observe(d.Seconds())
}

func decodeErrorKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrFrameTooSmall):
		return "frame_too_small"
	case errors.Is(err, protocol.ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, protocol.ErrUnknownFrameControl):
		return "unknown_frame_control"
	case errors.Is(err, protocol.ErrPayloadLengthMismatch):
		return "payload_length_mismatch"
	default:
		return "other"
	}
}
