package phy

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-cpphy/protocol"
)

func prometheusRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	return prometheus.NewRegistry()
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}

func TestMetrics(t *testing.T) {
	reg := prometheusRegistry(t)
	m := NewMetrics(reg)
	f := newFakeLink()
	e := openTestEngine(t, f, WithMetrics(m))

	_, err := e.SendTelegramSDR(context.Background(), []byte{0x01}, true)
	require.NoError(t, err)
	_, err = e.SendTelegramSDN(context.Background(), []byte{0x01}, false)
	require.NoError(t, err)

	f.readBuf = nil
	f.edges = 0
	f.inject([]byte{0x06, 0x00, 0x00})
	_, err = e.PollReply()
	require.Error(t, err)

	assert.Equal(t, 1.0, counterValue(t, m.Transactions.WithLabelValues("RESET", "sync")))
	assert.Equal(t, 1.0, counterValue(t, m.Transactions.WithLabelValues("PB_SDR_REQUEST", "sync")))
	assert.Equal(t, 1.0, counterValue(t, m.Transactions.WithLabelValues("PB_SDN_REQUEST", "async")))
	assert.Equal(t, 1.0, counterValue(t, m.DecodeErrors.WithLabelValues("checksum_mismatch")))
	assert.GreaterOrEqual(t, counterValue(t, m.PollAttempts), 3.0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.ReplyWait))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.transaction(protocol.ControlReset, true)
	m.decodeError(protocol.ErrChecksumMismatch)
	m.timeout()
	m.pollAttempt()
	m.replyWait(0)
}

func TestDecodeErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&protocol.DecodeError{Err: protocol.ErrFrameTooSmall}, "frame_too_small"},
		{&protocol.DecodeError{Err: protocol.ErrChecksumMismatch}, "checksum_mismatch"},
		{&protocol.DecodeError{Err: protocol.ErrUnknownFrameControl}, "unknown_frame_control"},
		{&protocol.DecodeError{Err: protocol.ErrPayloadLengthMismatch}, "payload_length_mismatch"},
		{errors.New("other"), "other"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, decodeErrorKind(tt.err))
	}
}
