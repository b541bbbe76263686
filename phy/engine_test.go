package phy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-cpphy/protocol"
)

// fakeLink implements Transport, Signal and ControlLine in memory.
type fakeLink struct {
	written   [][]byte
	readBuf   []byte
	edges     int
	polls     int
	quietFor  int
	responder func(req []byte) [][]byte

	cfg             TransportConfig
	resetLevels     []bool
	readyEdge       Edge
	opened          bool
	transportClosed bool
	readyReleased   bool
	resetReleased   bool

	openErr      error
	configErr    error
	configureErr error
	writeErr     error
	readErr      error
	latchErr     error
}

func newFakeLink() *fakeLink {
	return &fakeLink{responder: ackResponder}
}

// ackResponder answers like the companion firmware does.
func ackResponder(req []byte) [][]byte {
	switch protocol.FrameControl(req[0]) {
	case protocol.ControlSDRRequest:
		return [][]byte{mustEncode(protocol.ControlSDRReply, req[protocol.HeaderSize:])}
	default:
		return [][]byte{mustEncode(protocol.ControlACK, nil)}
	}
}

func mustEncode(fc protocol.FrameControl, payload []byte) []byte {
	buf, err := protocol.Encode(fc, payload)
	if err != nil {
		panic(err)
	}
	return buf
}

func (f *fakeLink) hardware() Hardware {
	return Hardware{Transport: f, Ready: f, Reset: f}
}

func (f *fakeLink) inject(raw []byte) {
	f.readBuf = append(f.readBuf, raw...)
	f.edges++
}

func (f *fakeLink) Open(bus, device int) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeLink) Configure(cfg TransportConfig) error {
	if f.configErr != nil {
		return f.configErr
	}
	f.cfg = cfg
	return nil
}

func (f *fakeLink) WriteBytes(p []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), p...))
	if f.responder != nil {
		for _, reply := range f.responder(p) {
			f.inject(reply)
		}
	}
	return nil
}

func (f *fakeLink) ReadBytes(n int) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if len(f.readBuf) < n {
		return nil, io.ErrUnexpectedEOF
	}
	out := append([]byte(nil), f.readBuf[:n]...)
	f.readBuf = f.readBuf[n:]
	return out, nil
}

func (f *fakeLink) Close() error {
	f.transportClosed = true
	return nil
}

func (f *fakeLink) ConfigureInput(edge Edge) error {
	if f.configureErr != nil {
		return f.configureErr
	}
	f.readyEdge = edge
	return nil
}

func (f *fakeLink) Latched() (bool, error) {
	f.polls++
	if f.latchErr != nil {
		return false, f.latchErr
	}
	if f.quietFor > 0 {
		f.quietFor--
		return false, nil
	}
	if f.edges == 0 {
		return false, nil
	}
	f.edges--
	return true, nil
}

func (f *fakeLink) Release() error {
	// Signal and ControlLine share the method; track both.
	f.readyReleased = true
	f.resetReleased = true
	return nil
}

func (f *fakeLink) SetHigh() error {
	f.resetLevels = append(f.resetLevels, true)
	return nil
}

func (f *fakeLink) SetLow() error {
	f.resetLevels = append(f.resetLevels, false)
	return nil
}

// Mock logger for testing
type MockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (l *MockLogger) Debug(msg string, kv ...interface{}) {
	l.debugMsgs = append(l.debugMsgs, msg)
}

func (l *MockLogger) Info(msg string, kv ...interface{}) {
	l.infoMsgs = append(l.infoMsgs, msg)
}

func (l *MockLogger) Error(msg string, kv ...interface{}) {
	l.errorMsgs = append(l.errorMsgs, msg)
}

var testAddr = Address{Bus: 0, Device: 1}

func openTestEngine(t *testing.T, f *fakeLink, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithResetTiming(0, 0), WithPollInterval(0)}, opts...)
	e, err := Open(context.Background(), f.hardware(), testAddr, opts...)
	require.NoError(t, err)
	return e
}

func TestOpen(t *testing.T) {
	f := newFakeLink()
	logger := &MockLogger{}

	e := openTestEngine(t, f, WithLogger(logger))

	assert.Equal(t, EdgeRising, f.readyEdge)
	assert.True(t, f.opened)
	assert.Equal(t, DefaultTransportConfig(), f.cfg)
	assert.Equal(t, []bool{false, true}, f.resetLevels, "reset must be asserted then released")
	require.Len(t, f.written, 1)
	assert.Equal(t, []byte{0x01, 0x00, 0xFE}, f.written[0], "software reset frame")
	assert.False(t, f.transportClosed)
	assert.NotEmpty(t, e.ID())
	assert.Equal(t, testAddr, e.Address())
	assert.Contains(t, logger.infoMsgs, "link up")
}

func TestOpenMissingHardware(t *testing.T) {
	f := newFakeLink()
	_, err := Open(context.Background(), Hardware{Transport: f, Ready: f}, testAddr)
	require.Error(t, err)
}

func TestOpenFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name            string
		setup           func(f *fakeLink)
		opts            []Option
		check           func(t *testing.T, err error)
		wantTransportUp bool
	}{
		{
			name:  "ready signal",
			setup: func(f *fakeLink) { f.configureErr = boom },
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, boom) },
		},
		{
			name:  "transport open",
			setup: func(f *fakeLink) { f.openErr = boom },
			check: func(t *testing.T, err error) {
				var oe *TransportOpenError
				require.ErrorAs(t, err, &oe)
				assert.Equal(t, 1, oe.Device)
				assert.ErrorIs(t, err, boom)
			},
		},
		{
			name:  "transport configure",
			setup: func(f *fakeLink) { f.configErr = boom },
			check: func(t *testing.T, err error) {
				var ce *TransportConfigError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, int64(DefaultClockHz), ce.Config.MaxClockHz)
			},
			wantTransportUp: true,
		},
		{
			name:  "software reset write",
			setup: func(f *fakeLink) { f.writeErr = boom },
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, boom)
				assert.Contains(t, err.Error(), "software reset")
			},
			wantTransportUp: true,
		},
		{
			name:  "software reset timeout",
			setup: func(f *fakeLink) { f.responder = nil },
			opts:  []Option{WithReplyTimeout(20 * time.Millisecond)},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrTimeout)
			},
			wantTransportUp: true,
		},
		{
			name: "corrupt reset reply",
			setup: func(f *fakeLink) {
				f.responder = func([]byte) [][]byte { return [][]byte{{0x06, 0x00, 0x00}} }
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, protocol.ErrChecksumMismatch)
			},
			wantTransportUp: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeLink()
			tt.setup(f)

			opts := append([]Option{WithResetTiming(0, 0), WithPollInterval(time.Millisecond)}, tt.opts...)
			e, err := Open(context.Background(), f.hardware(), testAddr, opts...)

			require.Error(t, err)
			assert.Nil(t, e)
			tt.check(t, err)

			assert.True(t, f.readyReleased, "ready signal must be released")
			assert.True(t, f.resetReleased, "reset line must be released")
			assert.Equal(t, tt.wantTransportUp, f.transportClosed, "transport closed only if it was opened")
		})
	}
}

func TestOpenCancelledDuringResetHold(t *testing.T) {
	f := newFakeLink()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Open(ctx, f.hardware(), testAddr, WithResetTiming(time.Second, 0))

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.opened)
	assert.True(t, f.readyReleased)
}

func TestClose(t *testing.T) {
	f := newFakeLink()
	e := openTestEngine(t, f)

	require.NoError(t, e.Close())
	assert.True(t, f.transportClosed)
	assert.True(t, f.readyReleased)
	assert.True(t, f.resetReleased)

	assert.ErrorIs(t, e.Close(), ErrClosed)

	_, err := e.SendReset(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = e.PollReply()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPollReply(t *testing.T) {
	t.Run("nothing latched", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)

		reply, err := e.PollReply()
		require.NoError(t, err)
		assert.Nil(t, reply)
	})

	t.Run("reply with payload", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)
		f.inject(mustEncode(protocol.ControlSDRReply, []byte{0xDE, 0xAD, 0xBE}))

		reply, err := e.PollReply()
		require.NoError(t, err)
		require.NotNil(t, reply)
		assert.Equal(t, protocol.ControlSDRReply, reply.Control)
		assert.Equal(t, []byte{0xDE, 0xAD, 0xBE}, reply.Payload)
		assert.Empty(t, f.readBuf)
	})

	t.Run("nop reply", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)
		f.inject([]byte{0x00, 0x00, 0x00})

		reply, err := e.PollReply()
		require.NoError(t, err)
		require.NotNil(t, reply)
		assert.Equal(t, protocol.ControlNOP, reply.Control)
	})

	t.Run("corrupt reply", func(t *testing.T) {
		f := newFakeLink()
		logger := &MockLogger{}
		e := openTestEngine(t, f, WithLogger(logger))
		bad := mustEncode(protocol.ControlSDRReply, []byte{0x01, 0x02})
		bad[3] ^= 0xFF
		f.inject(bad)

		reply, err := e.PollReply()
		assert.Nil(t, reply)
		assert.ErrorIs(t, err, protocol.ErrChecksumMismatch)
		assert.True(t, protocol.IsDecodeError(err))
		assert.Contains(t, logger.errorMsgs, "bad reply")
	})

	t.Run("signal failure", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)
		f.latchErr = errors.New("gpio gone")

		_, err := e.PollReply()
		assert.ErrorContains(t, err, "gpio gone")
	})

	t.Run("short read", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)
		f.inject([]byte{0x04, 0x05, 0x00})

		_, err := e.PollReply()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestSendMessageSyncWaitsForReply(t *testing.T) {
	for _, quiet := range []int{0, 1, 5, 50} {
		f := newFakeLink()
		e := openTestEngine(t, f)

		f.polls = 0
		f.quietFor = quiet

		reply, err := e.SendMessage(context.Background(), protocol.ControlSDRRequest, []byte{0x10, 0x02}, true)
		require.NoError(t, err)
		require.NotNil(t, reply)
		assert.Equal(t, protocol.ControlSDRReply, reply.Control)
		assert.Equal(t, []byte{0x10, 0x02}, reply.Payload)
		assert.Equal(t, quiet+1, f.polls, "reply must be returned on the first latched poll")
	}
}

func TestSendMessageTimeout(t *testing.T) {
	f := newFakeLink()
	m := NewMetrics(prometheusRegistry(t))
	e := openTestEngine(t, f, WithPollInterval(time.Millisecond), WithReplyTimeout(30*time.Millisecond), WithMetrics(m))
	f.responder = nil

	start := time.Now()
	reply, err := e.SendMessage(context.Background(), protocol.ControlReset, nil, true)

	assert.Nil(t, reply)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Greater(t, f.polls, 1)
	assert.Equal(t, 1.0, counterValue(t, m.Timeouts))
}

func TestSendMessageContext(t *testing.T) {
	t.Run("already cancelled", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := e.SendMessage(ctx, protocol.ControlReset, nil, true)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, f.written, 1, "nothing written after open")
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f, WithPollInterval(time.Millisecond), WithReplyTimeout(0))
		f.responder = nil

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := e.SendMessage(ctx, protocol.ControlReset, nil, true)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrTimeout)
		assert.True(t, e.Pending(), "written command still owes its reply")
	})
}

func TestTimedOutCommandStaysPending(t *testing.T) {
	f := newFakeLink()
	e := openTestEngine(t, f, WithPollInterval(time.Millisecond), WithReplyTimeout(10*time.Millisecond))
	ctx := context.Background()
	f.responder = nil

	_, err := e.SendTelegramSDN(ctx, []byte{0x01}, true)
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, e.Pending())

	_, err = e.SendTelegramSDR(ctx, []byte{0x02}, true)
	assert.ErrorIs(t, err, ErrTransactionPending)
	assert.Len(t, f.written, 2, "rejected command must not be written")

	// The late answer to the SDN arrives.
	f.inject(mustEncode(protocol.ControlACK, nil))
	f.responder = ackResponder

	reply, err := e.PollReply()
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, protocol.ControlACK, reply.Control)
	assert.False(t, e.Pending())

	reply, err = e.SendTelegramSDR(ctx, []byte{0x02}, true)
	require.NoError(t, err)
	assert.Equal(t, protocol.ControlSDRReply, reply.Control)
	assert.Equal(t, []byte{0x02}, reply.Payload)

	reply, err = e.SendReset(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.ControlACK, reply.Control)
}

func TestAwaitReply(t *testing.T) {
	ctx := context.Background()

	t.Run("waits for the outstanding reply", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)

		_, err := e.SendTelegramSDR(ctx, []byte{0x10, 0x03}, false)
		require.NoError(t, err)
		f.polls = 0
		f.quietFor = 3

		reply, err := e.AwaitReply(ctx)
		require.NoError(t, err)
		require.NotNil(t, reply)
		assert.Equal(t, protocol.ControlSDRReply, reply.Control)
		assert.Equal(t, 4, f.polls)
		assert.False(t, e.Pending())
	})

	t.Run("nothing outstanding checks once", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)
		f.polls = 0

		reply, err := e.AwaitReply(ctx)
		require.NoError(t, err)
		assert.Nil(t, reply)
		assert.Equal(t, 1, f.polls)
	})

	t.Run("timeout keeps the command pending", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f, WithPollInterval(time.Millisecond), WithReplyTimeout(10*time.Millisecond))
		f.responder = nil

		_, err := e.SendTelegramSDN(ctx, []byte{0x01}, false)
		require.NoError(t, err)

		_, err = e.AwaitReply(ctx)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.True(t, e.Pending())
	})

	t.Run("closed", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)
		require.NoError(t, e.Close())

		_, err := e.AwaitReply(ctx)
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestSendMessageAsync(t *testing.T) {
	f := newFakeLink()
	e := openTestEngine(t, f)
	ctx := context.Background()

	reply, err := e.SendMessage(ctx, protocol.ControlSDNRequest, []byte{0x68}, false)
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.True(t, e.Pending())

	_, err = e.SendReset(ctx)
	assert.ErrorIs(t, err, ErrTransactionPending)
	assert.Len(t, f.written, 2, "rejected command must not be written")

	reply, err = e.PollReply()
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, protocol.ControlACK, reply.Control)
	assert.False(t, e.Pending())

	_, err = e.SendReset(ctx)
	assert.NoError(t, err)
}

func TestClearPending(t *testing.T) {
	f := newFakeLink()
	e := openTestEngine(t, f)
	f.responder = nil

	_, err := e.SendTelegramSDN(context.Background(), []byte{0x01}, false)
	require.NoError(t, err)
	require.True(t, e.Pending())

	e.ClearPending()
	assert.False(t, e.Pending())
}

func TestSendMessageEncodeError(t *testing.T) {
	f := newFakeLink()
	e := openTestEngine(t, f)

	_, err := e.SendMessage(context.Background(), protocol.ControlSDNRequest, make([]byte, 256), true)
	assert.ErrorIs(t, err, protocol.ErrPayloadTooLarge)

	_, err = e.SendMessage(context.Background(), protocol.FrameControl(9), nil, true)
	assert.ErrorIs(t, err, protocol.ErrUnknownFrameControl)

	assert.Len(t, f.written, 1, "invalid frames must not be written")
}

func TestSetPhyConfig(t *testing.T) {
	t.Run("93750 baud", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)

		reply, err := e.SetPhyConfig(context.Background(), 93750)
		require.NoError(t, err)
		assert.Equal(t, protocol.ControlACK, reply.Control)

		last := f.written[len(f.written)-1]
		assert.Equal(t, []byte{0x02, 0x01, 0xF9, 0x03}, last)
	})

	t.Run("unsupported rate", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)

		reply, err := e.SetPhyConfig(context.Background(), 100)
		assert.Nil(t, reply)
		assert.ErrorIs(t, err, protocol.ErrInvalidBaudRate)
		assert.Len(t, f.written, 1, "nothing written after the reset")
	})

	t.Run("nack", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)
		f.responder = func([]byte) [][]byte { return [][]byte{mustEncode(protocol.ControlNACK, nil)} }

		reply, err := e.SetPhyConfig(context.Background(), 12000000)
		var ue *UnexpectedReplyError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, protocol.ControlACK, ue.Want)
		require.NotNil(t, reply)
		assert.Equal(t, protocol.ControlNACK, reply.Control)
	})

	t.Run("nack advisory", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f, WithAdvisoryConfigReply())
		f.responder = func([]byte) [][]byte { return [][]byte{mustEncode(protocol.ControlNACK, nil)} }

		reply, err := e.SetPhyConfig(context.Background(), 12000000)
		require.NoError(t, err)
		assert.Equal(t, protocol.ControlNACK, reply.Control)
	})
}

func TestSendTelegramSDR(t *testing.T) {
	telegram := []byte{0x10, 0x02, 0x4D, 0x01, 0x4E, 0x16}

	t.Run("sync", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)

		reply, err := e.SendTelegramSDR(context.Background(), telegram, true)
		require.NoError(t, err)
		assert.Equal(t, telegram, reply.Payload)

		last := f.written[len(f.written)-1]
		assert.Equal(t, byte(protocol.ControlSDRRequest), last[0])
		assert.True(t, bytes.Equal(telegram, last[protocol.HeaderSize:]))
	})

	t.Run("async", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)

		reply, err := e.SendTelegramSDR(context.Background(), telegram, false)
		require.NoError(t, err)
		assert.Nil(t, reply)

		reply, err = e.PollReply()
		require.NoError(t, err)
		assert.Equal(t, protocol.ControlSDRReply, reply.Control)
	})

	t.Run("wrong reply", func(t *testing.T) {
		f := newFakeLink()
		e := openTestEngine(t, f)
		f.responder = func([]byte) [][]byte { return [][]byte{mustEncode(protocol.ControlNACK, nil)} }

		reply, err := e.SendTelegramSDR(context.Background(), telegram, true)
		var ue *UnexpectedReplyError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, protocol.ControlSDRReply, ue.Want)
		assert.Equal(t, protocol.ControlNACK, reply.Control)
	})
}

func TestSendTelegramSDN(t *testing.T) {
	f := newFakeLink()
	e := openTestEngine(t, f)

	reply, err := e.SendTelegramSDN(context.Background(), []byte{0x68, 0x01}, true)
	require.NoError(t, err)
	assert.Equal(t, protocol.ControlACK, reply.Control)

	last := f.written[len(f.written)-1]
	assert.Equal(t, byte(protocol.ControlSDNRequest), last[0])
}

func TestTraceCallback(t *testing.T) {
	f := newFakeLink()
	var traces []Trace
	e := openTestEngine(t, f, WithTraceCallback(func(tr Trace) { traces = append(traces, tr) }))

	_, err := e.SendTelegramSDR(context.Background(), []byte{0xAA}, true)
	require.NoError(t, err)

	// reset tx/rx during open, then the telegram
	require.Len(t, traces, 4)
	assert.Equal(t, DirectionTx, traces[2].Direction)
	assert.Equal(t, protocol.ControlSDRRequest, traces[2].Control)
	assert.Equal(t, DirectionRx, traces[3].Direction)
	assert.Equal(t, protocol.ControlSDRReply, traces[3].Control)
	assert.Equal(t, mustEncode(protocol.ControlSDRReply, []byte{0xAA}), traces[3].Raw)
}
