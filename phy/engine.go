package phy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/moffa90/go-cpphy/protocol"
)

// Engine drives one link to a companion processor.
// It owns the transport, the ready signal and the reset line from Open
// until Close.
//
// Methods are serialized internally; the protocol allows only one
// outstanding transaction at a time.
type Engine struct {
	mu      sync.Mutex
	hw      Hardware
	addr    Address
	config  Config
	id      string
	closed  bool

	// pending is set while a written command has not had its reply read.
	pending        bool
	pendingControl protocol.FrameControl
}

// Open brings the link up:
//  1. Configure the ready signal to latch rising edges
//  2. Hold the companion in hardware reset for ResetHoldTime
//  3. Open and configure the transport
//  4. Release reset and wait BootTime
//  5. Send a synchronous software reset
//
// On any failure every resource acquired so far is released before the
// error is returned.
//
// Example:
//
//	engine, err := phy.Open(ctx, hw, phy.Address{Bus: 0, Device: 0},
//	    phy.WithLogger(logger),
//	    phy.WithReplyTimeout(time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
func Open(ctx context.Context, hw Hardware, addr Address, opts ...Option) (*Engine, error) {
	if hw.Transport == nil || hw.Ready == nil || hw.Reset == nil {
		return nil, errors.New("hardware must provide a transport, a ready signal and a reset line")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		hw:     hw,
		addr:   addr,
		config: cfg,
		id:     uuid.NewString(),
	}

	if err := e.bringUp(ctx); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Engine) bringUp(ctx context.Context) (err error) {
	var release []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(release) - 1; i >= 0; i-- {
			if rerr := release[i](); rerr != nil {
				e.logError("release after failed open", "error", rerr)
			}
		}
	}()

	release = append(release, e.hw.Ready.Release)
	if err := e.hw.Ready.ConfigureInput(EdgeRising); err != nil {
		return fmt.Errorf("configure ready signal: %w", err)
	}

	release = append(release, e.hw.Reset.Release)
	if err := e.hw.Reset.SetLow(); err != nil {
		return fmt.Errorf("assert reset: %w", err)
	}
	if err := sleepContext(ctx, e.config.ResetHoldTime); err != nil {
		return fmt.Errorf("hold reset: %w", err)
	}

	if err := e.hw.Transport.Open(e.addr.Bus, e.addr.Device); err != nil {
		return &TransportOpenError{Bus: e.addr.Bus, Device: e.addr.Device, Err: err}
	}
	release = append(release, e.hw.Transport.Close)

	if err := e.hw.Transport.Configure(e.config.Transport); err != nil {
		return &TransportConfigError{
			Bus:    e.addr.Bus,
			Device: e.addr.Device,
			Config: e.config.Transport,
			Err:    err,
		}
	}

	if err := e.hw.Reset.SetHigh(); err != nil {
		return fmt.Errorf("release reset: %w", err)
	}
	if err := sleepContext(ctx, e.config.BootTime); err != nil {
		return fmt.Errorf("wait for boot: %w", err)
	}

	reply, err := e.sendMessage(ctx, protocol.ControlReset, nil, true)
	if err != nil {
		return fmt.Errorf("software reset: %w", err)
	}

	e.logInfo("link up",
		"bus", e.addr.Bus,
		"device", e.addr.Device,
		"clock_hz", e.config.Transport.MaxClockHz,
		"reset_reply", reply.Control.String(),
	)

	return nil
}

// Close releases the transport, the ready signal and the reset line.
// Further calls return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.closed = true

	var errs []error
	if err := e.hw.Transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	if err := e.hw.Ready.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release ready signal: %w", err))
	}
	if err := e.hw.Reset.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release reset line: %w", err))
	}

	e.logDebug("link closed")

	return errors.Join(errs...)
}

// ID returns the session identifier attached to this engine's log lines.
func (e *Engine) ID() string {
	return e.id
}

// Address returns the transport address the engine was opened on.
func (e *Engine) Address() Address {
	return e.addr
}

// Pending reports whether a command still awaits its reply. That is the
// case after an asynchronous send, and after a synchronous one that timed
// out or was cancelled once written.
func (e *Engine) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// ClearPending forgets the outstanding command so a new one can be sent. A late reply is still returned by the next PollReply.
func (e *Engine) ClearPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = false
}

// PollReply checks for a reply without blocking on the ready signal.
// It returns nil, nil when no reply is ready. Otherwise the header and the
// announced payload are read and decoded; decode failures are returned
// as *protocol.DecodeError.
func (e *Engine) PollReply() (*protocol.Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pollReply()
}

func (e *Engine) pollReply() (*protocol.Frame, error) {
	if e.closed {
		return nil, ErrClosed
	}

	e.config.Metrics.pollAttempt()

	ready, err := e.hw.Ready.Latched()
	if err != nil {
		return nil, fmt.Errorf("check ready signal: %w", err)
	}
	if !ready {
		return nil, nil
	}

	// The reply is consumed from here on, whatever its content.
	e.pending = false

	buf, err := e.hw.Transport.ReadBytes(protocol.HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("read reply header: %w", err)
	}

	if len(buf) > 1 && buf[1] > 0 {
		payload, err := e.hw.Transport.ReadBytes(int(buf[1]))
		if err != nil {
			return nil, fmt.Errorf("read reply payload: %w", err)
		}
		buf = append(buf, payload...)
	}

	e.trace(DirectionRx, buf)

	frame, err := protocol.Decode(buf)
	if err != nil {
		e.config.Metrics.decodeError(err)
		e.logError("bad reply", "error", err, "raw", fmt.Sprintf("% 02X", buf))
		return nil, err
	}

	return frame, nil
}

// SendMessage encodes and writes one frame.
//
// With sync false it returns nil, nil right after the write; the reply
// must then be collected with PollReply before the next command.
// With sync true it polls until a reply frame arrives, the ReplyTimeout
// elapses (ErrTimeout) or ctx is done.
func (e *Engine) SendMessage(ctx context.Context, fc protocol.FrameControl, payload []byte, sync bool) (*protocol.Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.sendMessage(ctx, fc, payload, sync)
}

func (e *Engine) sendMessage(ctx context.Context, fc protocol.FrameControl, payload []byte, sync bool) (*protocol.Frame, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if e.pending {
		return nil, ErrTransactionPending
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := protocol.Encode(fc, payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", fc, err)
	}

	start := time.Now()
	if err := e.hw.Transport.WriteBytes(frame); err != nil {
		return nil, fmt.Errorf("write %s: %w", fc, err)
	}

	e.trace(DirectionTx, frame)
	e.config.Metrics.transaction(fc, sync)
	e.logDebug("sent frame", "control", fc.String(), "len", len(payload), "sync", sync)

	if !sync {
		e.pending = true
		e.pendingControl = fc
		return nil, nil
	}

	reply, err := e.awaitReply(ctx, fc)
	if err != nil {
		return nil, err
	}

	e.config.Metrics.replyWait(time.Since(start))
	e.logDebug("got reply", "request", fc.String(), "reply", reply.Control.String(), "len", len(reply.Payload))

	return reply, nil
}

// AwaitReply waits for the reply to the outstanding command, paced by
// PollInterval and bounded by ReplyTimeout and ctx. Without an outstanding
// command it checks once, like PollReply. On timeout the command stays
// pending.
func (e *Engine) AwaitReply(ctx context.Context) (*protocol.Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if !e.pending {
		return e.pollReply()
	}

	return e.awaitReply(ctx, e.pendingControl)
}

// awaitReply polls the ready signal, paced by PollInterval, until a reply
// is decoded. A written command whose wait ends without a reply is left
// pending; the companion still owes that reply.
func (e *Engine) awaitReply(ctx context.Context, fc protocol.FrameControl) (*protocol.Frame, error) {
	parent := ctx
	if e.config.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ReplyTimeout)
		defer cancel()
	}

	limit := rate.Inf
	if e.config.PollInterval > 0 {
		limit = rate.Every(e.config.PollInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for attempts := 1; ; attempts++ {
		reply, err := e.pollReply()
		if err != nil {
			return nil, err
		}
		if reply != nil {
			return reply, nil
		}

		if err := sleepContext(ctx, limiter.Reserve().Delay()); err != nil {
			e.pending = true
			e.pendingControl = fc
			if perr := parent.Err(); perr != nil {
				return nil, fmt.Errorf("await %s reply: %w", fc, perr)
			}
			e.config.Metrics.timeout()
			e.logError("no reply", "request", fc.String(), "polls", attempts, "timeout", e.config.ReplyTimeout.String())
			return nil, fmt.Errorf("await %s reply after %d polls: %w", fc, attempts, ErrTimeout)
		}
	}
}

// SendReset sends a synchronous software reset and returns the reply.
func (e *Engine) SendReset(ctx context.Context) (*protocol.Frame, error) {
	return e.SendMessage(ctx, protocol.ControlReset, nil, true)
}

// SetPhyConfig switches the companion's Profibus PHY to baudRate (bit/s).
// Unsupported rates fail with *protocol.InvalidBaudRateError before any
// I/O. A reply other than ACK returns the reply together with an
// *UnexpectedReplyError unless WithAdvisoryConfigReply was given.
func (e *Engine) SetPhyConfig(ctx context.Context, baudRate int) (*protocol.Frame, error) {
	payload, err := protocol.ConfigPayload(baudRate)
	if err != nil {
		return nil, err
	}

	reply, err := e.SendMessage(ctx, protocol.ControlSetConfig, payload, true)
	if err != nil {
		return nil, fmt.Errorf("set phy config %d: %w", baudRate, err)
	}

	if !e.config.AdvisoryConfigReply && reply.Control != protocol.ControlACK {
		return reply, &UnexpectedReplyError{
			Operation: "set phy config",
			Want:      protocol.ControlACK,
			Reply:     reply,
		}
	}

	e.logInfo("phy configured", "baud_rate", baudRate, "reply", reply.Control.String())

	return reply, nil
}

// SendTelegramSDN transmits a telegram that expects no bus-level answer.
func (e *Engine) SendTelegramSDN(ctx context.Context, telegram []byte, sync bool) (*protocol.Frame, error) {
	return e.SendMessage(ctx, protocol.ControlSDNRequest, telegram, sync)
}

// SendTelegramSDR transmits a telegram and, when sync is true, returns the
// PB_SDR_REPLY carrying the answer. Any other reply control is returned
// together with an *UnexpectedReplyError.
func (e *Engine) SendTelegramSDR(ctx context.Context, telegram []byte, sync bool) (*protocol.Frame, error) {
	reply, err := e.SendMessage(ctx, protocol.ControlSDRRequest, telegram, sync)
	if err != nil || !sync {
		return reply, err
	}

	if reply.Control != protocol.ControlSDRReply {
		return reply, &UnexpectedReplyError{
			Operation: "send SDR telegram",
			Want:      protocol.ControlSDRReply,
			Reply:     reply,
		}
	}

	return reply, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// trace calls the trace callback if configured.
func (e *Engine) trace(direction string, raw []byte) {
	if e.config.TraceCallback == nil || len(raw) == 0 {
		return
	}
	e.config.TraceCallback(Trace{
		Direction: direction,
		Control:   protocol.FrameControl(raw[0]),
		Raw:       append([]byte(nil), raw...),
		Time:      time.Now(),
	})
}

// logDebug logs a debug message if a logger is configured.
func (e *Engine) logDebug(msg string, keysAndValues ...interface{}) {
	if e.config.Logger != nil {
		e.config.Logger.Debug(msg, append(keysAndValues, "session", e.id)...)
	}
}

// logInfo logs an info message if a logger is configured.
func (e *Engine) logInfo(msg string, keysAndValues ...interface{}) {
	if e.config.Logger != nil {
		e.config.Logger.Info(msg, append(keysAndValues, "session", e.id)...)
	}
}

// logError logs an error message if a logger is configured.
func (e *Engine) logError(msg string, keysAndValues ...interface{}) {
	if e.config.Logger != nil {
		e.config.Logger.Error(msg, append(keysAndValues, "session", e.id)...)
	}
}
