// Package sim simulates the companion processor in memory.
//
// A Device answers frames the way the companion firmware does and exposes
// the three collaborators phy.Open expects, so the engine, the CLI and the
// examples can run without hardware.
//
//	dev := sim.New(sim.WithReplyDelay(3))
//	engine, err := phy.Open(ctx, dev.Hardware(), phy.Address{})
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-cpphy/phy"
	"github.com/moffa90/go-cpphy/protocol"
)

// ErrNotOpen is returned by transport calls made before Open or after Close.
var ErrNotOpen = errors.New("sim: transport not open")

// Responder builds the PB_SDR_REPLY payload for an SDR telegram.
type Responder func(telegram []byte) []byte

// EchoResponder answers every SDR telegram with the telegram itself.
func EchoResponder(telegram []byte) []byte {
	return append([]byte(nil), telegram...)
}

// Device is a simulated companion processor.
type Device struct {
	mu sync.Mutex

	responder  Responder
	mute       func(protocol.Frame) bool
	replyDelay int
	latency    time.Duration
	openErr    error
	configErr  error

	opened    bool
	config    phy.TransportConfig
	readyEdge phy.Edge
	inReset   bool
	baudRate  int

	out       []byte
	edges     int
	countdown int
	requests  []protocol.Frame

	readyReleased bool
	resetReleased bool
}

// Option configures a Device.
type Option func(*Device)

// WithResponder sets the SDR responder. The default echoes the telegram.
func WithResponder(r Responder) Option {
	return func(d *Device) {
		if r != nil {
			d.responder = r
		}
	}
}

// WithMute makes the device swallow requests for which mute returns true.
// The host sees no reply at all.
func WithMute(mute func(req protocol.Frame) bool) Option {
	return func(d *Device) {
		d.mute = mute
	}
}

// WithReplyDelay makes every reply visible only after the given number of
// ready-signal checks.
func WithReplyDelay(polls int) Option {
	return func(d *Device) {
		if polls >= 0 {
			d.replyDelay = polls
		}
	}
}

// WithLatency adds a fixed delay to every write.
func WithLatency(latency time.Duration) Option {
	return func(d *Device) {
		d.latency = latency
	}
}

// WithOpenError makes the transport fail to open.
func WithOpenError(err error) Option {
	return func(d *Device) {
		d.openErr = err
	}
}

// WithConfigureError makes the transport reject its configuration.
func WithConfigureError(err error) Option {
	return func(d *Device) {
		d.configErr = err
	}
}

// New creates a simulated device.
func New(opts ...Option) *Device {
	d := &Device{responder: EchoResponder}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Hardware returns the transport, ready signal and reset line of d.
func (d *Device) Hardware() phy.Hardware {
	return phy.Hardware{
		Transport: &transport{d},
		Ready:     &readySignal{d},
		Reset:     &resetLine{d},
	}
}

// BaudRate returns the Profibus baud rate last accepted, or 0 after reset.
func (d *Device) BaudRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baudRate
}

// InReset reports whether the reset line is held low.
func (d *Device) InReset() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inReset
}

// Requests returns the frames received so far.
func (d *Device) Requests() []protocol.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.Frame(nil), d.requests...)
}

// Released reports whether both GPIO collaborators were released.
func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readyReleased && d.resetReleased
}

// Inject queues raw reply bytes and raises the ready signal, bypassing the
// firmware logic. Used to feed corrupt frames to the host.
func (d *Device) Inject(raw []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue(raw)
}

func (d *Device) queue(raw []byte) {
	d.out = append(d.out, raw...)
	d.edges++
	d.countdown = d.replyDelay
}

// handle runs the firmware logic for one request frame.
func (d *Device) handle(req []byte) {
	frame, err := protocol.Decode(req)
	if err != nil {
		d.reply(protocol.ControlNACK, nil)
		return
	}
	d.requests = append(d.requests, *frame)
	if d.mute != nil && d.mute(*frame) {
		return
	}

	switch frame.Control {
	case protocol.ControlReset:
		d.baudRate = 0
		d.reply(protocol.ControlACK, nil)
	case protocol.ControlSetConfig:
		if len(frame.Payload) != 1 {
			d.reply(protocol.ControlNACK, nil)
			return
		}
		baud, ok := protocol.BaudRateFromID(frame.Payload[0])
		if !ok {
			d.reply(protocol.ControlNACK, nil)
			return
		}
		d.baudRate = baud
		d.reply(protocol.ControlACK, nil)
	case protocol.ControlSDRRequest:
		d.reply(protocol.ControlSDRReply, d.responder(frame.Payload))
	case protocol.ControlSDNRequest:
		d.reply(protocol.ControlACK, nil)
	default:
		d.reply(protocol.ControlNACK, nil)
	}
}

func (d *Device) reply(fc protocol.FrameControl, payload []byte) {
	if len(payload) > protocol.MaxPayloadSize {
		payload = payload[:protocol.MaxPayloadSize]
	}
	raw, err := protocol.Encode(fc, payload)
	if err != nil {
		// fc and payload are bounded above
		panic(fmt.Sprintf("sim: encode %s: %v", fc, err))
	}
	d.queue(raw)
}

type transport struct{ d *Device }

func (t *transport) Open(bus, device int) error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.d.openErr != nil {
		return t.d.openErr
	}
	t.d.opened = true
	return nil
}

func (t *transport) Configure(cfg phy.TransportConfig) error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if !t.d.opened {
		return ErrNotOpen
	}
	if t.d.configErr != nil {
		return t.d.configErr
	}
	if cfg.WordSize != 8 {
		return fmt.Errorf("sim: unsupported word size %d", cfg.WordSize)
	}
	t.d.config = cfg
	return nil
}

func (t *transport) WriteBytes(p []byte) error {
	if t.d.latency > 0 {
		time.Sleep(t.d.latency)
	}

	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if !t.d.opened {
		return ErrNotOpen
	}
	// A companion held in reset ignores the bus.
	if t.d.inReset {
		return nil
	}
	t.d.handle(p)
	return nil
}

// ReadBytes shifts out queued reply bytes. An idle line reads as zeros.
func (t *transport) ReadBytes(n int) ([]byte, error) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if !t.d.opened {
		return nil, ErrNotOpen
	}
	buf := make([]byte, n)
	k := copy(buf, t.d.out)
	t.d.out = t.d.out[k:]
	return buf, nil
}

func (t *transport) Close() error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.opened = false
	return nil
}

type readySignal struct{ d *Device }

func (s *readySignal) ConfigureInput(edge phy.Edge) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.readyEdge = edge
	return nil
}

func (s *readySignal) Latched() (bool, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if s.d.readyEdge != phy.EdgeRising && s.d.readyEdge != phy.EdgeBoth {
		return false, nil
	}
	if s.d.edges == 0 {
		return false, nil
	}
	if s.d.countdown > 0 {
		s.d.countdown--
		return false, nil
	}
	s.d.edges--
	return true, nil
}

func (s *readySignal) Release() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.readyEdge = phy.EdgeNone
	s.d.readyReleased = true
	return nil
}

type resetLine struct{ d *Device }

func (r *resetLine) SetLow() error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.inReset = true
	r.d.baudRate = 0
	r.d.out = nil
	r.d.edges = 0
	return nil
}

func (r *resetLine) SetHigh() error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.inReset = false
	return nil
}

func (r *resetLine) Release() error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.resetReleased = true
	return nil
}
