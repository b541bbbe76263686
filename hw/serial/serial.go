// Package serial binds the engine to a USB-UART bridge.
//
// Frames travel over the UART. The bridge's DTR output drives the
// companion's reset input and its CTS input carries the reply-ready
// signal. Edges are detected by sampling CTS on every check, so the
// companion must hold CTS high until the reply has been read. Every write
// re-arms detection: CTS found high after a request counts as a rising
// edge.
//
// All three collaborators share one port. It is opened by the first call
// that needs it, which is the reset assertion during phy.Open.
package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	goserial "go.bug.st/serial"

	"github.com/moffa90/go-cpphy/phy"
)

// DefaultReadTimeout bounds a single read from the port.
const DefaultReadTimeout = 500 * time.Millisecond

// ErrReadTimeout is returned when the companion stops sending mid-frame.
var ErrReadTimeout = errors.New("serial read timed out")

// Port is the part of go.bug.st/serial.Port the link uses.
type Port interface {
	io.ReadWriteCloser
	SetMode(mode *goserial.Mode) error
	SetDTR(dtr bool) error
	GetModemStatusBits() (*goserial.ModemStatusBits, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// OpenFunc opens a port by name.
type OpenFunc func(name string, mode *goserial.Mode) (Port, error)

// Config describes the serial link.
type Config struct {
	// Port is the device name, e.g. /dev/ttyUSB0
	Port string

	// BaudRate of the UART (not the Profibus rate)
	BaudRate int

	// ReadTimeout bounds a single read (default DefaultReadTimeout)
	ReadTimeout time.Duration

	// Open replaces go.bug.st/serial.Open (optional)
	Open OpenFunc
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	return goserial.GetPortsList()
}

// NewHardware returns the collaborators for one serial link.
func NewHardware(cfg Config) phy.Hardware {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Open == nil {
		cfg.Open = openPort
	}
	l := &link{cfg: cfg}
	return phy.Hardware{
		Transport: &transport{l},
		Ready:     &ctsSignal{l},
		Reset:     &dtrLine{l},
	}
}

func openPort(name string, mode *goserial.Mode) (Port, error) {
	p, err := goserial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type link struct {
	mu            sync.Mutex
	cfg           Config
	port          Port
	transportOpen bool
	edge          phy.Edge
	lastCTS       bool
}

func (l *link) mode(dataBits int) *goserial.Mode {
	return &goserial.Mode{
		BaudRate: l.cfg.BaudRate,
		DataBits: dataBits,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	}
}

// ensureOpen opens the port if needed. Callers hold l.mu.
func (l *link) ensureOpen() error {
	if l.port != nil {
		return nil
	}
	port, err := l.cfg.Open(l.cfg.Port, l.mode(8))
	if err != nil {
		return fmt.Errorf("open %s: %w", l.cfg.Port, err)
	}
	if err := port.SetReadTimeout(l.cfg.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout on %s: %w", l.cfg.Port, err)
	}
	l.port = port
	return nil
}

func (l *link) closePort() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

// closeIfIdle closes a port opened by the GPIO side when the transport
// never took it over.
func (l *link) closeIfIdle() error {
	if l.transportOpen {
		return nil
	}
	return l.closePort()
}

type transport struct{ l *link }

// Open takes over the port. Bus and device are ignored; the port name
// comes from Config.
func (t *transport) Open(bus, device int) error {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()

	if err := t.l.ensureOpen(); err != nil {
		return err
	}
	if err := t.l.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("flush %s: %w", t.l.cfg.Port, err)
	}
	t.l.transportOpen = true
	return nil
}

// Configure applies the word size as UART data bits. The clock rate is
// fixed by Config.BaudRate.
func (t *transport) Configure(cfg phy.TransportConfig) error {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()

	if t.l.port == nil {
		return errors.New("serial port not open")
	}
	if cfg.LSBFirst {
		return errors.New("bit order is fixed on a UART")
	}
	if cfg.WordSize < 5 || cfg.WordSize > 8 {
		return fmt.Errorf("unsupported word size %d", cfg.WordSize)
	}
	return t.l.port.SetMode(t.l.mode(cfg.WordSize))
}

func (t *transport) WriteBytes(p []byte) error {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()

	if t.l.port == nil {
		return errors.New("serial port not open")
	}
	// The previous reply has been read; a high CTS from here on belongs
	// to the answer to this frame.
	t.l.lastCTS = false

	for len(p) > 0 {
		n, err := t.l.port.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (t *transport) ReadBytes(n int) ([]byte, error) {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()

	if t.l.port == nil {
		return nil, errors.New("serial port not open")
	}
	buf := make([]byte, n)
	for got := 0; got < n; {
		k, err := t.l.port.Read(buf[got:])
		if err != nil {
			return nil, err
		}
		if k == 0 {
			return nil, fmt.Errorf("got %d of %d bytes: %w", got, n, ErrReadTimeout)
		}
		got += k
	}
	return buf, nil
}

// Close releases reset before closing the port, since the reset line
// cannot be driven once the port is gone.
func (t *transport) Close() error {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()

	t.l.transportOpen = false
	var dtrErr error
	if t.l.port != nil {
		dtrErr = t.l.port.SetDTR(false)
	}
	return errors.Join(dtrErr, t.l.closePort())
}

type ctsSignal struct{ l *link }

func (s *ctsSignal) ConfigureInput(edge phy.Edge) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()

	s.l.edge = edge
	s.l.lastCTS = false
	return nil
}

// Latched samples CTS and reports whether the configured edge occurred
// since the previous sample.
func (s *ctsSignal) Latched() (bool, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()

	if s.l.port == nil {
		return false, nil
	}
	bits, err := s.l.port.GetModemStatusBits()
	if err != nil {
		return false, err
	}

	cts, last := bits.CTS, s.l.lastCTS
	s.l.lastCTS = cts

	switch s.l.edge {
	case phy.EdgeRising:
		return cts && !last, nil
	case phy.EdgeFalling:
		return !cts && last, nil
	case phy.EdgeBoth:
		return cts != last, nil
	default:
		return false, nil
	}
}

func (s *ctsSignal) Release() error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()

	s.l.edge = phy.EdgeNone
	return s.l.closeIfIdle()
}

// dtrLine drives reset through DTR. An asserted DTR pulls the line low.
type dtrLine struct{ l *link }

func (r *dtrLine) SetLow() error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	if err := r.l.ensureOpen(); err != nil {
		return err
	}
	return r.l.port.SetDTR(true)
}

func (r *dtrLine) SetHigh() error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	if err := r.l.ensureOpen(); err != nil {
		return err
	}
	return r.l.port.SetDTR(false)
}

func (r *dtrLine) Release() error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()

	if r.l.port != nil {
		if err := r.l.port.SetDTR(false); err != nil {
			return err
		}
	}
	return r.l.closeIfIdle()
}
