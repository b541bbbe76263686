// Package periph binds the engine to Linux SPI and GPIO through periph.io.
//
// The companion sits on /dev/spidev<bus>.<device>. Its reset input and its
// reply-ready output are two GPIOs, BCM 17 and BCM 27 on the reference
// Raspberry Pi board.
package periph

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/moffa90/go-cpphy/phy"
)

var (
	// ErrNotOpen is returned by SPI calls made before Open or after Close.
	ErrNotOpen = errors.New("spi port not open")

	// ErrActiveHighCS is returned by Configure for an active-high chip
	// select, which spidev cannot express through periph.
	ErrActiveHighCS = errors.New("active-high chip select not supported")
)

// Pins names the GPIOs wired to the companion.
type Pins struct {
	// Reset drives the companion's reset input (active low)
	Reset string

	// Ready is the companion's reply-ready output
	Ready string
}

// DefaultPins returns the reference board wiring.
func DefaultPins() Pins {
	return Pins{Reset: "GPIO17", Ready: "GPIO27"}
}

// NewHardware initialises the periph host drivers and resolves the pins.
// The SPI port itself is opened later by the engine.
func NewHardware(pins Pins) (phy.Hardware, error) {
	if _, err := host.Init(); err != nil {
		return phy.Hardware{}, fmt.Errorf("periph host init: %w", err)
	}

	reset := gpioreg.ByName(pins.Reset)
	if reset == nil {
		return phy.Hardware{}, fmt.Errorf("reset pin %q not found", pins.Reset)
	}
	ready := gpioreg.ByName(pins.Ready)
	if ready == nil {
		return phy.Hardware{}, fmt.Errorf("ready pin %q not found", pins.Ready)
	}

	return phy.Hardware{
		Transport: NewSPI(),
		Ready:     NewReadyPin(ready),
		Reset:     NewResetPin(reset),
	}, nil
}

// SPI is a phy.Transport over a spidev port.
type SPI struct {
	port spi.PortCloser
	conn spi.Conn
}

// NewSPI returns an unopened SPI transport.
func NewSPI() *SPI {
	return &SPI{}
}

// DevicePath returns the spidev node for bus and chip select.
func DevicePath(bus, device int) string {
	return fmt.Sprintf("/dev/spidev%d.%d", bus, device)
}

func (s *SPI) Open(bus, device int) error {
	if s.port != nil {
		return fmt.Errorf("%s: already open", DevicePath(bus, device))
	}
	port, err := spireg.Open(DevicePath(bus, device))
	if err != nil {
		return err
	}
	s.port = port
	return nil
}

func (s *SPI) Configure(cfg phy.TransportConfig) error {
	if cfg.ChipSelectActiveHigh {
		return ErrActiveHighCS
	}
	if s.port == nil {
		return ErrNotOpen
	}

	mode := spi.Mode(cfg.Mode())
	if cfg.LSBFirst {
		mode |= spi.LSBFirst
	}

	conn, err := s.port.Connect(physic.Frequency(cfg.MaxClockHz)*physic.Hertz, mode, cfg.WordSize)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *SPI) WriteBytes(p []byte) error {
	if s.conn == nil {
		return ErrNotOpen
	}
	return s.conn.Tx(p, make([]byte, len(p)))
}

// ReadBytes clocks out n zero bytes and returns what the companion shifted in.
func (s *SPI) ReadBytes(n int) ([]byte, error) {
	if s.conn == nil {
		return nil, ErrNotOpen
	}
	r := make([]byte, n)
	if err := s.conn.Tx(make([]byte, n), r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SPI) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.conn = nil
	return err
}

// ReadyPin is a phy.Signal on a GPIO input with edge detection.
type ReadyPin struct {
	pin gpio.PinIO
}

// NewReadyPin wraps pin.
func NewReadyPin(pin gpio.PinIO) *ReadyPin {
	return &ReadyPin{pin: pin}
}

func (r *ReadyPin) ConfigureInput(edge phy.Edge) error {
	return r.pin.In(gpio.Float, periphEdge(edge))
}

// Latched consumes one pending edge without blocking.
func (r *ReadyPin) Latched() (bool, error) {
	return r.pin.WaitForEdge(0), nil
}

func (r *ReadyPin) Release() error {
	return r.pin.In(gpio.Float, gpio.NoEdge)
}

// ResetPin is a phy.ControlLine on a GPIO output.
type ResetPin struct {
	pin gpio.PinIO
}

// NewResetPin wraps pin.
func NewResetPin(pin gpio.PinIO) *ResetPin {
	return &ResetPin{pin: pin}
}

func (r *ResetPin) SetHigh() error {
	return r.pin.Out(gpio.High)
}

func (r *ResetPin) SetLow() error {
	return r.pin.Out(gpio.Low)
}

// Release turns the pin back into a floating input.
func (r *ResetPin) Release() error {
	return r.pin.In(gpio.Float, gpio.NoEdge)
}

func periphEdge(edge phy.Edge) gpio.Edge {
	switch edge {
	case phy.EdgeRising:
		return gpio.RisingEdge
	case phy.EdgeFalling:
		return gpio.FallingEdge
	case phy.EdgeBoth:
		return gpio.BothEdges
	default:
		return gpio.NoEdge
	}
}
