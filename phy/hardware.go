package phy

// Edge selects which transitions of an input line are latched.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeNone:
		return "none"
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "unknown"
	}
}

// TransportConfig holds the byte transport settings required by the
// companion processor.
type TransportConfig struct {
	// WordSize is the number of bits per transferred word
	WordSize int

	// ClockPolarity is CPOL (0 or 1)
	ClockPolarity int

	// ClockPhase is CPHA (0 or 1)
	ClockPhase int

	// ChipSelectActiveHigh inverts the chip select polarity
	ChipSelectActiveHigh bool

	// LSBFirst shifts the least significant bit out first
	LSBFirst bool

	// MaxClockHz is the upper bound of the transport clock
	MaxClockHz int64
}

// Mode returns the SPI mode number (0..3) formed by CPOL and CPHA.
func (c TransportConfig) Mode() int {
	return (c.ClockPolarity&1)<<1 | c.ClockPhase&1
}

// DefaultTransportConfig returns the settings the companion firmware
// expects: 8-bit words, mode 0, active-low chip select, MSB first, 200 kHz.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		WordSize:   8,
		MaxClockHz: DefaultClockHz,
	}
}

// Transport is the byte stream to the companion processor.
type Transport interface {
	// Open acquires the transport for the given bus and device
	Open(bus, device int) error

	// Configure applies word size, mode, bit order and clock rate
	Configure(cfg TransportConfig) error

	// WriteBytes writes exactly p
	WriteBytes(p []byte) error

	// ReadBytes reads exactly n bytes
	ReadBytes(n int) ([]byte, error)

	Close() error
}

// Signal is the edge-triggered "reply ready" input.
type Signal interface {
	// ConfigureInput sets the line up as an input latching the given edge
	ConfigureInput(edge Edge) error

	// Latched reports whether an edge was latched since the last call and
	// clears it. A true result guarantees at least one reply frame can be read.
	Latched() (bool, error)

	Release() error
}

// ControlLine is the digital output driving the companion's reset input.
// Low holds the companion in reset.
type ControlLine interface {
	SetHigh() error
	SetLow() error
	Release() error
}

// Hardware bundles the collaborators owned by one Engine.
type Hardware struct {
	Transport Transport
	Ready     Signal
	Reset     ControlLine
}

// Address identifies the transport instance, e.g. SPI bus 0 chip select 0.
type Address struct {
	Bus    int
	Device int
}
