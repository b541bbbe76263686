package periph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/moffa90/go-cpphy/phy"
)

func TestPeriphEdge(t *testing.T) {
	tests := []struct {
		edge phy.Edge
		want gpio.Edge
	}{
		{phy.EdgeNone, gpio.NoEdge},
		{phy.EdgeRising, gpio.RisingEdge},
		{phy.EdgeFalling, gpio.FallingEdge},
		{phy.EdgeBoth, gpio.BothEdges},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, periphEdge(tt.edge), tt.edge.String())
	}
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, "/dev/spidev0.1", DevicePath(0, 1))
}

func TestSPINotOpen(t *testing.T) {
	s := NewSPI()

	assert.ErrorIs(t, s.Configure(phy.DefaultTransportConfig()), ErrNotOpen)
	assert.ErrorIs(t, s.WriteBytes([]byte{0x01}), ErrNotOpen)
	_, err := s.ReadBytes(3)
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.NoError(t, s.Close())
}

func TestSPIRejectsActiveHighCS(t *testing.T) {
	cfg := phy.DefaultTransportConfig()
	cfg.ChipSelectActiveHigh = true

	assert.ErrorIs(t, NewSPI().Configure(cfg), ErrActiveHighCS)
}

func TestResetPin(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", L: gpio.High}
	r := NewResetPin(pin)

	require.NoError(t, r.SetLow())
	assert.Equal(t, gpio.Low, pin.Read())

	require.NoError(t, r.SetHigh())
	assert.Equal(t, gpio.High, pin.Read())

	require.NoError(t, r.Release())
	assert.Equal(t, gpio.Float, pin.Pull())
}

func TestReadyPin(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO27", EdgesChan: make(chan gpio.Level, 1)}
	r := NewReadyPin(pin)

	require.NoError(t, r.ConfigureInput(phy.EdgeRising))
	assert.Equal(t, gpio.Float, pin.Pull())

	require.NoError(t, r.Release())
}
