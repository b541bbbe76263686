package main

import (
	"fmt"

	"github.com/moffa90/go-cpphy/config"
	"github.com/moffa90/go-cpphy/hw/periph"
	"github.com/moffa90/go-cpphy/hw/serial"
	"github.com/moffa90/go-cpphy/phy"
	"github.com/moffa90/go-cpphy/sim"
)

func openHardware(cfg *config.Config) (phy.Hardware, error) {
	switch cfg.Link.Driver {
	case config.DriverPeriph:
		return periph.NewHardware(periph.Pins{Reset: cfg.Link.ResetPin, Ready: cfg.Link.ReadyPin})
	case config.DriverSerial:
		return serial.NewHardware(serial.Config{Port: cfg.Link.SerialPort, BaudRate: cfg.Link.SerialBaud}), nil
	case config.DriverSim:
		return sim.New().Hardware(), nil
	default:
		return phy.Hardware{}, fmt.Errorf("unknown driver %q", cfg.Link.Driver)
	}
}
