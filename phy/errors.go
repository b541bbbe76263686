package phy

import (
	"errors"
	"fmt"

	"github.com/moffa90/go-cpphy/protocol"
)

var (
	// ErrTimeout is returned when a synchronous transaction gets no reply in time.
	ErrTimeout = errors.New("timed out waiting for reply")

	// ErrTransactionPending is returned when a command is sent while the
	// reply of a previous asynchronous command has not been polled yet.
	ErrTransactionPending = errors.New("previous transaction still pending")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
)

// TransportOpenError indicates that the transport could not be acquired.
type TransportOpenError struct {
	Bus    int
	Device int
	Err    error
}

func (e *TransportOpenError) Error() string {
	return fmt.Sprintf("failed to open transport %d.%d: %v", e.Bus, e.Device, e.Err)
}

func (e *TransportOpenError) Unwrap() error {
	return e.Err
}

// TransportConfigError indicates that the transport rejected its configuration.
type TransportConfigError struct {
	Bus    int
	Device int
	Config TransportConfig
	Err    error
}

func (e *TransportConfigError) Error() string {
	return fmt.Sprintf("failed to configure transport %d.%d (mode %d, %d Hz): %v",
		e.Bus, e.Device, e.Config.Mode(), e.Config.MaxClockHz, e.Err)
}

func (e *TransportConfigError) Unwrap() error {
	return e.Err
}

// UnexpectedReplyError indicates that the companion answered with a frame
// control the operation does not accept.
type UnexpectedReplyError struct {
	Operation string
	Want      protocol.FrameControl
	Reply     *protocol.Frame
}

func (e *UnexpectedReplyError) Error() string {
	got := "no reply"
	if e.Reply != nil {
		got = e.Reply.Control.String()
	}
	return fmt.Sprintf("%s: unexpected reply %s, want %s", e.Operation, got, e.Want)
}
