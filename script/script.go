package script

import (
	"fmt"

	"github.com/moffa90/go-cpphy/protocol"
)

// Op is the kind of a script step.
type Op int

const (
	// OpReset sends a software reset
	OpReset Op = iota + 1

	// OpConfig switches the Profibus baud rate
	OpConfig

	// OpSDN sends a telegram without bus-level answer
	OpSDN

	// OpSDR sends a telegram and collects the answer
	OpSDR

	// OpPoll waits for the reply of an asynchronous step
	OpPoll
)

func (o Op) String() string {
	switch o {
	case OpReset:
		return "reset"
	case OpConfig:
		return "config"
	case OpSDN:
		return "sdn"
	case OpSDR:
		return "sdr"
	case OpPoll:
		return "poll"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Script is a parsed telegram script.
type Script struct {
	// Steps in file order
	Steps []*Step
}

// Step is one line of a script.
type Step struct {
	// Line is the 1-based source line
	Line int

	// Op is the step kind
	Op Op

	// BaudRate is set for OpConfig
	BaudRate int

	// Telegram is set for OpSDN and OpSDR
	Telegram []byte

	// Async sends the telegram without waiting for the reply
	Async bool
}

func (s *Step) String() string {
	switch s.Op {
	case OpConfig:
		return fmt.Sprintf("config %d", s.BaudRate)
	case OpSDN, OpSDR:
		suffix := ""
		if s.Async {
			suffix = "!"
		}
		return fmt.Sprintf("%s%s % 02X", s.Op, suffix, s.Telegram)
	default:
		return s.Op.String()
	}
}

// Sync reports whether the step waits for its reply.
func (s *Step) Sync() bool {
	return !s.Async
}

// validTelegram reports whether t fits into one frame.
func validTelegram(t []byte) error {
	if len(t) == 0 {
		return fmt.Errorf("empty telegram")
	}
	if len(t) > protocol.MaxPayloadSize {
		return fmt.Errorf("telegram too long: %d bytes, maximum is %d", len(t), protocol.MaxPayloadSize)
	}
	return nil
}
