package script

import (
	"context"
	"fmt"

	"github.com/moffa90/go-cpphy/protocol"
)

// Engine is the part of *phy.Engine a script drives.
type Engine interface {
	SendReset(ctx context.Context) (*protocol.Frame, error)
	SetPhyConfig(ctx context.Context, baudRate int) (*protocol.Frame, error)
	SendTelegramSDN(ctx context.Context, telegram []byte, sync bool) (*protocol.Frame, error)
	SendTelegramSDR(ctx context.Context, telegram []byte, sync bool) (*protocol.Frame, error)
	AwaitReply(ctx context.Context) (*protocol.Frame, error)
}

// Result is the outcome of one step. Reply is nil for asynchronous steps
// and for a poll with nothing outstanding that found nothing.
type Result struct {
	Step  *Step
	Reply *protocol.Frame
}

// ResultCallback receives every executed step.
type ResultCallback func(Result)

// Run executes the steps of s in order and stops at the first error.
func Run(ctx context.Context, e Engine, s *Script, callback ResultCallback) error {
	for _, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		reply, err := Exec(ctx, e, step)
		if err != nil {
			return fmt.Errorf("line %d (%s): %w", step.Line, step, err)
		}

		if callback != nil {
			callback(Result{Step: step, Reply: reply})
		}
	}
	return nil
}

// Exec executes a single step.
func Exec(ctx context.Context, e Engine, step *Step) (*protocol.Frame, error) {
	switch step.Op {
	case OpReset:
		return e.SendReset(ctx)
	case OpConfig:
		return e.SetPhyConfig(ctx, step.BaudRate)
	case OpSDN:
		return e.SendTelegramSDN(ctx, step.Telegram, step.Sync())
	case OpSDR:
		return e.SendTelegramSDR(ctx, step.Telegram, step.Sync())
	case OpPoll:
		return e.AwaitReply(ctx)
	default:
		return nil, fmt.Errorf("unknown step %s", step.Op)
	}
}
