// Package phy drives the link to a Profibus DP communication processor.
//
// # Overview
//
// An Engine owns one physical link made of three collaborators:
//   - a Transport carrying frames (usually SPI)
//   - a Signal raised by the companion when a reply is ready
//   - a ControlLine wired to the companion's reset input
//
// Open resets the companion, brings the transport up and confirms the link
// with a software reset. Every command is a single frame (see package
// protocol); a synchronous command blocks until the reply frame arrives.
//
// # Basic Usage
//
//	hw, err := periph.NewHardware(periph.DefaultPins())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine, err := phy.Open(ctx, hw, phy.Address{Bus: 0, Device: 0})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	if _, err := engine.SetPhyConfig(ctx, 1500000); err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := engine.SendTelegramSDR(ctx, telegram, true)
//
// # Asynchronous Commands
//
// With sync set to false the command returns right after the write. The
// reply is collected later:
//
//	if _, err := engine.SendTelegramSDN(ctx, telegram, false); err != nil {
//	    return err
//	}
//	for {
//	    reply, err := engine.PollReply()
//	    if err != nil {
//	        return err
//	    }
//	    if reply != nil {
//	        break
//	    }
//	    // do other work
//	}
//
// AwaitReply blocks until that reply arrives instead.
//
// Only one command may be outstanding; sending another one before the
// reply was polled fails with ErrTransactionPending. A synchronous command
// that timed out stays outstanding too: drain its late reply with
// PollReply or AwaitReply, or drop it with ClearPending.
//
// # Timeouts
//
// Synchronous commands poll the ready signal every PollInterval and give up
// after ReplyTimeout with ErrTimeout. The caller's context is honoured as
// well.
//
// # Error Handling
//
// The package provides structured error types:
//   - TransportOpenError, TransportConfigError: link bring-up failed
//   - UnexpectedReplyError: the companion answered with the wrong frame control
//   - protocol.DecodeError: a reply failed validation
//   - protocol.InvalidBaudRateError: unsupported baud rate, nothing was sent
package phy
