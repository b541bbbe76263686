package phy

import (
	"time"

	"github.com/moffa90/go-cpphy/protocol"
)

// Direction of a traced frame.
const (
	DirectionTx = "tx"
	DirectionRx = "rx"
)

// Trace describes one frame crossing the link.
// Passed to TraceCallback after every write and every reply read.
type Trace struct {
	// Direction is DirectionTx or DirectionRx
	Direction string

	// Control is the raw frame control byte
	Control protocol.FrameControl

	// Raw is the complete frame as sent or received
	Raw []byte

	// Time is when the transfer completed
	Time time.Time
}

// TraceCallback is called for every frame written or read.
// Implementations should return quickly; the callback runs inside the
// transaction.
//
// Example:
//
//	engine, err := phy.Open(ctx, hw, addr,
//	    phy.WithTraceCallback(func(t phy.Trace) {
//	        fmt.Printf("%s % 02X\n", t.Direction, t.Raw)
//	    }),
//	)
type TraceCallback func(Trace)

// Logger is an optional logging interface that can be provided to the engine.
// This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	engine, err := phy.Open(ctx, hw, addr, phy.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
