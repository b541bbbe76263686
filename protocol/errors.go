package protocol

import (
	"errors"
	"fmt"
)

// Decode failure kinds. Match them with errors.Is on any error returned
// by Decode.
var (
	ErrFrameTooSmall         = errors.New("frame too small")
	ErrChecksumMismatch      = errors.New("checksum mismatch")
	ErrUnknownFrameControl   = errors.New("unknown frame control")
	ErrPayloadLengthMismatch = errors.New("payload length mismatch")
)

// ErrPayloadTooLarge is returned when a payload does not fit in a frame.
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrInvalidBaudRate is matched by *InvalidBaudRateError.
var ErrInvalidBaudRate = errors.New("invalid baud rate")

// DecodeError describes why a received buffer was rejected.
type DecodeError struct {
	// Err is one of the Err* decode kinds
	Err error

	// Control is the raw frame control byte of the buffer
	Control FrameControl

	// Size is the length of the rejected buffer
	Size int

	// Expected and Actual carry the checksum or length values that
	// disagreed; zero for other kinds
	Expected int
	Actual   int
}

func (e *DecodeError) Error() string {
	switch e.Err {
	case ErrFrameTooSmall:
		return fmt.Sprintf("decode frame: %v: got %d bytes, minimum is %d", e.Err, e.Size, HeaderSize)
	case ErrChecksumMismatch:
		return fmt.Sprintf("decode frame: %v: computed 0x%02X, frame carries 0x%02X", e.Err, e.Expected, e.Actual)
	case ErrUnknownFrameControl:
		return fmt.Sprintf("decode frame: %v 0x%02X", e.Err, byte(e.Control))
	case ErrPayloadLengthMismatch:
		return fmt.Sprintf("decode frame: %v: header declares %d bytes, got %d", e.Err, e.Expected, e.Actual)
	default:
		return fmt.Sprintf("decode frame: %v", e.Err)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true if err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// InvalidBaudRateError indicates a baud rate the companion processor does not support.
type InvalidBaudRateError struct {
	BaudRate int
}

func (e *InvalidBaudRateError) Error() string {
	return fmt.Sprintf("invalid baud rate %d bit/s", e.BaudRate)
}

func (e *InvalidBaudRateError) Is(target error) bool {
	return target == ErrInvalidBaudRate
}
