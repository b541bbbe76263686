package protocol

import "fmt"

// Frame is a single message exchanged with the companion processor.
//
// Wire layout:
//
//	[FC][LEN][CHECKSUM][PAYLOAD...]
type Frame struct {
	// Control is the message type
	Control FrameControl

	// Payload is carried verbatim, at most MaxPayloadSize bytes
	Payload []byte
}

// Encode serializes the frame. See Encode.
func (f Frame) Encode() ([]byte, error) {
	return Encode(f.Control, f.Payload)
}

func (f Frame) String() string {
	if len(f.Payload) == 0 {
		return f.Control.String()
	}
	return fmt.Sprintf("%s [% 02X]", f.Control, f.Payload)
}

// Encode builds the wire representation of a frame.
//
// Frame structure:
//
//	[FC][LEN][CHECKSUM][PAYLOAD(LEN)]
//
// The checksum is computed over the complete buffer with the checksum
// position excluded. Returns the buffer of HeaderSize+len(payload) bytes,
// or an error if the payload does not fit in the LEN byte or fc is not a
// defined frame control.
func Encode(fc FrameControl, payload []byte) ([]byte, error) {
	if !fc.Valid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownFrameControl, byte(fc))
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes, maximum is %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	frame := make([]byte, 0, HeaderSize+len(payload))
	frame = append(frame, byte(fc), byte(len(payload)), 0)
	frame = append(frame, payload...)

	frame[ChecksumOffset] = Checksum(frame)

	return frame, nil
}
