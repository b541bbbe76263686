package protocol

import "fmt"

// Frame layout constants.
const (
	// HeaderSize is the frame header size in bytes:
	// FC(1) + LEN(1) + CHECKSUM(1)
	HeaderSize = 3

	// ChecksumOffset is the position of the checksum byte in an encoded frame
	ChecksumOffset = 2

	// MaxPayloadSize is the largest payload the single LEN byte can describe
	MaxPayloadSize = 255
)

// FrameControl identifies the message type of a frame.
// The numeric values are sent on the wire as-is and must never change.
type FrameControl byte

// Frame control values.
const (
	// ControlNOP marks an empty or idle slot
	ControlNOP FrameControl = 0

	// ControlReset requests a software reset of the companion processor
	ControlReset FrameControl = 1

	// ControlSetConfig changes the PHY configuration (baud rate)
	ControlSetConfig FrameControl = 2

	// ControlSDRRequest sends a Profibus SDR (send and request data) telegram
	ControlSDRRequest FrameControl = 3

	// ControlSDRReply carries the reply telegram of an SDR request
	ControlSDRReply FrameControl = 4

	// ControlSDNRequest sends a Profibus SDN (send data with no acknowledge) telegram
	ControlSDNRequest FrameControl = 5

	// ControlACK is a short positive acknowledge
	ControlACK FrameControl = 6

	// ControlNACK is a short negative acknowledge
	ControlNACK FrameControl = 7

	// MaxFrameControl is the highest valid frame control value
	MaxFrameControl = ControlNACK
)

// Valid reports whether fc is inside the defined frame control range.
func (fc FrameControl) Valid() bool {
	return fc <= MaxFrameControl
}

func (fc FrameControl) String() string {
	switch fc {
	case ControlNOP:
		return "NOP"
	case ControlReset:
		return "RESET"
	case ControlSetConfig:
		return "SET_CONFIG"
	case ControlSDRRequest:
		return "PB_SDR_REQUEST"
	case ControlSDRReply:
		return "PB_SDR_REPLY"
	case ControlSDNRequest:
		return "PB_SDN_REQUEST"
	case ControlACK:
		return "ACK"
	case ControlNACK:
		return "NACK"
	default:
		return fmt.Sprintf("FC(0x%02X)", byte(fc))
	}
}
