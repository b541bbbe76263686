// Package protocol implements the message framing used between the host and
// the Profibus DP communication processor (CP) PHY.
//
// # Frame Format
//
// Every command and reply is a single frame:
//
//	[FC][LEN][CHECKSUM][PAYLOAD...]
//
// Where:
//   - FC = frame control, see the Control* constants (0..7)
//   - LEN = payload length in bytes (0..255)
//   - CHECKSUM = one's complement of the 8-bit sum of all other bytes
//
// There are no multi-byte fields, so byte order never matters. A single
// 0x00 byte (NOP) is an idle marker and is accepted without any checks.
//
// # Encoding
//
//	buf, err := protocol.Encode(protocol.ControlSDRRequest, telegram)
//
// # Decoding
//
//	frame, err := protocol.Decode(buf)
//	if errors.Is(err, protocol.ErrChecksumMismatch) {
//	    // corrupted on the link
//	}
//
// # Baud Rates
//
// The companion processor is configured with a small identifier instead of
// the baud rate itself. BaudRateID and BaudRateFromID translate between the
// two for the ten supported Profibus rates.
package protocol
