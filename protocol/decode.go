package protocol

// Decode parses a received buffer into a Frame.
//
// A buffer starting with ControlNOP is an idle marker: it decodes to an
// empty NOP frame and no further validation is applied. For every other
// frame the checks run in this order, and the first failure wins:
//
//  1. at least HeaderSize bytes (ErrFrameTooSmall)
//  2. checksum (ErrChecksumMismatch)
//  3. frame control range (ErrUnknownFrameControl)
//  4. declared LEN equals the payload size (ErrPayloadLengthMismatch)
//
// Errors are returned as *DecodeError. The returned payload is a copy and
// does not alias buf.
func Decode(buf []byte) (*Frame, error) {
	if len(buf) == 0 {
		return nil, &DecodeError{Err: ErrFrameTooSmall, Size: 0}
	}

	fc := FrameControl(buf[0])
	if fc == ControlNOP {
		return &Frame{Control: ControlNOP}, nil
	}

	if len(buf) < HeaderSize {
		return nil, &DecodeError{Err: ErrFrameTooSmall, Control: fc, Size: len(buf)}
	}

	if sum := Checksum(buf); sum != buf[ChecksumOffset] {
		return nil, &DecodeError{
			Err:      ErrChecksumMismatch,
			Control:  fc,
			Size:     len(buf),
			Expected: int(sum),
			Actual:   int(buf[ChecksumOffset]),
		}
	}

	payload := buf[HeaderSize:]

	if !fc.Valid() {
		return nil, &DecodeError{Err: ErrUnknownFrameControl, Control: fc, Size: len(buf)}
	}

	if len(payload) != int(buf[1]) {
		return nil, &DecodeError{
			Err:      ErrPayloadLengthMismatch,
			Control:  fc,
			Size:     len(buf),
			Expected: int(buf[1]),
			Actual:   len(payload),
		}
	}

	frame := &Frame{Control: fc}
	if len(payload) > 0 {
		frame.Payload = make([]byte, len(payload))
		copy(frame.Payload, payload)
	}

	return frame, nil
}
