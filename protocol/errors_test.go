package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     *DecodeError
		wantMsg []string
	}{
		{
			name:    "too small",
			err:     &DecodeError{Err: ErrFrameTooSmall, Size: 2},
			wantMsg: []string{"frame too small", "got 2 bytes", "minimum is 3"},
		},
		{
			name:    "checksum",
			err:     &DecodeError{Err: ErrChecksumMismatch, Expected: 0xF9, Actual: 0x00},
			wantMsg: []string{"checksum mismatch", "0xF9", "0x00"},
		},
		{
			name:    "unknown control",
			err:     &DecodeError{Err: ErrUnknownFrameControl, Control: 0x09},
			wantMsg: []string{"unknown frame control 0x09"},
		},
		{
			name:    "length",
			err:     &DecodeError{Err: ErrPayloadLengthMismatch, Expected: 4, Actual: 2},
			wantMsg: []string{"declares 4 bytes", "got 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errMsg := tt.err.Error()
			for _, want := range tt.wantMsg {
				if !strings.Contains(errMsg, want) {
					t.Errorf("error message should contain %q, got: %s", want, errMsg)
				}
			}
			if !errors.Is(tt.err, tt.err.Err) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.err.Err)
			}
		})
	}
}

func TestInvalidBaudRateError(t *testing.T) {
	err := &InvalidBaudRateError{BaudRate: 100}

	if !strings.Contains(err.Error(), "100") {
		t.Errorf("error message should contain baud rate, got: %s", err.Error())
	}

	if !errors.Is(err, ErrInvalidBaudRate) {
		t.Error("errors.Is(err, ErrInvalidBaudRate) = false")
	}
}

func TestErrorTypes(t *testing.T) {
	var _ error = &DecodeError{}
	var _ error = &InvalidBaudRateError{}
}
