package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"slices"
)

var randReader io.Reader = rand.Reader

// FormatCloseMessage formats closeCode and text as a WebSocket close message
// per RFC 6455, section 5.5.1. The close frame body consists of a 2-byte
// status code followed by optional UTF-8 encoded reason text.
func FormatCloseMessage(closeCode int, text string) []byte {
	if closeCode == CloseNoStatusReceived {
		return []byte{}
	}
	buf := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(buf, uint16(closeCode))
	copy(buf[2:], text)
	return buf
}

// parseCloseMessage is the inverse of FormatCloseMessage.
func parseCloseMessage(payload []byte) *CloseError {
	if len(payload) < 2 {
		return &CloseError{Code: CloseNoStatusReceived}
	}
	return &CloseError{
		Code: int(binary.BigEndian.Uint16(payload)),
		Text: string(payload[2:]),
	}
}

// IsCloseError returns true if the error is a CloseError with one of the specified codes.
// Close codes are defined in RFC 6455, section 7.4.1.
func IsCloseError(err error, codes ...int) bool {
	var closeErr *CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	return slices.Contains(codes, closeErr.Code)
}

// IsProtocolError reports whether err is a decoding failure caused by a
// misbehaving peer, as opposed to a Close frame or an I/O error.
func IsProtocolError(err error) bool {
	switch {
	case errors.Is(err, ErrReservedBits),
		errors.Is(err, ErrInvalidOpcode),
		errors.Is(err, ErrUnmaskedFrame),
		errors.Is(err, ErrReadLimit),
		errors.Is(err, ErrFragmentedControlFrame),
		errors.Is(err, ErrControlFramePayloadTooBig),
		errors.Is(err, ErrUnexpectedContinuation),
		errors.Is(err, ErrExpectedContinuation):
		return true
	}
	return false
}
