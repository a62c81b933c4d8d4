package websocket

import (
	"errors"
	"io"
)

// Message types defined in RFC 6455, section 11.8.
const (
	TextMessage   = 1
	BinaryMessage = 2
	CloseMessage  = 8
	PingMessage   = 9
	PongMessage   = 10
)

// Close codes defined in RFC 6455, section 7.4.1.
const (
	CloseNormalClosure           = 1000
	CloseGoingAway               = 1001
	CloseProtocolError           = 1002
	CloseUnsupportedData         = 1003
	CloseNoStatusReceived        = 1005
	CloseAbnormalClosure         = 1006
	CloseInvalidFramePayloadData = 1007
	ClosePolicyViolation         = 1008
	CloseMessageTooBig           = 1009
	CloseMandatoryExtension      = 1010
	CloseInternalServerErr       = 1011
	CloseServiceRestart          = 1012
	CloseTryAgainLater           = 1013
	CloseTLSHandshake            = 1015
)

// Errors returned by the websocket package.
var (
	ErrBadHandshake              = errors.New("websocket: bad handshake")
	ErrReadLimit                 = errors.New("websocket: read limit exceeded")
	ErrInvalidControlFrame       = errors.New("websocket: invalid control frame")
	ErrInvalidMessageType        = errors.New("websocket: invalid message type")
	ErrWriteToClosedConnection   = errors.New("websocket: write to closed connection")
	ErrReservedBits              = errors.New("websocket: reserved bits set")
	ErrInvalidOpcode             = errors.New("websocket: invalid opcode")
	ErrUnmaskedFrame             = errors.New("websocket: unmasked client frame")
	ErrFragmentedControlFrame    = errors.New("websocket: fragmented control frame")
	ErrControlFramePayloadTooBig = errors.New("websocket: control frame payload too big")
	ErrUnexpectedContinuation    = errors.New("websocket: unexpected continuation frame")
	ErrExpectedContinuation      = errors.New("websocket: expected continuation frame")
)

// CloseError represents a Close frame received from the peer.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	return "websocket: close " + closeCodeString(e.Code) + " " + e.Text
}

func closeCodeString(code int) string {
	switch code {
	case CloseNormalClosure:
		return "1000 (normal)"
	case CloseGoingAway:
		return "1001 (going away)"
	case CloseProtocolError:
		return "1002 (protocol error)"
	case CloseUnsupportedData:
		return "1003 (unsupported data)"
	case CloseNoStatusReceived:
		return "1005 (no status)"
	case CloseAbnormalClosure:
		return "1006 (abnormal closure)"
	case CloseInvalidFramePayloadData:
		return "1007 (invalid payload)"
	case ClosePolicyViolation:
		return "1008 (policy violation)"
	case CloseMessageTooBig:
		return "1009 (message too big)"
	case CloseMandatoryExtension:
		return "1010 (mandatory extension)"
	case CloseInternalServerErr:
		return "1011 (internal server error)"
	case CloseServiceRestart:
		return "1012 (service restart)"
	case CloseTryAgainLater:
		return "1013 (try again later)"
	case CloseTLSHandshake:
		return "1015 (TLS handshake)"
	default:
		return string(rune('0'+code/1000)) + string(rune('0'+(code/100)%10)) + string(rune('0'+(code/10)%10)) + string(rune('0'+code%10))
	}
}

// Frame header constants per RFC 6455, section 5.2.
const (
	maxFrameHeaderSize         = 14  // 2 bytes base + 8 bytes extended length + 4 bytes mask
	maxControlFramePayloadSize = 125 // RFC 6455, section 5.5: control frame payload <= 125 bytes

	// First byte bits (RFC 6455, section 5.2).
	finalBit = 1 << 7
	rsv1Bit  = 1 << 6
	rsv2Bit  = 1 << 5
	rsv3Bit  = 1 << 4

	// Second byte bits (RFC 6455, section 5.2).
	maskBit = 1 << 7

	opcodeMask     = 0x0f
	payloadLenMask = 0x7f
	payloadLen16   = 126 // 16-bit extended payload length follows
	payloadLen64   = 127 // 64-bit extended payload length follows

	// Opcode for continuation frame (RFC 6455, section 5.4).
	continuationFrame = 0
)

// Message is one reassembled data message. Data is owned by whoever
// receives the Message; the decoder never touches it again.
type Message struct {
	Type int
	Data []byte
}

// isControl reports whether opcode is a control opcode (RFC 6455, section 5.5).
func isControl(opcode int) bool {
	return opcode >= CloseMessage
}

// EncodeMessage encodes data as a single final, unmasked frame as sent by a
// server (RFC 6455, section 5.1). The header is 2, 4 or 10 bytes depending
// on the payload length, and the result is suitable for one transport write.
func EncodeMessage(messageType int, data []byte) ([]byte, error) {
	if messageType != TextMessage && messageType != BinaryMessage {
		return nil, ErrInvalidMessageType
	}
	return buildFrame(messageType, data, false), nil
}

// EncodeControl encodes a final, unmasked control frame.
func EncodeControl(opcode int, data []byte) ([]byte, error) {
	if opcode != CloseMessage && opcode != PingMessage && opcode != PongMessage {
		return nil, ErrInvalidControlFrame
	}
	if len(data) > maxControlFramePayloadSize {
		return nil, ErrControlFramePayloadTooBig
	}
	return buildFrame(opcode, data, false), nil
}

// CloseFrame returns the minimal Close frame: FIN set, opcode Close, no
// payload, unmasked.
func CloseFrame() []byte {
	return []byte{finalBit | CloseMessage, 0}
}

func buildFrame(opcode int, data []byte, masked bool) []byte {
	header := make([]byte, maxFrameHeaderSize)
	headerLen := 2

	header[0] = byte(opcode) | finalBit

	payloadLen := len(data)
	switch {
	case payloadLen <= 125:
		header[1] = byte(payloadLen)
	case payloadLen <= 65535:
		header[1] = payloadLen16
		header[2] = byte(payloadLen >> 8)
		header[3] = byte(payloadLen)
		headerLen = 4
	default:
		header[1] = payloadLen64
		header[2] = byte(payloadLen >> 56)
		header[3] = byte(payloadLen >> 48)
		header[4] = byte(payloadLen >> 40)
		header[5] = byte(payloadLen >> 32)
		header[6] = byte(payloadLen >> 24)
		header[7] = byte(payloadLen >> 16)
		header[8] = byte(payloadLen >> 8)
		header[9] = byte(payloadLen)
		headerLen = 10
	}

	var mask []byte
	if masked {
		header[1] |= maskBit
		mask = header[headerLen : headerLen+4]
		_, _ = io.ReadFull(randReader, mask)
		headerLen += 4
	}

	frame := make([]byte, headerLen+payloadLen)
	copy(frame, header[:headerLen])
	copy(frame[headerLen:], data)
	if masked {
		maskBytes(mask, 0, frame[headerLen:])
	}
	return frame
}

// maskBytes applies XOR masking to data per RFC 6455, section 5.3.
// The mask is a 4-byte value, applied cyclically to each byte of the payload.
func maskBytes(mask []byte, pos int, data []byte) int {
	for i := range data {
		data[i] ^= mask[(pos+i)%4]
	}
	return (pos + len(data)) % 4
}
