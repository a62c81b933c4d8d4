package websocket

import (
	"bytes"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTypeConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant int
		expected int
	}{
		{"TextMessage", TextMessage, 1},
		{"BinaryMessage", BinaryMessage, 2},
		{"CloseMessage", CloseMessage, 8},
		{"PingMessage", PingMessage, 9},
		{"PongMessage", PongMessage, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.constant)
		})
	}
}

func TestCloseError(t *testing.T) {
	t.Run("Error message format", func(t *testing.T) {
		err := &CloseError{Code: CloseNormalClosure, Text: "goodbye"}
		assert.Contains(t, err.Error(), "websocket: close")
		assert.Contains(t, err.Error(), "1000")
		assert.Contains(t, err.Error(), "goodbye")
	})

	t.Run("Unknown close code", func(t *testing.T) {
		err := &CloseError{Code: 4000, Text: "custom"}
		assert.Contains(t, err.Error(), "4000")
	})
}

func TestCloseCodeString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{CloseNormalClosure, "1000 (normal)"},
		{CloseGoingAway, "1001 (going away)"},
		{CloseProtocolError, "1002 (protocol error)"},
		{CloseNoStatusReceived, "1005 (no status)"},
		{CloseMessageTooBig, "1009 (message too big)"},
		{CloseTLSHandshake, "1015 (TLS handshake)"},
		{4000, "4000"},
		{4999, "4999"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, closeCodeString(tt.code))
		})
	}
}

func TestMaskBytes(t *testing.T) {
	t.Run("Basic masking", func(t *testing.T) {
		data := []byte("hello")
		mask := []byte{0x12, 0x34, 0x56, 0x78}
		original := make([]byte, len(data))
		copy(original, data)

		maskBytes(mask, 0, data)
		assert.NotEqual(t, original, data)

		maskBytes(mask, 0, data)
		assert.Equal(t, original, data)
	})

	t.Run("With offset", func(t *testing.T) {
		data := []byte("test")
		mask := []byte{0xAA, 0xBB, 0xCC, 0xDD}

		pos := maskBytes(mask, 0, data)
		assert.Equal(t, 0, pos)

		pos = maskBytes(mask, 1, []byte("abc"))
		assert.Equal(t, 0, pos)
	})
}

func TestEncodeMessage(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		headerLen  int
		lengthByte byte
	}{
		{"Empty payload", 0, 2, 0},
		{"Small payload", 5, 2, 5},
		{"Largest 7-bit length", 125, 2, 125},
		{"Smallest 16-bit length", 126, 4, payloadLen16},
		{"Largest 16-bit length", 65535, 4, payloadLen16},
		{"Smallest 64-bit length", 65536, 10, payloadLen64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			frame, err := EncodeMessage(BinaryMessage, data)
			require.NoError(t, err)

			assert.Len(t, frame, tt.headerLen+tt.size)
			assert.Equal(t, byte(BinaryMessage)|finalBit, frame[0])
			assert.Equal(t, tt.lengthByte, frame[1])
			assert.Zero(t, frame[1]&maskBit, "server frames are never masked")
		})
	}

	t.Run("16-bit length is big-endian", func(t *testing.T) {
		frame, err := EncodeMessage(TextMessage, make([]byte, 300))
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x2c}, frame[2:4])
	})

	t.Run("64-bit length is big-endian", func(t *testing.T) {
		frame, err := EncodeMessage(TextMessage, make([]byte, 70000))
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 0, 0, 0, 0x01, 0x11, 0x70}, frame[2:10])
	})

	t.Run("Invalid message type", func(t *testing.T) {
		_, err := EncodeMessage(PingMessage, nil)
		assert.ErrorIs(t, err, ErrInvalidMessageType)
	})
}

func TestEncodeControl(t *testing.T) {
	t.Run("Pong", func(t *testing.T) {
		frame, err := EncodeControl(PongMessage, []byte("hb"))
		require.NoError(t, err)
		assert.Equal(t, []byte{finalBit | PongMessage, 2, 'h', 'b'}, frame)
	})

	t.Run("Not a control opcode", func(t *testing.T) {
		_, err := EncodeControl(TextMessage, nil)
		assert.ErrorIs(t, err, ErrInvalidControlFrame)
	})

	t.Run("Payload too big", func(t *testing.T) {
		_, err := EncodeControl(PingMessage, make([]byte, 126))
		assert.ErrorIs(t, err, ErrControlFramePayloadTooBig)
	})
}

func TestCloseFrame(t *testing.T) {
	assert.Equal(t, []byte{0x88, 0x00}, CloseFrame())
}

func TestBuildFrame(t *testing.T) {
	t.Run("Server frame not masked", func(t *testing.T) {
		frame := buildFrame(TextMessage, []byte("hello"), false)

		assert.Equal(t, byte(TextMessage)|finalBit, frame[0])
		assert.Equal(t, byte(5), frame[1])
		assert.Equal(t, []byte("hello"), frame[2:])
	})

	t.Run("Client frame masked", func(t *testing.T) {
		frame := buildFrame(TextMessage, []byte("hello"), true)
		require.Len(t, frame, 2+4+5)

		assert.Equal(t, byte(TextMessage)|finalBit, frame[0])
		assert.Equal(t, byte(5)|maskBit, frame[1])

		payload := append([]byte(nil), frame[6:]...)
		maskBytes(frame[2:6], 0, payload)
		assert.Equal(t, []byte("hello"), payload)
	})

	t.Run("Source data untouched by masking", func(t *testing.T) {
		data := []byte("hello")
		_ = buildFrame(TextMessage, data, true)
		assert.Equal(t, []byte("hello"), data)
	})

	t.Run("Mask filled from short reads", func(t *testing.T) {
		orig := randReader
		randReader = iotest.OneByteReader(bytes.NewReader([]byte{0x11, 0x22, 0x33, 0x44}))
		defer func() { randReader = orig }()

		frame := buildFrame(TextMessage, []byte("hi"), true)
		require.Len(t, frame, 2+4+2)
		assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, frame[2:6])
		assert.Equal(t, []byte{'h' ^ 0x11, 'i' ^ 0x22}, frame[6:])
	})
}

func FuzzBuildFrame(f *testing.F) {
	f.Add(TextMessage, []byte("hello"), false)
	f.Add(BinaryMessage, []byte{0x00, 0x01, 0x02}, true)
	f.Add(TextMessage, []byte{}, false)

	f.Fuzz(func(t *testing.T, msgType int, data []byte, masked bool) {
		if msgType != TextMessage && msgType != BinaryMessage {
			return
		}
		if len(data) > 10000 {
			data = data[:10000]
		}

		frame := buildFrame(msgType, data, masked)

		if len(frame) < 2 {
			t.Errorf("frame too short: %d", len(frame))
			return
		}

		if opcode := int(frame[0] & opcodeMask); opcode != msgType {
			t.Errorf("opcode mismatch: got %d, want %d", opcode, msgType)
		}

		if frame[0]&finalBit == 0 {
			t.Errorf("final bit not set")
		}

		if masked != (frame[1]&maskBit != 0) {
			t.Errorf("mask bit mismatch")
		}
	})
}
