package websocket

import (
	"sync"
)

// PreparedMessage caches the on-the-wire representation of a message payload.
// Use PreparedMessage to send the same payload to many connections while
// encoding the frame only once.
type PreparedMessage struct {
	messageType int
	data        []byte

	once  sync.Once
	frame []byte
}

// NewPreparedMessage returns an initialized PreparedMessage.
func NewPreparedMessage(messageType int, data []byte) (*PreparedMessage, error) {
	if messageType != TextMessage && messageType != BinaryMessage {
		return nil, ErrInvalidMessageType
	}

	return &PreparedMessage{
		messageType: messageType,
		data:        data,
	}, nil
}

// Type returns the message type.
func (pm *PreparedMessage) Type() int {
	return pm.messageType
}

// Frame returns the encoded server frame. The returned slice is shared
// and must not be modified.
func (pm *PreparedMessage) Frame() []byte {
	pm.once.Do(func() {
		pm.frame = buildFrame(pm.messageType, pm.data, false)
	})
	return pm.frame
}
