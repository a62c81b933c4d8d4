package websocket

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPreparedMessage(t *testing.T) {
	tests := []struct {
		name          string
		messageType   int
		data          []byte
		expectErr     bool
		expectedErrIs error
	}{
		{
			name:        "Valid text message",
			messageType: TextMessage,
			data:        []byte("hello"),
		},
		{
			name:        "Valid binary message",
			messageType: BinaryMessage,
			data:        []byte{0x01, 0x02, 0x03},
		},
		{
			name:          "Invalid message type",
			messageType:   PingMessage,
			data:          []byte("ping"),
			expectErr:     true,
			expectedErrIs: ErrInvalidMessageType,
		},
		{
			name:        "Empty data",
			messageType: TextMessage,
			data:        []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, err := NewPreparedMessage(tt.messageType, tt.data)

			if tt.expectErr {
				assert.Nil(t, pm)
				assert.ErrorIs(t, err, tt.expectedErrIs)

				return
			}

			require.NoError(t, err)
			require.NotNil(t, pm)
			assert.Equal(t, tt.messageType, pm.Type())

			expected, err := EncodeMessage(tt.messageType, tt.data)
			require.NoError(t, err)
			assert.Equal(t, expected, pm.Frame())
		})
	}
}

func TestPreparedMessageFrameCached(t *testing.T) {
	pm, err := NewPreparedMessage(TextMessage, []byte("hello"))
	require.NoError(t, err)

	frames := make([][]byte, 8)

	var wg sync.WaitGroup
	for i := range frames {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frames[i] = pm.Frame()
		}()
	}
	wg.Wait()

	for _, frame := range frames {
		assert.Same(t, &frames[0][0], &frame[0])
	}
}
