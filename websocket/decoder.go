package websocket

import (
	"encoding/binary"
	"slices"
)

const maxInt = int(^uint(0) >> 1)

type decodeState uint8

const (
	stateRecvHeader decodeState = iota
	stateRecvExtendedSize
	stateRecvMask
	stateRecvPayload
	stateSendGracefulClose
	stateClosed
)

func (s decodeState) String() string {
	switch s {
	case stateRecvHeader:
		return "recv-header"
	case stateRecvExtendedSize:
		return "recv-extended-size"
	case stateRecvMask:
		return "recv-mask"
	case stateRecvPayload:
		return "recv-payload"
	case stateSendGracefulClose:
		return "send-graceful-close"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler receives what a Decoder reassembles. Payloads passed to the
// handler are owned by it.
type Handler interface {
	HandleMessage(msg Message)
	HandlePing(payload []byte)
	HandlePong(payload []byte)
}

type chunk struct {
	buf []byte
	off int
}

// Decoder is an incremental WebSocket frame decoder (RFC 6455, section 5.2).
//
// Bytes handed to Decode are queued as-is; decoding resumes wherever the
// previous call ran out of input, so frames may arrive split at any byte
// boundary. A Decoder is not safe for concurrent use.
type Decoder struct {
	// RequireMask rejects unmasked frames with ErrUnmaskedFrame. Servers
	// must set it (RFC 6455, section 5.1).
	RequireMask bool

	// MaxMessageSize limits the reassembled size of a data message.
	// Zero means unlimited.
	MaxMessageSize int64

	state decodeState
	err   error

	chunks   []chunk
	buffered int

	fin     bool
	opcode  int
	masked  bool
	baseLen int
	size    int
	mask    [4]byte
	scratch [8]byte

	msgType int
	message []byte
}

// Buffered returns the number of queued bytes not yet decoded.
func (d *Decoder) Buffered() int {
	return d.buffered
}

// Err returns the error that stopped the decoder, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Decode queues p and decodes as many frames as the queued bytes allow.
// Complete messages and control frames are reported to h in order.
//
// A nil error means the decoder is waiting for more input. A *CloseError
// reports a Close frame from the peer; any other error is a protocol
// violation after which the connection must be closed with a Close frame.
// Once an error is returned, every later call returns it again.
func (d *Decoder) Decode(p []byte, h Handler) error {
	if d.err != nil {
		return d.err
	}

	if len(p) > 0 {
		buf := make([]byte, len(p))
		copy(buf, p)
		d.chunks = append(d.chunks, chunk{buf: buf})
		d.buffered += len(p)
	}

	for {
		progressed, err := d.step(h)
		if err != nil {
			d.fail(err)
			return err
		}
		if !progressed {
			return nil
		}
	}
}

func (d *Decoder) fail(err error) {
	d.err = err
	if _, ok := err.(*CloseError); ok {
		d.state = stateClosed
	} else {
		d.state = stateSendGracefulClose
	}
	d.chunks = nil
	d.buffered = 0
	d.message = nil
	d.msgType = 0
}

func (d *Decoder) step(h Handler) (bool, error) {
	switch d.state {
	case stateRecvHeader:
		return d.recvHeader()
	case stateRecvExtendedSize:
		return d.recvExtendedSize()
	case stateRecvMask:
		if d.masked {
			b, ok := d.collate(d.scratch[:0], 4)
			if !ok {
				return false, nil
			}
			copy(d.mask[:], b)
		}
		d.state = stateRecvPayload
		return true, nil
	case stateRecvPayload:
		return d.recvPayload(h)
	default:
		return false, nil
	}
}

func (d *Decoder) recvHeader() (bool, error) {
	b, ok := d.collate(d.scratch[:0], 2)
	if !ok {
		return false, nil
	}

	if b[0]&(rsv1Bit|rsv2Bit|rsv3Bit) != 0 {
		return false, ErrReservedBits
	}

	d.fin = b[0]&finalBit != 0
	d.opcode = int(b[0] & opcodeMask)
	d.masked = b[1]&maskBit != 0
	d.baseLen = int(b[1] & payloadLenMask)

	switch d.opcode {
	case TextMessage, BinaryMessage:
		if d.msgType != 0 {
			return false, ErrExpectedContinuation
		}
		d.msgType = d.opcode
	case continuationFrame:
		if d.msgType == 0 {
			return false, ErrUnexpectedContinuation
		}
	case CloseMessage, PingMessage, PongMessage:
		// Control frames may arrive between fragments (RFC 6455, section 5.4)
		// and never touch the in-progress message.
		if !d.fin {
			return false, ErrFragmentedControlFrame
		}
		if d.baseLen > maxControlFramePayloadSize {
			return false, ErrControlFramePayloadTooBig
		}
	default:
		return false, ErrInvalidOpcode
	}

	if d.RequireMask && !d.masked {
		return false, ErrUnmaskedFrame
	}

	d.state = stateRecvExtendedSize
	return true, nil
}

func (d *Decoder) recvExtendedSize() (bool, error) {
	switch d.baseLen {
	case payloadLen16:
		b, ok := d.collate(d.scratch[:0], 2)
		if !ok {
			return false, nil
		}
		d.size = int(binary.BigEndian.Uint16(b))
	case payloadLen64:
		b, ok := d.collate(d.scratch[:0], 8)
		if !ok {
			return false, nil
		}
		size := binary.BigEndian.Uint64(b)
		if size > uint64(maxInt) {
			return false, ErrReadLimit
		}
		d.size = int(size)
	default:
		d.size = d.baseLen
	}

	if !isControl(d.opcode) && d.MaxMessageSize > 0 &&
		int64(len(d.message))+int64(d.size) > d.MaxMessageSize {
		return false, ErrReadLimit
	}

	d.state = stateRecvMask
	return true, nil
}

func (d *Decoder) recvPayload(h Handler) (bool, error) {
	if isControl(d.opcode) {
		payload, ok := d.collate(nil, d.size)
		if !ok {
			return false, nil
		}
		if d.masked {
			maskBytes(d.mask[:], 0, payload)
		}
		d.state = stateRecvHeader

		switch d.opcode {
		case PingMessage:
			h.HandlePing(payload)
		case PongMessage:
			h.HandlePong(payload)
		case CloseMessage:
			return false, parseCloseMessage(payload)
		}
		return true, nil
	}

	start := len(d.message)
	message, ok := d.collate(d.message, d.size)
	if !ok {
		return false, nil
	}
	if d.masked {
		maskBytes(d.mask[:], 0, message[start:])
	}
	d.message = message
	d.state = stateRecvHeader

	if d.fin {
		msg := Message{Type: d.msgType, Data: d.message}
		if msg.Data == nil {
			msg.Data = []byte{}
		}
		d.message = nil
		d.msgType = 0
		h.HandleMessage(msg)
	}
	return true, nil
}

// collate appends exactly n queued bytes to dst. It reports false and
// leaves the queue untouched when fewer than n bytes are buffered.
// Drained chunks are dropped from the front of the queue.
func (d *Decoder) collate(dst []byte, n int) ([]byte, bool) {
	if d.buffered < n {
		return dst, false
	}

	dst = slices.Grow(dst, n)
	for n > 0 {
		c := &d.chunks[0]
		k := min(n, len(c.buf)-c.off)
		dst = append(dst, c.buf[c.off:c.off+k]...)
		c.off += k
		n -= k
		d.buffered -= k

		if c.off == len(c.buf) {
			d.chunks[0] = chunk{}
			d.chunks = d.chunks[1:]
		}
	}

	if len(d.chunks) == 0 {
		d.chunks = nil
	}
	return dst, true
}
