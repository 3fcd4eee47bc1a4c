// Package rpc is a call/response channel between a worker process and its
// callers over a unix socket.
//
// Messages are XDR documents framed with ONC-RPC record marking. A Requester
// sends one Call at a time, in submission order, and keeps it queued until
// the matching Response arrives, so a reconnect retransmits the call in
// flight instead of losing it. A Responder dispatches each Call to the
// handler registered for its selector and always answers, turning handler
// errors and panics into failed Responses.
//
// Delivery is at least once. Handlers run under a context that is cancelled
// when their connection closes, but a call that completed just before the
// disconnect runs again when the requester retransmits it, so side effects
// such as delete locks can be applied twice.
package rpc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/dittocache/pkg/bufpool"
)

// Call invokes the handler registered for Selector.
type Call struct {
	UID      uint64
	Selector uint32
	Args     []Value
}

// Response answers the Call with the same UID. Result is meaningful when
// Success is true, Error otherwise.
type Response struct {
	UID     uint64
	Success bool
	Result  Value
	Error   string
}

// MarshalCall encodes c as XDR.
func MarshalCall(c *Call) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, c.UID); err != nil {
		return nil, err
	}
	if _, err := xdr.Marshal(&buf, c.Selector); err != nil {
		return nil, err
	}
	if _, err := xdr.Marshal(&buf, uint32(len(c.Args))); err != nil {
		return nil, err
	}
	for _, arg := range c.Args {
		if err := encodeValue(&buf, arg); err != nil {
			return nil, fmt.Errorf("failed to encode argument: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalCall decodes a Call.
func UnmarshalCall(data []byte) (*Call, error) {
	r := bytes.NewReader(data)
	c := &Call{}
	if _, err := xdr.Unmarshal(r, &c.UID); err != nil {
		return nil, fmt.Errorf("failed to decode call uid: %w", err)
	}
	if _, err := xdr.Unmarshal(r, &c.Selector); err != nil {
		return nil, fmt.Errorf("failed to decode selector: %w", err)
	}
	var n uint32
	if _, err := xdr.Unmarshal(r, &n); err != nil {
		return nil, fmt.Errorf("failed to decode argument count: %w", err)
	}
	// Every value takes at least its 4-byte discriminant.
	if int64(n)*4 > int64(r.Len()) {
		return nil, fmt.Errorf("argument count %d exceeds message size", n)
	}
	c.Args = make([]Value, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := decodeValue(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decode argument %d: %w", i, err)
		}
		c.Args = append(c.Args, v)
	}
	return c, nil
}

// MarshalResponse encodes r as XDR. The result arm is written for
// successful responses and the error string for failed ones.
func MarshalResponse(resp *Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, resp.UID); err != nil {
		return nil, err
	}
	if _, err := xdr.Marshal(&buf, resp.Success); err != nil {
		return nil, err
	}
	if resp.Success {
		if err := encodeValue(&buf, resp.Result); err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
	} else if _, err := xdr.Marshal(&buf, resp.Error); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalResponse decodes a Response.
func UnmarshalResponse(data []byte) (*Response, error) {
	r := bytes.NewReader(data)
	resp := &Response{}
	if _, err := xdr.Unmarshal(r, &resp.UID); err != nil {
		return nil, fmt.Errorf("failed to decode response uid: %w", err)
	}
	if _, err := xdr.Unmarshal(r, &resp.Success); err != nil {
		return nil, fmt.Errorf("failed to decode response status: %w", err)
	}
	if resp.Success {
		v, err := decodeValue(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
		resp.Result = v
	} else if _, err := xdr.Unmarshal(r, &resp.Error); err != nil {
		return nil, fmt.Errorf("failed to decode error: %w", err)
	}
	return resp, nil
}

// peekUID returns the uid of a message too damaged to decode, if its first
// eight bytes survived.
func peekUID(data []byte) (uint64, bool) {
	if len(data) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data[:8]), true
}

// MaxFrameSize bounds a single message.
const MaxFrameSize = 16 << 20

const lastFragment = 0x80000000

// WriteFrame writes payload as one record-marked fragment.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	frame := bufpool.Get(4 + len(payload))
	defer bufpool.Put(frame)

	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload))|lastFragment)
	copy(frame[4:], payload)
	_, err := w.Write(frame)
	return err
}

// ReadFrame reads one record. Records split over several fragments are
// joined. EOF before the first header byte is returned as io.EOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var payload []byte
	for {
		var header [4]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.ErrUnexpectedEOF || (err == io.EOF && payload != nil) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		mark := binary.BigEndian.Uint32(header[:])
		length := mark &^ lastFragment
		if int64(len(payload))+int64(length) > MaxFrameSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, int64(len(payload))+int64(length))
		}

		start := len(payload)
		payload = append(payload, make([]byte, length)...)
		if _, err := io.ReadFull(r, payload[start:]); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}

		if mark&lastFragment != 0 {
			return payload, nil
		}
	}
}
