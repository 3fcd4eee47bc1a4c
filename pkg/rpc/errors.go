package rpc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotReady is returned by calls made before the requester first
	// connected. Such calls are rejected, never queued.
	ErrNotReady = errors.New("rpc: not ready")

	// ErrGaveUp is returned once the requester stopped reconnecting.
	ErrGaveUp = errors.New("rpc: gave up reconnecting")

	// ErrClosed is returned by calls on a closed requester or responder.
	ErrClosed = errors.New("rpc: closed")

	// ErrUnknownSelector is reported for calls to unregistered selectors.
	ErrUnknownSelector = errors.New("rpc: unknown selector")

	// ErrFrameTooLarge is returned for frames above MaxFrameSize.
	ErrFrameTooLarge = errors.New("rpc: frame too large")

	// ErrTypeMismatch is returned when a Value holds another kind than
	// requested.
	ErrTypeMismatch = errors.New("rpc: value type mismatch")
)

// RemoteError is a failed Response as seen by the requester.
type RemoteError struct {
	Selector uint32
	Message  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: selector %d failed: %s", e.Selector, e.Message)
}

// Unwrap maps well-known responder failures back to their sentinels.
func (e *RemoteError) Unwrap() error {
	if strings.HasPrefix(e.Message, ErrUnknownSelector.Error()) {
		return ErrUnknownSelector
	}
	return nil
}

// IsRemoteError reports whether err is a failed Response.
func IsRemoteError(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote)
}
