package pusher

import (
	"errors"
	"fmt"
)

// Sentinel errors, matching the error kinds in errors.py: BadEventNameError,
// BadChannelNameError, and ConnectionError. ProtocolNotImplemented becomes
// ErrBinaryFrameNotSupported, and private/presence channel construction
// reports ErrNotImplemented (see channel.py's PrivateChannel/PresenceChannel).
var (
	ErrBadEventName           = errors.New("pusher: event has no name")
	ErrInvalidEvent           = errors.New("pusher: invalid event payload")
	ErrBadChannelName         = errors.New("pusher: invalid channel name")
	ErrNotConnected           = errors.New("pusher: not connected")
	ErrBinaryFrameNotSupported = errors.New("pusher: binary websocket frames are not supported")
	ErrNotImplemented         = errors.New("pusher: not implemented")
	ErrNilListener            = errors.New("pusher: listener must not be nil")
)

// PusherError is a server-reported error (pusher:error), classified by the
// code ranges in spec.md §6 and connection.py's ERROR_CODES table.
type PusherError struct {
	Code        int
	Message     string
	Description string
	Fatal       bool
}

func (e *PusherError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("pusher error %d: %s", e.Code, e.Description)
	}
	if e.Message != "" {
		return fmt.Sprintf("pusher error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("pusher error %d", e.Code)
}
