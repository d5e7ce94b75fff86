package session

import "errors"

// Protocol errors. They are logged and never sent to peers.
var (
	ErrMalformed      = errors.New("malformed message")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrNotJoined      = errors.New("not joined to a room")
	ErrWrongRoom      = errors.New("message references a different room")
	ErrNotStreaming   = errors.New("no stroke in progress")
	ErrDisconnected   = errors.New("session disconnected")
	ErrNothingToUndo  = errors.New("nothing to undo")
	ErrNothingToRedo  = errors.New("nothing to redo")
	ErrInvalidCursor  = errors.New("cursor position missing or out of range")
	ErrRateLimited    = errors.New("rate limited")
	ErrSlowConsumer   = errors.New("outbound queue overflowed")
)
