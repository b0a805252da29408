package realtime

import "errors"

var (
	ErrClosed            = errors.New("realtime channel is closed")
	ErrNotSubscribed     = errors.New("not subscribed to board")
	ErrUnexpectedPayload = errors.New("unexpected change payload")
)
