package chatkit

import "errors"

var (
	// ErrInvalidRequest means the body is not a request envelope.
	ErrInvalidRequest = errors.New("chatkit: invalid request")
	// ErrUnknownRequest means the request type is not supported.
	ErrUnknownRequest = errors.New("chatkit: unknown request type")
	// ErrInvalidParams means the params don't match the request type.
	ErrInvalidParams = errors.New("chatkit: invalid params")
	// ErrThreadNotFound means the referenced thread does not exist.
	ErrThreadNotFound = errors.New("chatkit: thread not found")
	// ErrItemNotFound means the referenced item does not exist.
	ErrItemNotFound = errors.New("chatkit: item not found")
)
