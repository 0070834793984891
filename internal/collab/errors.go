package collab

import "errors"

var (
	// ErrHandshake means required connect parameters were missing or
	// invalid; the connection is terminated without attaching.
	ErrHandshake = errors.New("collab: invalid handshake")

	// ErrInvalidRange means an edit addressed coordinates outside the
	// current buffer; the edit is dropped whole.
	ErrInvalidRange = errors.New("collab: edit range out of bounds")

	// ErrEntityNotFound means an operation referenced a room, session
	// or file that no longer exists.
	ErrEntityNotFound = errors.New("collab: entity not found")
)
