package protocol

import "errors"

var (
	// ErrShortBuffer is returned when a message body is smaller than the
	// fixed header. Payload fields that run past the end of the body are
	// reported as ErrLengthMismatch.
	ErrShortBuffer = errors.New("protocol: buffer too short")
	// ErrUnknownType is returned when a message body's type tag does not
	// match any known MessageType.
	ErrUnknownType = errors.New("protocol: unknown message type")
	// ErrLengthMismatch is returned when a variable-length field's declared
	// length does not fit within the remaining buffer.
	ErrLengthMismatch = errors.New("protocol: declared length exceeds buffer")
)
