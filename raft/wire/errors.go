package wire

import (
	"errors"
	"fmt"
)

// ErrProtocol classifies every decoding failure caused by the bytes
// themselves rather than by the underlying stream.
var ErrProtocol = errors.New("wire: protocol corruption")

// ErrTooManyEntries is returned when encoding a batch above MaxEntries.
var ErrTooManyEntries = errors.New("wire: too many entries in one packet")

// ErrCommandTooLarge is returned when encoding a payload above MaxCommandSize.
var ErrCommandTooLarge = errors.New("wire: command too large")

// ProtocolError reports where and why a packet failed to decode.
type ProtocolError struct {
	Offset int64
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wire: protocol corruption at offset %d: %s", e.Offset, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}
