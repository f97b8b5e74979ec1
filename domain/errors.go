package domain

import (
	"errors"
	"fmt"
)

var (
	// Connection level failure. Terminal for the connection, the owner decides whether to resubscribe.
	ErrTransport = errors.New("transport error")
	// Malformed numeric field. The offending item is dropped, processing continues.
	ErrParse = errors.New("parse error")

	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrInvalidViewParams   = errors.New("invalid view params")
	ErrUnsupportedProduct  = errors.New("unsupported product")
)

type TransportError struct {
	Channel Channel
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s channel: %s: %v", e.Channel, ErrTransport, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: field %s: invalid value %q", ErrParse, e.Field, e.Value)
	}
	return fmt.Sprintf("%s: field %s: invalid value %q: %v", ErrParse, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}
