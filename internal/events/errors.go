package events

import "fmt"

// ValidationError reports an event that cannot be normalized. Such events are
// dropped; the transport still acknowledges them.
type ValidationError struct {
	Type   EventType
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s event: %s %s", e.typeLabel(), e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) typeLabel() string {
	if e.Type == "" {
		return "untyped"
	}
	return string(e.Type)
}

func missing(t EventType, field string) *ValidationError {
	return &ValidationError{Type: t, Field: field, Reason: "is required"}
}
