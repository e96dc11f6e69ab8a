package migration

import (
	"errors"
	"fmt"
)

// ErrUnknownMethod is returned for method names outside the catalogue.
type ErrUnknownMethod struct{ Method string }

func (e ErrUnknownMethod) Error() string { return fmt.Sprintf("unknown migration method %q", e.Method) }

// ErrRoleMismatch is returned when a method is requested for the wrong role.
type ErrRoleMismatch struct {
	Method Method
	Want   Role
}

func (e ErrRoleMismatch) Error() string {
	return fmt.Sprintf("method %q is a %s method, not a %s method", e.Method, e.Method.Role(), e.Want)
}

var (
	// ErrMalformedDescriptor marks a queued work descriptor that cannot be
	// decoded or fails validation.
	ErrMalformedDescriptor = errors.New("malformed work descriptor")

	// ErrMalformedStatus marks a status record that cannot be decoded.
	ErrMalformedStatus = errors.New("malformed status record")

	// ErrNoOffsets is returned when a consumer group reports no numeric
	// offsets. Callers treat it as inconclusive.
	ErrNoOffsets = errors.New("no consumer group offsets")
)
