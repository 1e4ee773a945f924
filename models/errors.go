package models

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the operator credential is missing or wrong.
var ErrUnauthorized = errors.New("unauthorized")

// ValidationError reports a malformed ingestion payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
