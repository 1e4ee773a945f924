package dashboard

import (
	"errors"
	"fmt"

	"pulsetrail/api/models"
)

var (
	// ErrUnauthorized means the server rejected the operator token.
	ErrUnauthorized = models.ErrUnauthorized
	// ErrNotAuthenticated is returned by actions that need a token when none is held.
	ErrNotAuthenticated = errors.New("dashboard: not authenticated")
	ErrEmptyToken       = errors.New("dashboard: token is empty")
)

// TransientError is a network level failure. The action can be retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// StatusError is a non-success response other than 401.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: server returned %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Code, e.Message)
}
