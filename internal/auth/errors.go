package auth

import (
	"errors"
	"fmt"
)

// ErrMissingRefreshToken is returned when a refresh is attempted without a
// refresh token. The session has to be re-authenticated from scratch.
var ErrMissingRefreshToken = errors.New("missing refresh token")

// Operation names reported in Error.
const (
	OpAuthenticate = "authenticate"
	OpRefresh      = "refresh"
)

// Error wraps a failure returned by the Authenticator.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
