package feed

import (
	"errors"
	"fmt"
)

var (
	errMissingBackend  = errors.New("backend dependency is required")
	errMissingRealtime = errors.New("realtime dependency is required")
	errMissingStore    = errors.New("store dependency is required")

	// ErrNotAuthenticated rejects viewer mutations without a signed-in viewer.
	ErrNotAuthenticated = errors.New("feed: viewer not authenticated")
	// ErrMutationInFlight rejects a duplicate mutation for a post while an
	// identical one is unresolved.
	ErrMutationInFlight = errors.New("feed: identical mutation already in flight")
	// ErrDeleteForbidden rejects a delete by a viewer who is neither the
	// author nor privileged.
	ErrDeleteForbidden = errors.New("feed: delete not permitted for viewer")
	// ErrPinForbidden rejects a pin toggle by an unprivileged viewer.
	ErrPinForbidden = errors.New("feed: pin not permitted for viewer")
	// ErrPostNotFound reports a mutation against a post id the store does
	// not hold.
	ErrPostNotFound = errors.New("feed: post not found")
	// ErrViewClosed rejects operations on a view after Close.
	ErrViewClosed = errors.New("feed: view is closed")
)

// ServiceError carries a dotted operation.reason code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason identifier.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
