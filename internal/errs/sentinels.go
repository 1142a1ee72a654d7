// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Failure taxonomy shared by gateway, queue and services.
var (
	// ErrValidation indicates a malformed or empty input rejected before any remote call.
	ErrValidation = errors.New("validation")

	// ErrNetwork indicates a transient connectivity failure (dial, DNS, reset).
	ErrNetwork = errors.New("network unavailable")

	// ErrTimeout indicates a remote call that exceeded the configured deadline.
	ErrTimeout = errors.New("timeout")

	// ErrServiceFault indicates a well-formed remote business rejection; never retried.
	ErrServiceFault = errors.New("service fault")

	// ErrStorage indicates a local durable-write failure; fatal for the affected punch.
	ErrStorage = errors.New("storage unavailable")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate idempotency key in the queue.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary admin-login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)

// Transient reports whether err is a connectivity-class failure that
// warrants queueing or a later retry.
func Transient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}
