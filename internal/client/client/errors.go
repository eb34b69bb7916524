package client

import "errors"

// Errors returned by the gRPC client after status codes are mapped.
// ErrLocalDataNotAvailable is reported by offline login when this device
// has never cached a verifier for the user.
var (
	ErrUnavailable           = errors.New("sync server unavailable")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrLocalDataNotAvailable = errors.New("no cached session for this user on this device")
)
