package domain

import "errors"

// Sentinel errors used throughout the application.
// The admin handlers translate these to HTTP status codes via mapError.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidQueue       = errors.New("invalid queue: must be pending-applications or pending-messages")
	ErrInvalidPayload     = errors.New("payload must be a non-empty JSON value")
	ErrStorageUnavailable = errors.New("persistent store unavailable: queueing degraded to immediate retry only")
	ErrSyncUnsupported    = errors.New("platform does not support deferred background sync")
	ErrAlreadyAbandoned   = errors.New("action is already abandoned")
	ErrNotAbandoned       = errors.New("action is not abandoned")
	ErrNoWaitingWorker    = errors.New("no worker version is waiting to activate")
	ErrPromptUnavailable  = errors.New("install prompt is not available")
)
