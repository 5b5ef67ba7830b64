package domain

import (
	"encoding/json"
	"time"
)

// Queue names the durable collection a deferred action belongs to.
// Queues are logically independent: ordering and replay are per-queue.
type Queue string

const (
	QueueApplications Queue = "pending-applications"
	QueueMessages     Queue = "pending-messages"
)

func (q Queue) IsValid() bool {
	switch q {
	case QueueApplications, QueueMessages:
		return true
	}
	return false
}

// SyncTag returns the platform sync-registration tag for the queue.
func (q Queue) SyncTag() string {
	return "sync-" + string(q)
}

// Queues lists every known queue, in a fixed order.
func Queues() []Queue {
	return []Queue{QueueApplications, QueueMessages}
}

// Status tracks the replay lifecycle of a queued action.
type Status string

const (
	// StatusPending — waiting for the next sync opportunity.
	StatusPending Status = "pending"
	// StatusAbandoned — attempt cap exceeded; excluded from automatic
	// replay but retained and surfaced for manual retry.
	StatusAbandoned Status = "abandoned"
)

// QueuedAction is a durable record of one deferred user action. It exists
// from the moment the original network attempt fails until replay succeeds
// or the record is explicitly abandoned; it is never silently lost across
// a process restart.
type QueuedAction struct {
	ID             int64           `json:"id"`
	Queue          Queue           `json:"queue"`
	Payload        json.RawMessage `json:"payload"`
	AuthToken      string          `json:"-"`
	IdempotencyKey string          `json:"idempotency_key"`
	Status         Status          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	LastError      *string         `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EnqueueRequest is the inbound payload for queueing one action.
type EnqueueRequest struct {
	Queue     Queue           `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	AuthToken string          `json:"auth_token"`
}

func (r *EnqueueRequest) Validate() error {
	if !r.Queue.IsValid() {
		return ErrInvalidQueue
	}
	if len(r.Payload) == 0 || !json.Valid(r.Payload) {
		return ErrInvalidPayload
	}
	return nil
}

// ConnectivitySnapshot is the process-wide reachability estimate. It is
// ephemeral: rebuilt on every start, never persisted.
type ConnectivitySnapshot struct {
	IsOnline     bool      `json:"is_online"`
	APIReachable bool      `json:"api_reachable"`
	LastChecked  time.Time `json:"last_checked"`
}

// IsConnected is the combined verdict: the link is up and the API answered
// the most recent health probe.
func (s ConnectivitySnapshot) IsConnected() bool {
	return s.IsOnline && s.APIReachable
}
