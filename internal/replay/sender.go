package replay

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/worklink/offline-sync/internal/domain"
)

// Sender performs the network call a queued action represents.
// Mocking this interface in tests gives full control over replay behaviour
// without making real HTTP calls.
type Sender interface {
	Send(ctx context.Context, a *domain.QueuedAction) error
}

// submitPaths maps each queue to its submission endpoint.
var submitPaths = map[domain.Queue]string{
	domain.QueueApplications: "/api/v1/applications",
	domain.QueueMessages:     "/api/v1/messages",
}

// HTTPSender POSTs the action's payload to the submission endpoint for its
// queue. The auth token is the snapshot captured at enqueue time, not the
// live session, so the action stays replayable across a session change.
type HTTPSender struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSender(baseURL string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send submits the action. The server deduplicates on the Idempotency-Key
// header, so a 409 means the action already took effect during an earlier,
// interrupted replay; it is treated as success.
func (s *HTTPSender) Send(ctx context.Context, a *domain.QueuedAction) error {
	path, ok := submitPaths[a.Queue]
	if !ok {
		return domain.ErrInvalidQueue
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(a.Payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.AuthToken)
	req.Header.Set("Idempotency-Key", a.IdempotencyKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// Duplicate idempotency key: the earlier attempt landed.
		return nil
	default:
		return fmt.Errorf("unexpected submit status: %d", resp.StatusCode)
	}
}

// compile-time check that HTTPSender implements Sender
var _ Sender = (*HTTPSender)(nil)
