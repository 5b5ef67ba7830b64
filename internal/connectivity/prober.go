package connectivity

import (
	"context"
	"net/http"
	"time"
)

// Prober answers one question: did the API's liveness endpoint respond just
// now. A probe that times out or fails for any reason reports false; it
// never returns an error to the caller.
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPProber issues a GET against the liveness endpoint with a hard timeout.
// Any 2xx response counts as reachable.
type HTTPProber struct {
	url        string
	httpClient *http.Client
}

func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// compile-time check that HTTPProber implements Prober
var _ Prober = (*HTTPProber)(nil)
