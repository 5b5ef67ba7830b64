package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const correlationKey ctxKey = iota

const correlationHeader = "X-Correlation-ID"

// CorrelationID tags every request with an ID for log correlation. An ID
// supplied by the caller is kept, so the app layer and this agent share one
// trace; otherwise a fresh UUID is generated. The ID is placed on the
// request context and echoed in the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), correlationKey, id)))
	})
}

// GetCorrelationID returns the request's correlation ID, or "" when the
// middleware did not run.
func GetCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}
