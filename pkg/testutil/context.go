package testutil

import (
	"context"
	"net/http"
	"time"

	"pushgate/pkg/requestcontext"
)

// WithClient adds client IP and User-Agent to the request context and sets
// the User-Agent header so handlers reading either see the same value.
func WithClient(req *http.Request, clientIP, userAgent string) *http.Request {
	req.Header.Set("User-Agent", userAgent)
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}

// FixedTimeContext returns a background context whose request time is t.
func FixedTimeContext(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}
