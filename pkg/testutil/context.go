package testutil

import (
	"net/http"

	"kycflow/pkg/requestcontext"
)

// WithClient adds the client IP and User-Agent to the request context.
// This simulates what the client metadata middleware does.
func WithClient(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}
