package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"kycflow/pkg/platform/svctoken"
	"kycflow/pkg/requestcontext"
)

// TokenValidator checks bearer tokens.
type TokenValidator interface {
	Validate(tokenString string) (*svctoken.Claims, error)
}

// RequireServiceToken rejects requests without a valid bearer token.
func RequireServiceToken(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid Authorization header")
				return
			}
			if _, err := validator.Validate(strings.TrimSpace(token)); err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err.Error(),
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
