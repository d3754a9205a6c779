// Package store persists verification sessions so flow state survives the
// request that changed it. Image payloads are never stored.
package store

import (
	"context"

	"kycflow/internal/domain"
)

// SessionStore persists sessions by verification id.
type SessionStore interface {
	Save(ctx context.Context, session *domain.VerificationSession) error
	Get(ctx context.Context, verificationID string) (*domain.VerificationSession, error)
	Delete(ctx context.Context, verificationID string) error
}
