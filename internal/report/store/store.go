// Package store archives exported verification reports.
package store

import (
	"context"
	"time"

	"kycflow/internal/report"
)

// Entry is one archived report with the flow context it came from.
type Entry struct {
	Report       report.Report
	UserID       string
	CountryCode  string
	DocumentType string
	Steps        []string
	ArchivedAt   time.Time
}

// Archive persists and retrieves report entries.
type Archive interface {
	Save(ctx context.Context, entry Entry) error
	Get(ctx context.Context, verificationID string) (Entry, error)
	ListByUser(ctx context.Context, userID string) ([]Entry, error)
}
