package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kycflow/pkg/platform/sentinel"
)

// MemoryArchive keeps entries in a map keyed by verification id.
type MemoryArchive struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{entries: make(map[string]Entry)}
}

// Save inserts or replaces the entry of a verification.
func (a *MemoryArchive) Save(_ context.Context, entry Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry.Steps = append([]string(nil), entry.Steps...)
	a.entries[entry.Report.VerificationID] = entry
	return nil
}

func (a *MemoryArchive) Get(_ context.Context, verificationID string) (Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.entries[verificationID]
	if !ok {
		return Entry{}, fmt.Errorf("report %s: %w", verificationID, sentinel.ErrNotFound)
	}
	return entry, nil
}

// ListByUser returns the user's entries, oldest first.
func (a *MemoryArchive) ListByUser(_ context.Context, userID string) ([]Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []Entry
	for _, e := range a.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArchivedAt.Before(out[j].ArchivedAt) })
	return out, nil
}
