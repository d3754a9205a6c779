package capture

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Preview is the image behind a display handle.
type Preview struct {
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}

// Handles issues display handles for captured images. A handle stays valid
// until the step that issued it revokes it.
type Handles struct {
	mu    sync.RWMutex
	items map[string]Preview
	newID func() string
}

func NewHandles() *Handles {
	return &Handles{
		items: make(map[string]Preview),
		newID: uuid.NewString,
	}
}

// Issue stores the preview and returns its handle.
func (h *Handles) Issue(p Preview) string {
	id := h.newID()
	h.mu.Lock()
	h.items[id] = p
	h.mu.Unlock()
	return id
}

// Get returns the preview for a live handle.
func (h *Handles) Get(id string) (Preview, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.items[id]
	return p, ok
}

// Revoke drops the handle. Unknown or empty handles are ignored.
func (h *Handles) Revoke(id string) {
	if id == "" {
		return
	}
	h.mu.Lock()
	delete(h.items, id)
	h.mu.Unlock()
}

// Len reports how many handles are live.
func (h *Handles) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}
