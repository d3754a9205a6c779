package domain

import "time"

// CapturedArtifact is one encoded camera frame. Handle is the display handle
// issued by the capturing step; it is only valid while that step owns the
// artifact.
type CapturedArtifact struct {
	Payload     []byte
	ContentType string
	Handle      string
	CapturedAt  time.Time
}

// Empty reports whether the artifact carries no image data.
func (a CapturedArtifact) Empty() bool {
	return len(a.Payload) == 0
}

// ArtifactRecord is the persisted summary of an accepted artifact. The image
// payload itself is never written to the session store.
type ArtifactRecord struct {
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	CapturedAt  time.Time `json:"captured_at"`
	AcceptedAt  time.Time `json:"accepted_at"`
}
