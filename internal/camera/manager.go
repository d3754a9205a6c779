package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kycflow/internal/platform/metrics"
)

var tracer = otel.Tracer("kycflow/camera")

// Manager hands out at most one active Stream per process. Acquiring a new
// stream stops the previous one before the device is opened. Every Acquire
// and Release starts a new generation; an acquisition that finishes under an
// older generation stops its track and never becomes active.
type Manager struct {
	device  Device
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu         sync.Mutex
	active     *Stream
	generation uint64
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithClock overrides the capture timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(device Device, opts ...Option) *Manager {
	m := &Manager{
		device: device,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Acquire opens a stream with the preferred facing mode at the preferred
// resolution. If the device cannot satisfy the constraints it retries without
// any and reports the facing mode actually obtained. Permission, busy and
// missing-device failures are returned as-is; nothing is retried beyond the
// single fallback. A later Acquire or Release supersedes this one: it then
// returns ErrSuperseded and leaves the camera alone.
func (m *Manager) Acquire(ctx context.Context, preferred Facing) (*Stream, error) {
	ctx, span := tracer.Start(ctx, "camera.acquire")
	defer span.End()
	span.SetAttributes(attribute.String("camera.facing.preferred", string(preferred)))

	generation := m.stopActive()

	track, err := m.device.Open(ctx, Constraints{
		Facing: preferred,
		Exact:  true,
		Width:  PreferredWidth,
		Height: PreferredHeight,
	})
	fellBack := false
	if err != nil && (errors.Is(err, ErrOverconstrained) || errors.Is(err, ErrDeviceNotFound)) && m.current(generation) {
		m.logger.InfoContext(ctx, "camera constraints not satisfied, retrying unconstrained",
			"facing", string(preferred),
			"error", err.Error(),
		)
		fellBack = true
		track, err = m.device.Open(ctx, Constraints{})
		if err != nil {
			err = &FallbackError{Preferred: preferred, Err: err}
		}
	}
	if err != nil {
		m.metrics.RecordCameraAcquisition(string(preferred), acquisitionResult(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "camera acquisition failed")
		m.logger.WarnContext(ctx, "camera acquisition failed",
			"facing", string(preferred),
			"error", err.Error(),
		)
		return nil, fmt.Errorf("acquire camera: %w", err)
	}

	effective := preferred
	if fellBack {
		effective = track.Facing()
		if effective == "" {
			effective = FacingUser
		}
	}
	stream := &Stream{
		manager:   m,
		track:     track,
		preferred: preferred,
		facing:    effective,
	}

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		track.Stop()
		m.metrics.RecordCameraAcquisition(string(preferred), "superseded")
		span.SetStatus(codes.Error, "camera acquisition superseded")
		m.logger.InfoContext(ctx, "camera acquisition superseded, track stopped",
			"facing", string(preferred),
		)
		return nil, fmt.Errorf("acquire camera: %w", ErrSuperseded)
	}
	m.active = stream
	m.mu.Unlock()

	result := "ok"
	if fellBack {
		result = "fallback"
	}
	m.metrics.RecordCameraAcquisition(string(preferred), result)
	m.metrics.SetCameraActive(true)
	span.SetAttributes(attribute.String("camera.facing.effective", string(effective)))
	m.logger.InfoContext(ctx, "camera acquired",
		"facing", string(effective),
		"fallback", fellBack,
	)
	return stream, nil
}

// Active returns the current stream, or nil.
func (m *Manager) Active() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Release stops the active stream, if any, and supersedes acquisitions still
// opening the device. Safe to call repeatedly.
func (m *Manager) Release() {
	m.stopActive()
}

// stopActive starts a new generation and stops the stream that was active.
func (m *Manager) stopActive() uint64 {
	m.mu.Lock()
	m.generation++
	generation := m.generation
	active := m.active
	m.mu.Unlock()
	if active != nil {
		active.Release()
	}
	return generation
}

func (m *Manager) current(generation uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == generation
}

func (m *Manager) detach(s *Stream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == s {
		m.active = nil
		m.metrics.SetCameraActive(false)
	}
}

func acquisitionResult(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, ErrDeviceBusy):
		return "busy"
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, ErrOverconstrained):
		return "not_found"
	default:
		return "error"
	}
}

// Stream is a handle on an open track. Releasing a stale handle never touches
// a newer stream.
type Stream struct {
	manager   *Manager
	preferred Facing
	facing    Facing

	mu       sync.Mutex
	track    Track
	released bool
}

// Facing is the effective facing mode of the opened camera.
func (s *Stream) Facing() Facing {
	return s.facing
}

// Preferred is the facing mode originally requested.
func (s *Stream) Preferred() Facing {
	return s.preferred
}

// Active reports whether the stream still holds its track.
func (s *Stream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.released
}

// Release stops the track and detaches the stream from its manager.
// Idempotent.
func (s *Stream) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	track := s.track
	s.track = nil
	s.mu.Unlock()

	if track != nil {
		track.Stop()
	}
	s.manager.detach(s)
}

// CaptureFrame samples the current frame and encodes it as JPEG. User-facing
// frames are mirrored first. Returns ErrNoStream when released and ErrEncode
// when sampling or encoding fails.
func (s *Stream) CaptureFrame(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	track := s.track
	released := s.released
	s.mu.Unlock()
	if released || track == nil {
		return Frame{}, ErrNoStream
	}

	img, err := track.ReadFrame(ctx)
	if err != nil {
		if errors.Is(err, ErrNoStream) {
			return Frame{}, err
		}
		return Frame{}, fmt.Errorf("%w: read frame: %v", ErrEncode, err)
	}
	if img == nil {
		return Frame{}, fmt.Errorf("%w: device returned no frame", ErrEncode)
	}
	if s.facing == FacingUser {
		img = mirror(img)
	}
	data, err := encodeJPEG(img)
	if err != nil {
		return Frame{}, err
	}
	b := img.Bounds()
	return Frame{
		Data:        data,
		ContentType: "image/jpeg",
		Width:       b.Dx(),
		Height:      b.Dy(),
		CapturedAt:  s.manager.now(),
	}, nil
}
