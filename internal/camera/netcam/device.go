// Package netcam implements a camera device that pulls JPEG/PNG snapshots from
// network cameras over HTTP, one snapshot URL per facing mode.
package netcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"sync"
	"syscall"
	"time"

	"kycflow/internal/camera"
)

// HTTPDoer is the subset of *http.Client used by the device.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxSnapshotBytes = 16 << 20

// Device opens tracks against configured snapshot URLs. Opening a track probes
// the camera once so that permission and availability problems surface at
// acquisition time rather than on first capture.
type Device struct {
	client  HTTPDoer
	sources map[camera.Facing]string
}

// Option configures a Device.
type Option func(*Device)

func WithHTTPClient(client HTTPDoer) Option {
	return func(d *Device) {
		if client != nil {
			d.client = client
		}
	}
}

func New(sources map[camera.Facing]string, opts ...Option) *Device {
	d := &Device{
		client:  &http.Client{Timeout: 5 * time.Second},
		sources: make(map[camera.Facing]string, len(sources)),
	}
	for facing, url := range sources {
		if url != "" {
			d.sources[facing] = url
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Open(ctx context.Context, c camera.Constraints) (camera.Track, error) {
	if len(d.sources) == 0 {
		return nil, camera.ErrDeviceNotFound
	}
	if c.Unconstrained() {
		var lastErr error = camera.ErrDeviceNotFound
		for _, facing := range []camera.Facing{camera.FacingUser, camera.FacingEnvironment} {
			url, ok := d.sources[facing]
			if !ok {
				continue
			}
			t := &track{client: d.client, facing: facing, url: url}
			if _, err := t.ReadFrame(ctx); err != nil {
				lastErr = err
				continue
			}
			return t, nil
		}
		return nil, lastErr
	}

	url, ok := d.sources[c.Facing]
	if !ok {
		return nil, fmt.Errorf("no %s camera: %w", c.Facing, camera.ErrOverconstrained)
	}
	t := &track{client: d.client, facing: c.Facing, url: url}
	img, err := t.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}
	if c.Width > 0 && c.Height > 0 {
		b := img.Bounds()
		if b.Dx() < c.Width || b.Dy() < c.Height {
			return nil, fmt.Errorf("%s camera is %dx%d: %w", c.Facing, b.Dx(), b.Dy(), camera.ErrOverconstrained)
		}
	}
	return t, nil
}

type track struct {
	client HTTPDoer
	facing camera.Facing
	url    string

	mu      sync.Mutex
	stopped bool
}

func (t *track) Facing() camera.Facing {
	return t.facing
}

func (t *track) ReadFrame(ctx context.Context) (image.Image, error) {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return nil, camera.ErrNoStream
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png")
	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%s: %w", t.url, camera.ErrDeviceNotFound)
		}
		return nil, fmt.Errorf("snapshot %s: %w", t.url, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("snapshot %s returned %d: %w", t.url, resp.StatusCode, err)
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return img, nil
}

func (t *track) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return camera.ErrPermissionDenied
	case code == http.StatusNotFound:
		return camera.ErrDeviceNotFound
	case code == http.StatusConflict, code == http.StatusLocked, code == http.StatusServiceUnavailable:
		return camera.ErrDeviceBusy
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}
