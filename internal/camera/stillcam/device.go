// Package stillcam implements a camera device backed by directories of still
// images, one directory per facing mode. Each directory is a "camera": frames
// are served in name order and wrap around. An advisory lock file keeps two
// processes from holding the same camera.
package stillcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"kycflow/internal/camera"
)

const lockName = ".kycflow-camera.lock"

// Device serves frames from per-facing directories.
type Device struct {
	sources map[camera.Facing]string
}

// New builds a device. Empty paths are ignored.
func New(sources map[camera.Facing]string) *Device {
	clean := make(map[camera.Facing]string, len(sources))
	for facing, dir := range sources {
		if dir = strings.TrimSpace(dir); dir != "" {
			clean[facing] = dir
		}
	}
	return &Device{sources: clean}
}

func (d *Device) Open(ctx context.Context, c camera.Constraints) (camera.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.sources) == 0 {
		return nil, camera.ErrDeviceNotFound
	}
	if c.Unconstrained() {
		var lastErr error = camera.ErrDeviceNotFound
		for _, facing := range []camera.Facing{camera.FacingUser, camera.FacingEnvironment} {
			dir, ok := d.sources[facing]
			if !ok {
				continue
			}
			track, err := open(facing, dir)
			if err == nil {
				return track, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
	dir, ok := d.sources[c.Facing]
	if !ok {
		return nil, fmt.Errorf("no %s camera: %w", c.Facing, camera.ErrOverconstrained)
	}
	return open(c.Facing, dir)
}

func open(facing camera.Facing, dir string) (*track, error) {
	frames, err := listFrames(dir)
	if err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, classifyFSError(dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dir, camera.ErrDeviceBusy)
	}
	return &track{facing: facing, frames: frames, lock: lock}, nil
}

func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, classifyFSError(dir, err)
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			frames = append(frames, filepath.Join(dir, e.Name()))
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%s has no frames: %w", dir, camera.ErrDeviceNotFound)
	}
	sort.Strings(frames)
	return frames, nil
}

func classifyFSError(dir string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", dir, camera.ErrDeviceNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", dir, camera.ErrPermissionDenied)
	default:
		return fmt.Errorf("%s: %w: %v", dir, camera.ErrDeviceBusy, err)
	}
}

type track struct {
	facing camera.Facing
	frames []string
	lock   *flock.Flock

	mu      sync.Mutex
	next    int
	stopped bool
}

func (t *track) Facing() camera.Facing {
	return t.facing
}

func (t *track) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil, camera.ErrNoStream
	}
	path := t.frames[t.next%len(t.frames)]
	t.next++
	t.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}

func (t *track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	_ = t.lock.Unlock()
}
