// Package camera owns the single video capture stream of the process: it
// negotiates facing-mode fallback on acquisition, samples frames into encoded
// images and guarantees release of the underlying device.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Facing selects the camera orientation.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Preferred capture resolution requested from devices.
const (
	PreferredWidth  = 1280
	PreferredHeight = 720
)

// Constraints describe an open request. The zero value is an unconstrained
// request: any camera, any resolution.
type Constraints struct {
	Facing Facing
	// Exact requires the device to honor Facing or fail with ErrOverconstrained.
	Exact  bool
	Width  int
	Height int
}

// Unconstrained reports whether the request accepts any device.
func (c Constraints) Unconstrained() bool {
	return !c.Exact && c.Facing == ""
}

// Device opens video tracks. Implementations must return the sentinel errors
// below (wrapped is fine) so the manager can distinguish failure causes.
type Device interface {
	Open(ctx context.Context, c Constraints) (Track, error)
}

// Track is an open video source.
type Track interface {
	// Facing reports the orientation of the opened camera, or "" if unknown.
	Facing() Facing
	// ReadFrame samples the current frame.
	ReadFrame(ctx context.Context) (image.Image, error)
	// Stop releases the device. It must be safe to call more than once.
	Stop()
}

var (
	// ErrOverconstrained means no camera satisfies the requested constraints.
	ErrOverconstrained = errors.New("camera constraints cannot be satisfied")
	// ErrDeviceNotFound means no camera is present at all.
	ErrDeviceNotFound = errors.New("camera not found")
	// ErrPermissionDenied means the user or OS refused camera access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceBusy means the camera is held by another process.
	ErrDeviceBusy = errors.New("camera is in use")
	// ErrNoStream means there is no active stream to sample from.
	ErrNoStream = errors.New("camera stream not active")
	// ErrEncode means a frame could not be sampled or encoded.
	ErrEncode = errors.New("frame encoding failed")
	// ErrSuperseded means a later Acquire or Release ran while this
	// acquisition was opening the device. It wraps ErrDeviceBusy.
	ErrSuperseded = fmt.Errorf("camera acquisition superseded: %w", ErrDeviceBusy)
)

// FallbackError is returned when both the constrained request and the
// unconstrained fallback failed.
type FallbackError struct {
	Preferred Facing
	Err       error
}

func (e *FallbackError) Error() string {
	return "camera not accessible after fallback from " + string(e.Preferred) + ": " + e.Err.Error()
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}

// IsFallbackFailure reports whether err came from a failed unconstrained fallback.
func IsFallbackFailure(err error) bool {
	var fe *FallbackError
	return errors.As(err, &fe)
}
