// Package cameratest provides an in-memory camera device for tests.
package cameratest

import (
	"context"
	"image"
	"image/color"
	"sync"

	"kycflow/internal/camera"
)

// Device is a scriptable camera.Device. Facings lists the cameras present;
// errors can be injected for exact and unconstrained opens.
type Device struct {
	mu sync.Mutex

	Facings []camera.Facing
	// ExactErr, when set, is returned for every exact-facing open.
	ExactErr error
	// OpenErr, when set, is returned for every open.
	OpenErr error
	// FrameErr, when set, is returned by ReadFrame.
	FrameErr error
	// Frame is returned by ReadFrame; defaults to a small gradient.
	Frame image.Image

	opens  []camera.Constraints
	tracks []*Track
	gates  []*Gate
}

// Gate holds one Open call until released.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// Entered is closed once the held Open has started.
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

// Release lets the held Open continue. Idempotent.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

// HoldNextOpen makes the next Open block until the gate is released or its
// context is canceled.

// NewDevice returns a device with the given cameras.
func NewDevice(facings ...camera.Facing) *Device {
	return &Device{Facings: facings}
}

func (d *Device) HoldNextOpen() *Gate {
	d.mu.Lock()
	defer d.mu.Unlock()
	g := &Gate{entered: make(chan struct{}), release: make(chan struct{})}
	d.gates = append(d.gates, g)
	return g
}

func (d *Device) Open(ctx context.Context, c camera.Constraints) (camera.Track, error) {
	d.mu.Lock()
	var gate *Gate
	if len(d.gates) > 0 {
		gate, d.gates = d.gates[0], d.gates[1:]
	}
	d.mu.Unlock()
	if gate != nil {
		close(gate.entered)
		select {
		case <-gate.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens = append(d.opens, c)
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if len(d.Facings) == 0 {
		return nil, camera.ErrDeviceNotFound
	}
	facing := d.Facings[0]
	if c.Exact {
		if d.ExactErr != nil {
			return nil, d.ExactErr
		}
		found := false
		for _, f := range d.Facings {
			if f == c.Facing {
				facing, found = f, true
				break
			}
		}
		if !found {
			return nil, camera.ErrOverconstrained
		}
	}
	t := &Track{device: d, facing: facing}
	d.tracks = append(d.tracks, t)
	return t, nil
}

// Opens returns the constraints of every open call.
func (d *Device) Opens() []camera.Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]camera.Constraints(nil), d.opens...)
}

// Tracks returns every track opened so far.
func (d *Device) Tracks() []*Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Track(nil), d.tracks...)
}

// Running counts tracks that have not been stopped.
func (d *Device) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.tracks {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Track is a fake camera.Track.
type Track struct {
	device  *Device
	facing  camera.Facing
	stopped bool
	stops   int
}

func (t *Track) Facing() camera.Facing {
	return t.facing
}

func (t *Track) ReadFrame(_ context.Context) (image.Image, error) {
	t.device.mu.Lock()
	defer t.device.mu.Unlock()
	if t.stopped {
		return nil, camera.ErrNoStream
	}
	if t.device.FrameErr != nil {
		return nil, t.device.FrameErr
	}
	if t.device.Frame != nil {
		return t.device.Frame, nil
	}
	return Gradient(8, 4), nil
}

func (t *Track) Stop() {
	t.device.mu.Lock()
	defer t.device.mu.Unlock()
	t.stopped = true
	t.stops++
}

// Stopped reports whether Stop was called.
func (t *Track) Stopped() bool {
	t.device.mu.Lock()
	defer t.device.mu.Unlock()
	return t.stopped
}

// Gradient builds an image whose red channel grows left to right, which makes
// horizontal mirroring observable.
func Gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / max(w-1, 1)), G: 40, B: 90, A: 255})
		}
	}
	return img
}

// SetOpenErr changes the error returned by every open.
func (d *Device) SetOpenErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenErr = err
}

// SetFrameErr changes the error returned by ReadFrame.
func (d *Device) SetFrameErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.FrameErr = err
}
