package stillcam

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/camera"
	"kycflow/internal/camera/cameratest"
)

func writeFrame(t *testing.T, dir, name string, img image.Image) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestDevice_Open(t *testing.T) {
	ctx := context.Background()
	userDir := t.TempDir()
	writeFrame(t, userDir, "001.png", cameratest.Gradient(4, 4))
	writeFrame(t, userDir, "002.png", cameratest.Gradient(6, 4))

	t.Run("exact facing without a source is over-constrained", func(t *testing.T) {
		d := New(map[camera.Facing]string{camera.FacingUser: userDir})
		_, err := d.Open(ctx, camera.Constraints{Facing: camera.FacingEnvironment, Exact: true})
		assert.ErrorIs(t, err, camera.ErrOverconstrained)
	})

	t.Run("unconstrained open picks the user camera", func(t *testing.T) {
		d := New(map[camera.Facing]string{camera.FacingUser: userDir})
		tr, err := d.Open(ctx, camera.Constraints{})
		require.NoError(t, err)
		defer tr.Stop()
		assert.Equal(t, camera.FacingUser, tr.Facing())
	})

	t.Run("frames are served in order and wrap", func(t *testing.T) {
		d := New(map[camera.Facing]string{camera.FacingUser: userDir})
		tr, err := d.Open(ctx, camera.Constraints{Facing: camera.FacingUser, Exact: true})
		require.NoError(t, err)
		defer tr.Stop()

		widths := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			img, err := tr.ReadFrame(ctx)
			require.NoError(t, err)
			widths = append(widths, img.Bounds().Dx())
		}
		assert.Equal(t, []int{4, 6, 4}, widths)
	})

	t.Run("second open of the same camera is busy until stopped", func(t *testing.T) {
		d := New(map[camera.Facing]string{camera.FacingUser: userDir})
		first, err := d.Open(ctx, camera.Constraints{Facing: camera.FacingUser, Exact: true})
		require.NoError(t, err)

		_, err = d.Open(ctx, camera.Constraints{Facing: camera.FacingUser, Exact: true})
		assert.ErrorIs(t, err, camera.ErrDeviceBusy)

		first.Stop()
		first.Stop()
		again, err := d.Open(ctx, camera.Constraints{Facing: camera.FacingUser, Exact: true})
		require.NoError(t, err)
		again.Stop()
	})

	t.Run("missing directory is not found", func(t *testing.T) {
		d := New(map[camera.Facing]string{camera.FacingUser: filepath.Join(userDir, "nope")})
		_, err := d.Open(ctx, camera.Constraints{Facing: camera.FacingUser, Exact: true})
		assert.ErrorIs(t, err, camera.ErrDeviceNotFound)
	})

	t.Run("directory without frames is not found", func(t *testing.T) {
		d := New(map[camera.Facing]string{camera.FacingEnvironment: t.TempDir()})
		_, err := d.Open(ctx, camera.Constraints{Facing: camera.FacingEnvironment, Exact: true})
		assert.ErrorIs(t, err, camera.ErrDeviceNotFound)
	})

	t.Run("stopped track has no stream", func(t *testing.T) {
		d := New(map[camera.Facing]string{camera.FacingUser: userDir})
		tr, err := d.Open(ctx, camera.Constraints{})
		require.NoError(t, err)
		tr.Stop()
		_, err = tr.ReadFrame(ctx)
		assert.ErrorIs(t, err, camera.ErrNoStream)
	})
}

func TestDevice_WithManagerFallsBack(t *testing.T) {
	ctx := context.Background()
	userDir := t.TempDir()
	writeFrame(t, userDir, "frame.png", cameratest.Gradient(4, 4))

	m := camera.NewManager(New(map[camera.Facing]string{camera.FacingUser: userDir}))
	stream, err := m.Acquire(ctx, camera.FacingEnvironment)
	require.NoError(t, err)
	defer stream.Release()

	assert.Equal(t, camera.FacingUser, stream.Facing())
	frame, err := stream.CaptureFrame(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, frame.Data)
}
