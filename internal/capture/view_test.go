package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/camera"
	"kycflow/internal/domain"
)

func TestProject(t *testing.T) {
	t.Run("streaming enables capture", func(t *testing.T) {
		v := Project(Snapshot{Kind: domain.StepDocumentFront, State: StateStreaming, Facing: camera.FacingEnvironment})
		assert.True(t, v.CaptureEnabled)
		assert.False(t, v.Busy)
		assert.Equal(t, "Document Front", v.Title)
		assert.Equal(t, "Capture Document", v.CaptureLabel)
		assert.Equal(t, OverlayRectangle, v.Overlay)
		assert.False(t, v.Mirrored)
		assert.Nil(t, v.Error)
	})

	t.Run("uploading is busy with a step label", func(t *testing.T) {
		v := Project(Snapshot{Kind: domain.StepMRZ, State: StateUploading, Handle: "h1"})
		assert.False(t, v.CaptureEnabled)
		assert.True(t, v.Busy)
		assert.Equal(t, "Scanning...", v.BusyLabel)
		assert.Equal(t, "h1", v.PreviewHandle)
	})

	t.Run("selfie is mirrored with an oval overlay", func(t *testing.T) {
		v := Project(Snapshot{Kind: domain.StepSelfie, State: StateStreaming, Facing: camera.FacingUser})
		assert.True(t, v.Mirrored)
		assert.Equal(t, OverlayOval, v.Overlay)
		assert.Equal(t, "Take Your Selfie", v.Title)
	})

	t.Run("error states present the descriptor", func(t *testing.T) {
		desc := &domain.ErrorDescriptor{Kind: domain.ErrorKindValidation, Message: "Blurry image", Tips: []string{"a"}}
		v := Project(Snapshot{Kind: domain.StepDocumentBack, State: StateRejectedRetryable, Error: desc})
		assert.True(t, v.CanRetry)
		require.NotNil(t, v.Error)
		assert.Equal(t, "Validation Error", v.Error.Title)
		assert.Equal(t, "Blurry image", v.Error.Message)
		assert.Equal(t, "Try Again", v.Error.RetryLabel)
	})

	t.Run("exited view drops the preview", func(t *testing.T) {
		v := Project(Snapshot{Kind: domain.StepSelfie, State: StateExited, Handle: "gone"})
		assert.Empty(t, v.PreviewHandle)
	})
}

func TestPresentError(t *testing.T) {
	titles := map[domain.ErrorKind]string{
		domain.ErrorKindCamera:     "Camera Access Required",
		domain.ErrorKindProcessing: "Processing Failed",
		domain.ErrorKindNetwork:    "Connection Error",
		domain.ErrorKindValidation: "Validation Error",
		domain.ErrorKindUnknown:    "Something Went Wrong",
	}
	for kind, title := range titles {
		ev := PresentError(domain.ErrorDescriptor{Kind: kind, Message: "m"})
		assert.Equal(t, title, ev.Title, kind)
		assert.NotNil(t, ev.Tips)
	}

	ev := PresentError(domain.ErrorDescriptor{})
	assert.Equal(t, "Something went wrong. Please try again.", ev.Message)
}
