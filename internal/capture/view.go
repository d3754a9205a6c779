package capture

import (
	"kycflow/internal/camera"
	"kycflow/internal/classify"
	"kycflow/internal/domain"
)

// Overlay is the guide frame drawn over the preview.
type Overlay string

const (
	OverlayOval      Overlay = "oval"
	OverlayRectangle Overlay = "rectangle"
	OverlayMRZ       Overlay = "barcode"
)

// RetryLabel is the label of the single error-view action.
const RetryLabel = "Try Again"

// ErrorView is the error presentation shared by every step.
type ErrorView struct {
	Kind       domain.ErrorKind `json:"kind"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Tips       []string         `json:"tips"`
	RetryLabel string           `json:"retry_label"`
}

// View is what a client renders for a capture step.
type View struct {
	Step           domain.StepKind `json:"step"`
	State          State           `json:"state"`
	Title          string          `json:"title"`
	Instruction    string          `json:"instruction"`
	Overlay        Overlay         `json:"overlay"`
	OverlayLabel   string          `json:"overlay_label,omitempty"`
	Facing         camera.Facing   `json:"facing"`
	Mirrored       bool            `json:"mirrored"`
	CaptureLabel   string          `json:"capture_label"`
	CaptureEnabled bool            `json:"capture_enabled"`
	Busy           bool            `json:"busy"`
	BusyLabel      string          `json:"busy_label,omitempty"`
	PreviewHandle  string          `json:"preview_handle,omitempty"`
	CanRetry       bool            `json:"can_retry"`
	Error          *ErrorView      `json:"error,omitempty"`
}

type stepCopy struct {
	title        string
	instruction  string
	overlay      Overlay
	overlayLabel string
	captureLabel string
	uploadLabel  string
}

var copies = map[domain.StepKind]stepCopy{
	domain.StepDocumentFront: {
		title:        "Document Front",
		instruction:  "Align your ID front within the frame",
		overlay:      OverlayRectangle,
		overlayLabel: "Align ID Front",
		captureLabel: "Capture Document",
		uploadLabel:  "Processing document...",
	},
	domain.StepDocumentBack: {
		title:        "Document Back",
		instruction:  "Align your ID back within the frame",
		overlay:      OverlayRectangle,
		overlayLabel: "Align ID Back",
		captureLabel: "Capture Document",
		uploadLabel:  "Processing document...",
	},
	domain.StepSelfie: {
		title:        "Take Your Selfie",
		instruction:  "Position your face within the oval frame",
		overlay:      OverlayOval,
		captureLabel: "Take Selfie",
		uploadLabel:  "Verifying face...",
	},
	domain.StepMRZ: {
		title:        "Scan MRZ Code",
		instruction:  "Position the MRZ area at the bottom of your ID",
		overlay:      OverlayMRZ,
		overlayLabel: "MRZ Scan Area",
		captureLabel: "Scan MRZ",
		uploadLabel:  "Scanning...",
	},
}

// Project derives the view from a snapshot. It has no side effects.
func Project(snap Snapshot) View {
	c := copies[snap.Kind]
	v := View{
		Step:          snap.Kind,
		State:         snap.State,
		Title:         c.title,
		Instruction:   c.instruction,
		Overlay:       c.overlay,
		OverlayLabel:  c.overlayLabel,
		Facing:        snap.Facing,
		Mirrored:      snap.Facing == camera.FacingUser,
		CaptureLabel:  c.captureLabel,
		PreviewHandle: snap.Handle,
	}

	switch snap.State {
	case StateIdle:
		v.Busy = true
		v.BusyLabel = "Loading camera..."
	case StateStreaming:
		v.CaptureEnabled = true
	case StateCapturing:
		v.Busy = true
		v.BusyLabel = "Capturing..."
	case StateUploading:
		v.Busy = true
		v.BusyLabel = c.uploadLabel
	case StateRejectedRetryable, StateFailed:
		v.CanRetry = true
		desc := domain.ErrorDescriptor{Kind: domain.ErrorKindUnknown}
		if snap.Error != nil {
			desc = *snap.Error
		}
		ev := PresentError(desc)
		v.Error = &ev
	case StateExited:
		v.PreviewHandle = ""
	}
	return v
}

// PresentError turns a descriptor into the error view every step shows.
func PresentError(desc domain.ErrorDescriptor) ErrorView {
	msg := desc.Message
	if msg == "" {
		msg = classify.DefaultMessage
	}
	tips := append([]string{}, desc.Tips...)
	return ErrorView{
		Kind:       desc.Kind,
		Title:      errorTitle(desc.Kind),
		Message:    msg,
		Tips:       tips,
		RetryLabel: RetryLabel,
	}
}

func errorTitle(kind domain.ErrorKind) string {
	switch kind {
	case domain.ErrorKindCamera:
		return "Camera Access Required"
	case domain.ErrorKindProcessing:
		return "Processing Failed"
	case domain.ErrorKindNetwork:
		return "Connection Error"
	case domain.ErrorKindValidation:
		return "Validation Error"
	default:
		return "Something Went Wrong"
	}
}
