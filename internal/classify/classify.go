// Package classify maps raw failures into the user-facing error taxonomy.
package classify

import (
	"errors"
	"strings"

	"kycflow/internal/camera"
	"kycflow/internal/domain"
)

// Default message for failures nothing else recognizes.
const DefaultMessage = "Something went wrong. Please try again."

const (
	msgPermissionDenied = "Camera access denied. Please allow camera permissions."
	msgDeviceBusy       = "Camera is already in use by another application."
	msgNotAccessible    = "Camera not accessible: "
	msgNoStream         = "Camera not available"
	msgEncode           = "Failed to capture image"
	msgNetwork          = "Network error. Please try again."
	msgDocumentUnclear  = "Document is not clear. Please retake."
	msgNoFace           = "No face detected. Please try again."
	msgFakeFace         = "Fake face detected."
	msgFaceFailed       = "Face verification failed."
	msgMRZFailed        = "OCR failed or status not successful."
)

var (
	tipsPermission = []string{"Allow camera access in your browser or device settings.", "Reload the page after granting access."}
	tipsBusy       = []string{"Close other applications that use the camera.", "Try again."}
	tipsCamera     = []string{"Ensure your camera is connected and accessible.", "Try refreshing the page."}
	tipsEncode     = []string{"Try again.", "Ensure good lighting conditions."}
	tipsNetwork    = []string{"Check your internet connection.", "Try again later."}
	tipsDocument   = []string{"Ensure the document is fully visible.", "Avoid glare or shadows."}
	tipsSelfie     = []string{"Keep your face inside the oval frame.", "Use even lighting and look at the camera."}
	tipsMRZ        = []string{"Ensure MRZ area is clearly visible.", "Try again with better lighting."}
)

// ServerMessenger is implemented by errors that carry a message from the
// verification service.
type ServerMessenger interface {
	ServerMessage() string
}

// Transport is implemented by errors raised while talking to the
// verification service.
type Transport interface {
	TransportFailure() bool
}

// Failure classifies a raw failure from the camera or the verification
// transport. It never returns a descriptor with an empty message.
func Failure(err error) domain.ErrorDescriptor {
	if err == nil {
		return unknown()
	}

	var desc domain.ErrorDescriptor
	if errors.As(err, &desc) && desc.Message != "" {
		return desc
	}

	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return newDescriptor(domain.ErrorKindCamera, msgPermissionDenied, tipsPermission)
	case errors.Is(err, camera.ErrDeviceBusy):
		return newDescriptor(domain.ErrorKindCamera, msgDeviceBusy, tipsBusy)
	case camera.IsFallbackFailure(err):
		var fe *camera.FallbackError
		errors.As(err, &fe)
		return newDescriptor(domain.ErrorKindCamera, msgNotAccessible+fe.Err.Error(), tipsCamera)
	case errors.Is(err, camera.ErrDeviceNotFound), errors.Is(err, camera.ErrOverconstrained):
		return newDescriptor(domain.ErrorKindCamera, msgNotAccessible+err.Error(), tipsCamera)
	case errors.Is(err, camera.ErrNoStream):
		return newDescriptor(domain.ErrorKindCamera, msgNoStream, tipsCamera)
	case errors.Is(err, camera.ErrEncode):
		return newDescriptor(domain.ErrorKindProcessing, msgEncode, tipsEncode)
	}

	var tr Transport
	if errors.As(err, &tr) && tr.TransportFailure() {
		return Network(err)
	}
	return unknown()
}

// Network builds the descriptor for a submission that got no usable answer.
// The service message is kept when there is one.
func Network(err error) domain.ErrorDescriptor {
	msg := msgNetwork
	var sm ServerMessenger
	if errors.As(err, &sm) {
		if m := strings.TrimSpace(sm.ServerMessage()); m != "" {
			msg = m
		}
	}
	return newDescriptor(domain.ErrorKindNetwork, msg, tipsNetwork)
}

// Rejection builds the descriptor for a well-formed response that refused the
// capture. serverMessage may be empty.
func Rejection(step domain.StepKind, serverMessage string) domain.ErrorDescriptor {
	msg := strings.TrimSpace(serverMessage)
	switch step {
	case domain.StepDocumentFront, domain.StepDocumentBack:
		if msg == "" {
			msg = msgDocumentUnclear
		}
		return newDescriptor(domain.ErrorKindValidation, msg, tipsDocument)
	case domain.StepSelfie:
		if msg == "" {
			msg = msgFaceFailed
		}
		return newDescriptor(domain.ErrorKindValidation, msg, tipsSelfie)
	case domain.StepMRZ:
		return newDescriptor(domain.ErrorKindProcessing, msgMRZFailed, tipsMRZ)
	default:
		if msg == "" {
			return unknown()
		}
		return newDescriptor(domain.ErrorKindValidation, msg, nil)
	}
}

// FakeFace builds the selfie rejection for a spoof verdict. The message always
// mentions "fake".
func FakeFace(serverMessage string) domain.ErrorDescriptor {
	msg := strings.TrimSpace(serverMessage)
	switch {
	case msg == "":
		msg = msgFakeFace
	case !strings.Contains(strings.ToLower(msg), "fake"):
		msg = "Fake face detected: " + msg
	}
	return newDescriptor(domain.ErrorKindValidation, msg, tipsSelfie)
}

// NoFace is the selfie failure when the service returned no verdict.
func NoFace() domain.ErrorDescriptor {
	return newDescriptor(domain.ErrorKindProcessing, msgNoFace, tipsSelfie)
}

func unknown() domain.ErrorDescriptor {
	return domain.ErrorDescriptor{Kind: domain.ErrorKindUnknown, Message: DefaultMessage, Tips: []string{}}
}

func newDescriptor(kind domain.ErrorKind, msg string, tips []string) domain.ErrorDescriptor {
	out := make([]string, len(tips))
	copy(out, tips)
	return domain.ErrorDescriptor{Kind: kind, Message: msg, Tips: out}
}
