package domain

// StepKind identifies one stage of the verification flow. Values are the
// canonical identifiers; flow configuration aliases are resolved by the flow
// package before they reach the domain.
type StepKind string

const (
	StepCountrySelection  StepKind = "country_selection"
	StepDocumentSelection StepKind = "document_selection"
	StepDocumentFront     StepKind = "document_front"
	StepDocumentBack      StepKind = "document_back"
	StepSelfie            StepKind = "selfie"
	StepMRZ               StepKind = "mrz"
	StepComplete          StepKind = "complete"
)

// IsCapture reports whether the step drives the camera.
func (k StepKind) IsCapture() bool {
	switch k {
	case StepDocumentFront, StepDocumentBack, StepSelfie, StepMRZ:
		return true
	default:
		return false
	}
}

// IsDocument reports whether the step captures a document side.
func (k StepKind) IsDocument() bool {
	return k == StepDocumentFront || k == StepDocumentBack
}

// WireName is the discriminator the verification service expects.
func (k StepKind) WireName() string {
	switch k {
	case StepDocumentFront:
		return "document-front"
	case StepDocumentBack:
		return "document-back"
	default:
		return string(k)
	}
}

func (k StepKind) String() string {
	return string(k)
}
