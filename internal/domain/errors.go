package domain

// ErrorKind is the error taxonomy surfaced to the user.
type ErrorKind string

const (
	ErrorKindCamera     ErrorKind = "camera"
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindProcessing ErrorKind = "processing"
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindUnknown marks unclassified failures.
	ErrorKindUnknown ErrorKind = "unknown"
)

// ErrorDescriptor is what a failed or rejected attempt shows the user.
// Message is never empty; Tips is empty only for unclassified failures.
type ErrorDescriptor struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Tips    []string  `json:"tips"`
}

// Error lets descriptors travel through error returns when convenient.
func (d ErrorDescriptor) Error() string {
	return string(d.Kind) + ": " + d.Message
}
