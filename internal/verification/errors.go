package verification

import (
	"errors"
	"fmt"

	"kycflow/pkg/platform/sentinel"
)

// ErrCircuitOpen is returned without contacting the service while the
// breaker is open.
var ErrCircuitOpen = errors.New("verification service circuit open")

// ServiceError is a submission that produced no usable verdict: the request
// failed, the service answered non-2xx, or the body could not be decoded.
type ServiceError struct {
	Endpoint   string
	StatusCode int
	// Message is the service's own explanation, when it sent one.
	Message    string
	Underlying error
}

func (e *ServiceError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("verification %s [%d]: %s", e.Endpoint, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("verification %s [%d]", e.Endpoint, e.StatusCode)
	case e.Underlying != nil:
		return fmt.Sprintf("verification %s: %v", e.Endpoint, e.Underlying)
	default:
		return fmt.Sprintf("verification %s failed", e.Endpoint)
	}
}

// Unwrap exposes the cause, falling back to sentinel.ErrUnavailable so callers
// can treat every ServiceError as an unavailable dependency.
func (e *ServiceError) Unwrap() []error {
	if e.Underlying != nil {
		return []error{e.Underlying, sentinel.ErrUnavailable}
	}
	return []error{sentinel.ErrUnavailable}
}

func (e *ServiceError) ServerMessage() string {
	return e.Message
}

func (e *ServiceError) TransportFailure() bool {
	return true
}

// tripsBreaker reports whether the failure says something about service
// health rather than about the request.
func (e *ServiceError) tripsBreaker() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}
