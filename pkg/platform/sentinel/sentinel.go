package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, devices and remote clients
// return these (optionally wrapped) so callers can classify them without
// depending on the concrete layer that produced them.
//
//   - ErrNotFound: entity does not exist in a store or catalog
//   - ErrConflict: entity already exists
//   - ErrInvalidState: entity in the wrong state for the requested operation
//   - ErrUnavailable: remote service or device temporarily unavailable
//   - ErrInvalidInput: caller supplied a value the entity does not accept
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidInput = errors.New("invalid input")
)
