package core

import "errors"

// Domain error taxonomy. Services wrap these with fmt %w; the API boundary
// matches with errors.Is and maps each to its HTTP status class.
var (
	// ErrUnauthenticated means the presented credential resolved to no live
	// identity (401).
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the identity is valid but does not own the target
	// resource (403).
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means a referenced entity is absent (404).
	ErrNotFound = errors.New("not found")

	// ErrValidation means the input violated a constraint (400). The wrapped
	// message names the first violated constraint.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means the operation would violate a uniqueness guard, such
	// as starting a run while another is unterminated (400).
	ErrConflict = errors.New("conflict")
)
