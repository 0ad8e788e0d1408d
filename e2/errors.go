package e2

import "errors"

var (
	// ErrConfiguration marks an invalid construction-time configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrTypeMismatch marks a tensor whose channel structure disagrees
	// with the field type it is paired with or fed to.
	ErrTypeMismatch = errors.New("field type mismatch")

	// ErrStateViolation marks an operation that is illegal in the
	// current lifecycle state, such as training after export.
	ErrStateViolation = errors.New("state violation")
)
