package backbone

import "github.com/openfluke/e2fpn/e2"

// Error categories, shared with package e2 so errors.Is works across both.
var (
	ErrConfiguration  = e2.ErrConfiguration
	ErrTypeMismatch   = e2.ErrTypeMismatch
	ErrStateViolation = e2.ErrStateViolation
)
