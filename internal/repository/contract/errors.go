package contract

import "errors"

// ErrConstraintViolation marks writes rejected by an integrity constraint.
// Retrying them cannot succeed.
var ErrConstraintViolation = errors.New("constraint violation")
