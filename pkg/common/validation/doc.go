// Package validation checks constructor and configuration arguments for
// taskpool components.
//
// Every failure is a *errors.ValidationError, so callers can match on
// errors.ErrInvalidConfiguration regardless of which field was rejected.
package validation
