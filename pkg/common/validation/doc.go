// Package validation provides common validation utilities for configuration
// parameters across the dueflow library.
//
// Every helper returns a *errors.ValidationError, which wraps
// errors.ErrInvalidConfiguration, so callers can test with errors.Is.
package validation
