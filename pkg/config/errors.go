package config

import (
	"errors"
	"fmt"

	"github.com/hyp3rd/ewrap"
)

// ErrInvalidConfiguration is matched by every error reporting malformed settings.
var ErrInvalidConfiguration error = ewrap.New("invalid configuration").WithContext(
	&ewrap.ErrorContext{
		Severity: ewrap.SeverityError,
		Type:     ewrap.ErrorTypeConfiguration,
	},
)

// ValidationError names the configuration type and field that failed a check.
type ValidationError struct {
	Type   string
	Field  string
	Reason string
}

func newValidationError(typeName, field, format string, args ...any) error {
	return &ValidationError{
		Type:   typeName,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Error implements error.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}

	if v.Type == "" {
		return fmt.Sprintf("%s: %s %s", ErrInvalidConfiguration.Error(), v.Field, v.Reason)
	}

	return fmt.Sprintf("%s: %s.%s %s", ErrInvalidConfiguration.Error(), v.Type, v.Field, v.Reason)
}

// Unwrap implements errors.Wrapper.
func (v *ValidationError) Unwrap() error {
	if v == nil {
		return nil
	}

	return ErrInvalidConfiguration
}

// IsValidationError reports whether err carries a ValidationError and returns it.
func IsValidationError(err error) (*ValidationError, bool) {
	if err == nil {
		return nil, false
	}

	var target *ValidationError
	if !errors.As(err, &target) {
		return nil, false
	}

	return target, true
}
