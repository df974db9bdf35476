package core

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// FieldErrors extracts field-level errors from a validation failure so callers
// can render them inline. Returns nil for non-validation errors.
func FieldErrors(err error) []FieldError {
	switch origErr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		flds := make([]FieldError, 0, len(origErr))
		for _, vErr := range origErr {
			flds = append(flds, FieldError{Field: vErr.Field(), Error: vErr.Translate(Translator)})
		}
		return flds
	case *ValidationError:
		return origErr.Fields
	}
	return nil
}
