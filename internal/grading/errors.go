package grading

import "errors"

// ErrInvalidInput is wrapped by every ValidationError.
var ErrInvalidInput = errors.New("invalid grade input")

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports input rejected before any progress was touched.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func newValidationError(flds ...FieldError) error {
	return &ValidationError{ErrInvalidInput, flds}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err *ValidationError) Unwrap() error {
	return err.Err
}

// FieldMap returns field name -> message.
func (err *ValidationError) FieldMap() map[string]string {
	m := make(map[string]string, len(err.Fields))
	for _, f := range err.Fields {
		m[f.Field] = f.Error
	}
	return m
}
