// Package validation checks request fields and collects one message per failing field.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validator returns a message when v is invalid and "" otherwise.
type Validator func(v string) string

// Required rejects blank values and values longer than maxLen runes.
func Required(fieldName string, maxLen int) Validator {
	return func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return fieldName + " is required."
		}
		if utf8.RuneCountInString(v) > maxLen {
			return fmt.Sprintf("%s cannot exceed %d characters.", fieldName, maxLen)
		}
		return ""
	}
}

// Optional accepts blank values and rejects values longer than maxLen runes.
func Optional(fieldName string, maxLen int) Validator {
	return func(v string) string {
		if utf8.RuneCountInString(v) > maxLen {
			return fmt.Sprintf("%s cannot exceed %d characters.", fieldName, maxLen)
		}
		return ""
	}
}

// OneOf accepts values equal to one of options, ignoring case and surrounding space.
func OneOf(fieldName string, options []string) Validator {
	return func(v string) string {
		v = strings.TrimSpace(v)
		for _, opt := range options {
			if strings.EqualFold(v, opt) {
				return ""
			}
		}
		return fmt.Sprintf("%s must be one of: %s", fieldName, strings.Join(options, ", "))
	}
}

// FieldValidator accumulates the first failure per field.
type FieldValidator struct {
	errors map[string]string
}

// New creates an empty FieldValidator.
func New() *FieldValidator {
	return &FieldValidator{errors: make(map[string]string)}
}

// Validate runs validators against value in order and records the first failure.
func (fv *FieldValidator) Validate(field, value string, validators ...Validator) *FieldValidator {
	if _, done := fv.errors[field]; done {
		return fv
	}
	for _, v := range validators {
		if msg := v(value); msg != "" {
			fv.errors[field] = msg
			break
		}
	}
	return fv
}

// ValidateEach applies validators to every element of values and records the first
// failing element under field.
func (fv *FieldValidator) ValidateEach(field string, values []string, validators ...Validator) *FieldValidator {
	for _, value := range values {
		fv.Validate(field, value, validators...)
	}
	return fv
}

// Valid reports whether no field has failed.
func (fv *FieldValidator) Valid() bool {
	return len(fv.errors) == 0
}

// Errors returns the accumulated field messages.
func (fv *FieldValidator) Errors() map[string]string {
	return fv.errors
}
