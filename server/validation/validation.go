// Package validation checks inbound chat requests when strict history
// validation is enabled, and estimates transcript sizes with tiktoken.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one failed constraint.
type FieldError struct {
	Field   string `json:"field"`           // Path of the offending field, e.g. history[1].role
	Message string `json:"message"`         // Human-readable error message
	Code    string `json:"code"`            // Machine-readable error code
	Value   string `json:"value,omitempty"` // The rejected value
}

// Validator wraps a go-playground validator that reports JSON field names.
type Validator struct {
	validate *validator.Validate
}

// New returns a Validator. It is safe for concurrent use.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct validates s and returns one FieldError per failed constraint.
// A nil slice means s is valid.
func (v *Validator) Struct(s interface{}) []FieldError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "body", Message: err.Error(), Code: "invalid"}}
	}

	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fieldPath(fe.Namespace())
		details = append(details, FieldError{
			Field:   field,
			Message: message(field, fe),
			Code:    fe.Tag() + "_validation_failed",
			Value:   fmt.Sprintf("%v", fe.Value()),
		})
	}
	return details
}

// fieldPath drops the struct name from a validator namespace:
// "ChatRequest.history[0].role" becomes "history[0].role".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// Summary joins details into a single line for the error envelope.
func Summary(details []FieldError) string {
	msgs := make([]string, len(details))
	for i, d := range details {
		msgs[i] = d.Message
	}
	return "invalid chat request: " + strings.Join(msgs, "; ")
}
