package models

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		// pathelem: usable as a single file name or gateway segment.
		_ = validate.RegisterValidation("pathelem", func(fl validator.FieldLevel) bool {
			return IsPathElement(fl.Field().String())
		})
		_ = validate.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
			_, err := regexp.Compile(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// IsPathElement reports whether s can be used as one path element without
// escaping its parent directory.
func IsPathElement(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\\x00")
}

// FieldError describes one failing field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for input rejected before any rendering takes
// place. It is safe to show to API callers.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// NewValidationError builds a single-field ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Validate checks v against its struct tags.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_with":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "numeric":
		return field + " must contain digits only"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", field)
	case "ip":
		return field + " must be a valid IP address"
	case "hostname_rfc1123":
		return field + " must be a valid hostname"
	case "pathelem", "excludesall":
		return field + " contains forbidden characters"
	case "regexp":
		return field + " is not a valid regular expression"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// ValidateTenant applies the struct tags plus the range cross-check.
func ValidateTenant(t *Tenant) error {
	if strings.TrimSpace(t.Name) == "" {
		return NewValidationError("name", "name is required")
	}
	if err := Validate(t); err != nil {
		return err
	}
	if t.ExtensionStart > 0 && t.ExtensionEnd > 0 && t.ExtensionEnd < t.ExtensionStart {
		return NewValidationError("extension_end", "extension_end must not be lower than extension_start")
	}
	return nil
}
