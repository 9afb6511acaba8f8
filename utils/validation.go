package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid bool                       `json:"is_valid"`
	Errors  map[string]ValidationError `json:"errors,omitempty"`
}

// Error summarizes the result in field order
func (r *ValidationResult) Error() string {
	fields := make([]string, 0, len(r.Errors))
	for field := range r.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, r.Errors[field].Message))
	}
	return strings.Join(parts, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate returns the shared validator. Field names are reported by their
// json tag so errors line up with the wire format.
func Validate() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateStructResult validates s against its validate tags
func ValidateStructResult(s interface{}) *ValidationResult {
	result := &ValidationResult{IsValid: true, Errors: map[string]ValidationError{}}

	err := Validate().Struct(s)
	if err == nil {
		return result
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		result.IsValid = false
		result.Errors["_root"] = ValidationError{Field: "_root", Message: err.Error()}
		return result
	}

	result.IsValid = false
	for _, fe := range fieldErrs {
		field := trimNamespace(fe.Namespace())
		result.Errors[field] = ValidationError{
			Field:   field,
			Message: describeTag(fe),
			Value:   fmt.Sprintf("%v", fe.Value()),
		}
	}
	return result
}

// ValidateStruct validates s and returns an error describing every failure
func ValidateStruct(s interface{}) error {
	result := ValidateStructResult(s)
	if result.IsValid {
		return nil
	}
	return errors.New(result.Error())
}

// trimNamespace drops the top-level type name from "ProcessResponse.findings[0].type"
func trimNamespace(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// DecodeJSONBody decodes the request body into target. An empty body decodes
// as an empty object. Malformed JSON is an invalid_argument fault.
func DecodeJSONBody(c *fiber.Ctx, target interface{}) error {
	body := c.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return InvalidArgument("request body is not valid JSON: %v", err)
	}
	return nil
}
