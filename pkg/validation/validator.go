package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// Custom validator instance
	validate = validator.New()

	handlePattern     = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)
	identifierPattern = regexp.MustCompile(`^[0-9]{1,19}$`)
)

// ValidationError represents a validation error with field and message
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

func init() {
	// Report json names so messages match the GraphQL field names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	validate.RegisterValidation("handle", validateHandle)
	validate.RegisterValidation("identifier", validateIdentifier)
	validate.RegisterValidation("sublevel", validateSubLevel)
	validate.RegisterValidation("maxbytes", validateMaxBytes)
}

// SubLevelChecker is implemented by enum types that can report validity.
type SubLevelChecker interface {
	IsValid() bool
}

// validateHandle validates a user handle (letters, digits, underscore)
func validateHandle(fl validator.FieldLevel) bool {
	handle, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return handlePattern.MatchString(handle)
}

// validateIdentifier validates a store-assigned decimal identifier
func validateIdentifier(fl validator.FieldLevel) bool {
	id, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return identifierPattern.MatchString(id)
}

// validateSubLevel accepts the zero value (defaulted later) or a known tier
func validateSubLevel(fl validator.FieldLevel) bool {
	if fl.Field().String() == "" {
		return true
	}
	level, ok := fl.Field().Interface().(SubLevelChecker)
	if !ok {
		return false
	}
	return level.IsValid()
}

// validateMaxBytes bounds the encoded length of a string; max counts runes
func validateMaxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// ValidateStruct validates a struct using tags
func ValidateStruct(s interface{}) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "input", Message: err.Error()}}
	}

	var out ValidationErrors
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: getErrorMessage(fe.Field(), fe.Tag(), fe.Param()),
			Value:   fe.Value(),
		})
	}
	return out
}

// getErrorMessage returns a user-friendly error message
func getErrorMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "handle":
		return fmt.Sprintf("%s must be 1-32 letters, digits or underscores", field)
	case "identifier":
		return fmt.Sprintf("%s must be a numeric identifier", field)
	case "sublevel":
		return fmt.Sprintf("%s must be one of FREE, BRONZE, SILVER, GOLD", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "maxbytes":
		return fmt.Sprintf("%s must be at most %s bytes", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 { // Keep tab, newline, carriage return
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
