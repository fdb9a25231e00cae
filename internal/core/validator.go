package core

import (
	"errors"
	"log/slog"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"wayrafrost/internal/types"
)

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult collects field errors and non-blocking warnings.
type ValidationResult struct {
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// IsValid reports whether no field failed.
func (r ValidationResult) IsValid() bool { return len(r.Errors) == 0 }

// Validator wraps go-playground/validator with the API's custom tags and
// error mapping. Field names in errors are the JSON names.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers the custom tags:
//
//	finite    - float is neither NaN nor ±Inf
//	not_blank - string has a non-space character
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	_ = v.RegisterValidation("not_blank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct returns nil or an AppError whose code matches the first
// failing field; all failures are listed under details.validation_errors.
func (v *Validator) ValidateStruct(s any) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}
	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// ValidateStructWithWarnings validates s and returns every failure.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	var result ValidationResult

	err := v.validate.Struct(s)
	if err == nil {
		return result
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.logger.Error("validator misuse", "error", err)
		result.Errors = append(result.Errors, ValidationError{
			Field:   "",
			Code:    string(types.ErrCodeValidationInvalidJSON),
			Message: "request could not be validated",
		})
		return result
	}

	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    tagToErrorCode(fe.Tag(), fe.Field()),
			Message: messageFor(fe),
		})
	}
	return result
}

// tagToErrorCode maps a failed tag to an error code. Coordinate fields keep
// their dedicated codes whatever the tag.
func tagToErrorCode(tag, field string) string {
	switch field {
	case "latitude", "lat":
		return string(types.ErrCodeValidationInvalidLat)
	case "longitude", "lon":
		return string(types.ErrCodeValidationInvalidLon)
	case "hours":
		return string(types.ErrCodeValidationInvalidHours)
	}
	switch tag {
	case "required", "not_blank":
		return string(types.ErrCodeValidationMissingField)
	case "latitude":
		return string(types.ErrCodeValidationInvalidLat)
	case "longitude":
		return string(types.ErrCodeValidationInvalidLon)
	case "e164":
		return string(types.ErrCodeValidationInvalidPhone)
	default:
		return string(types.ErrCodeValidationInvalidJSON)
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "not_blank":
		return fe.Field() + " is required"
	case "min", "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "max", "lte":
		return fe.Field() + " must be at most " + fe.Param()
	case "finite":
		return fe.Field() + " must be a finite number"
	default:
		return fe.Field() + " is invalid"
	}
}
