package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers MUST use these instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidLat        ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon        ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationMissingField      ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidJSON       ErrorCode = "validation_invalid_json"
	ErrCodeValidationInvalidPhone      ErrorCode = "validation_invalid_phone"
	ErrCodeValidationMissingFeature    ErrorCode = "validation_missing_feature"
	ErrCodeValidationRequestTooLarge   ErrorCode = "validation_request_too_large"
	ErrCodeValidationOutOfOrder        ErrorCode = "validation_observation_out_of_order"
	ErrCodeValidationInvalidPrediction ErrorCode = "validation_invalid_prediction_data"
	ErrCodeValidationInvalidHours      ErrorCode = "validation_invalid_forecast_hours"

	// Not Found (404)
	ErrCodeNotFoundRoute    ErrorCode = "not_found_route"
	ErrCodeNotFoundLocation ErrorCode = "not_found_location"

	// Rate limiting (429)
	ErrCodeRateLimited ErrorCode = "rate_limit_exceeded"

	// Service unavailable (503)
	ErrCodeUnavailableSMS        ErrorCode = "unavailable_sms_service"
	ErrCodeUnavailableClassifier ErrorCode = "unavailable_classifier"

	// Internal/Upstream (500/502)
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeInternalFeatureSchema ErrorCode = "internal_feature_schema_mismatch"
	ErrCodeUpstreamWeather       ErrorCode = "upstream_weather_unavailable"
	ErrCodeUpstreamClassifier    ErrorCode = "upstream_classifier_unavailable"
	ErrCodeUpstreamAdvisory      ErrorCode = "upstream_advisory_unavailable"
	ErrCodeUpstreamSMS           ErrorCode = "upstream_sms_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case s == string(ErrCodeValidationRequestTooLarge):
		return http.StatusRequestEntityTooLarge // 413
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case s == string(ErrCodeUpstreamRateLimited), s == string(ErrCodeRateLimited):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "unavailable_"):
		return http.StatusServiceUnavailable // 503
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type. Domain and handler errors
// are expressed as AppError so that the API layer can map them to a status
// code and a consistent JSON envelope.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
