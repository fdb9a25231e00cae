package core

import (
	"errors"
	"math"
	"testing"

	"wayrafrost/internal/types"
)

type testLocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,finite,min=-90,max=90"`
	Longitude *float64 `json:"longitude" validate:"required,finite,min=-180,max=180"`
	Phone     string   `json:"phone_number" validate:"not_blank"`
}

func ptr(v float64) *float64 { return &v }

func TestValidationResult_IsValid(t *testing.T) {
	if !(ValidationResult{}).IsValid() {
		t.Error("empty result should be valid")
	}
	if !(ValidationResult{Warnings: []string{"w"}}).IsValid() {
		t.Error("warnings alone should not invalidate")
	}
	if (ValidationResult{Errors: []ValidationError{{Field: "x"}}}).IsValid() {
		t.Error("result with errors should be invalid")
	}
}

func TestValidateStruct_Success(t *testing.T) {
	v := NewValidator(testLogger())
	req := testLocationRequest{Latitude: ptr(-12.06), Longitude: ptr(-75.2), Phone: "987654321"}
	if err := v.ValidateStruct(req); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestValidateStruct_Failures(t *testing.T) {
	v := NewValidator(testLogger())

	tests := []struct {
		name  string
		req   testLocationRequest
		code  types.ErrorCode
		field string
	}{
		{"missing latitude", testLocationRequest{Longitude: ptr(0), Phone: "1"}, types.ErrCodeValidationInvalidLat, "latitude"},
		{"latitude out of range", testLocationRequest{Latitude: ptr(91), Longitude: ptr(0), Phone: "1"}, types.ErrCodeValidationInvalidLat, "latitude"},
		{"longitude out of range", testLocationRequest{Latitude: ptr(0), Longitude: ptr(-181), Phone: "1"}, types.ErrCodeValidationInvalidLon, "longitude"},
		{"infinite longitude", testLocationRequest{Latitude: ptr(0), Longitude: ptr(math.Inf(1)), Phone: "1"}, types.ErrCodeValidationInvalidLon, "longitude"},
		{"blank phone", testLocationRequest{Latitude: ptr(0), Longitude: ptr(0), Phone: "   "}, types.ErrCodeValidationMissingField, "phone_number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.req)
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, appErr.Code)
			}
			errs, ok := appErr.Details["validation_errors"].([]ValidationError)
			if !ok || len(errs) == 0 || errs[0].Field != tt.field {
				t.Errorf("unexpected validation errors %v", appErr.Details)
			}
		})
	}
}

func TestValidateStructWithWarnings_ListsAll(t *testing.T) {
	v := NewValidator(testLogger())
	result := v.ValidateStructWithWarnings(testLocationRequest{})
	if len(result.Errors) != 3 {
		t.Errorf("expected 3 errors, got %+v", result.Errors)
	}
}

func TestTagToErrorCode(t *testing.T) {
	cases := []struct {
		tag, field string
		want       types.ErrorCode
	}{
		{"required", "phone_number", types.ErrCodeValidationMissingField},
		{"not_blank", "name", types.ErrCodeValidationMissingField},
		{"max", "latitude", types.ErrCodeValidationInvalidLat},
		{"required", "longitude", types.ErrCodeValidationInvalidLon},
		{"e164", "to", types.ErrCodeValidationInvalidPhone},
		{"max", "hours", types.ErrCodeValidationInvalidHours},
		{"oneof", "mode", types.ErrCodeValidationInvalidJSON},
	}
	for _, tc := range cases {
		if got := tagToErrorCode(tc.tag, tc.field); got != string(tc.want) {
			t.Errorf("tagToErrorCode(%q, %q) = %q, want %q", tc.tag, tc.field, got, tc.want)
		}
	}
}
