package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"wayrafrost/internal/alerts"
	"wayrafrost/internal/core"
	"wayrafrost/internal/types"
)

// --- Mock Service ---

type mockAlertService struct {
	text      alerts.Text
	previewFn func(alerts.PredictionData) (alerts.Text, error)
	dispatch  *alerts.Dispatch
	sendErr   error
	budget    alerts.Budget
	sentTo    []string
	sentData  []alerts.PredictionData
}

func (m *mockAlertService) Preview(_ context.Context, data alerts.PredictionData) (alerts.Text, error) {
	if m.previewFn != nil {
		return m.previewFn(data)
	}
	return m.text, nil
}

func (m *mockAlertService) Send(_ context.Context, rawPhone string, data alerts.PredictionData) (*alerts.Dispatch, error) {
	m.sentTo = append(m.sentTo, rawPhone)
	m.sentData = append(m.sentData, data)
	return m.dispatch, m.sendErr
}

func (m *mockAlertService) Budget() alerts.Budget { return m.budget }

// --- Helpers ---

const alertBody = `{"phone_number":"987 654 321","prediction_data":{"prediction_available":true,"risk":{"class":2,"class_name":"Moderada"}}}`

func makeAlertRouter(svc AlertService, limiter func(http.Handler) http.Handler) http.Handler {
	logger := testHandlerLogger()
	h := NewAlertHandler(svc, core.NewValidator(logger), logger, limiter)
	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r
}

// --- HandleSend Tests ---

func TestHandleSend_Sent(t *testing.T) {
	svc := &mockAlertService{dispatch: &alerts.Dispatch{
		Mode:          alerts.DispatchSent,
		PhoneNumber:   "+51987654321",
		MessageSID:    "SM123",
		MessageLength: 120,
		Tier:          alerts.TierRich,
		Segments:      1,
		Timestamp:     time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
	}}
	router := makeAlertRouter(svc, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/send-alert-sms", alertBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.sentTo) != 1 || svc.sentTo[0] != "987 654 321" {
		t.Fatalf("phone should reach the service unmodified: %v", svc.sentTo)
	}
	if !svc.sentData[0].PredictionAvailable {
		t.Error("prediction data not decoded")
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != true || body["message"] != "SMS enviado exitosamente" {
		t.Errorf("unexpected body %v", body)
	}
	if body["message_sid"] != "SM123" || body["phone_number"] != "+51987654321" {
		t.Errorf("dispatch fields should be inlined: %v", body)
	}
}

func TestHandleSend_QueuedIsAccepted(t *testing.T) {
	svc := &mockAlertService{dispatch: &alerts.Dispatch{Mode: alerts.DispatchQueued, MessageID: "m-1"}}
	rec := doJSON(t, makeAlertRouter(svc, nil), http.MethodPost, "/api/send-alert-sms", alertBody)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"message_id":"m-1"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandleSend_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   types.ErrorCode
	}{
		{"blank phone", `{"phone_number":"  ","prediction_data":{}}`, nil, http.StatusBadRequest, types.ErrCodeValidationMissingField},
		{"missing prediction", `{"phone_number":"987654321"}`, nil, http.StatusBadRequest, types.ErrCodeValidationInvalidPrediction},
		{"bad phone", alertBody, types.NewAppError(types.ErrCodeValidationInvalidPhone, "Número inválido", nil), http.StatusBadRequest, types.ErrCodeValidationInvalidPhone},
		{"sms unavailable", alertBody, types.NewAppError(types.ErrCodeUnavailableSMS, "no disponible", nil), http.StatusServiceUnavailable, types.ErrCodeUnavailableSMS},
		{"provider failure", alertBody, types.NewAppError(types.ErrCodeUpstreamSMS, "failed", nil), http.StatusBadGateway, types.ErrCodeUpstreamSMS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAlertService{sendErr: tt.err}
			rec := doJSON(t, makeAlertRouter(svc, nil), http.MethodPost, "/api/send-alert-sms", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := errorCode(t, rec); got != string(tt.code) {
				t.Errorf("expected code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestRegisterRoutes_LimiterWrapsSendOnly(t *testing.T) {
	var limited []string
	limiter := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limited = append(limited, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
	svc := &mockAlertService{dispatch: &alerts.Dispatch{Mode: alerts.DispatchSent}, budget: alerts.DefaultBudget()}
	router := makeAlertRouter(svc, limiter)

	doJSON(t, router, http.MethodPost, "/api/send-alert-sms", alertBody)
	doJSON(t, router, http.MethodPost, "/api/test-sms-length", alertBody)

	if len(limited) != 1 || limited[0] != "/api/send-alert-sms" {
		t.Errorf("unexpected limited paths %v", limited)
	}
}

// --- HandlePreview Tests ---

func TestHandlePreview(t *testing.T) {
	svc := &mockAlertService{
		budget: alerts.DefaultBudget(),
		previewFn: func(data alerts.PredictionData) (alerts.Text, error) {
			if !data.PredictionAvailable {
				t.Error("prediction data not decoded")
			}
			return alerts.Text{Body: "HELADA MODERADA", Tier: alerts.TierRich, Length: 15, Segments: 1}, nil
		},
	}
	rec := doJSON(t, makeAlertRouter(svc, nil), http.MethodPost, "/api/test-sms-length", alertBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != "HELADA MODERADA" || body["length"] != float64(15) || body["estimated_segments"] != float64(1) {
		t.Errorf("unexpected body %v", body)
	}
	if body["within_limit"] != true || body["tier"] != "rich" {
		t.Errorf("unexpected body %v", body)
	}
	if len(svc.sentTo) != 0 {
		t.Error("preview must not send")
	}
}

func TestHandlePreview_OverCeiling(t *testing.T) {
	svc := &mockAlertService{
		budget: alerts.Budget{Primary: 10, Ceiling: 20},
		text:   alerts.Text{Body: strings.Repeat("x", 25), Length: 25, Segments: 1},
	}
	rec := doJSON(t, makeAlertRouter(svc, nil), http.MethodPost, "/api/test-sms-length", alertBody)
	if !strings.Contains(rec.Body.String(), `"within_limit":false`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandlePreview_MissingPrediction(t *testing.T) {
	rec := doJSON(t, makeAlertRouter(&mockAlertService{}, nil), http.MethodPost, "/api/test-sms-length", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := errorCode(t, rec); got != string(types.ErrCodeValidationInvalidPrediction) {
		t.Errorf("unexpected code %s", got)
	}
}

// The real service drives the handler end to end with the default budget.
func TestHandlePreview_RealService(t *testing.T) {
	svc := alerts.NewService(alerts.ServiceConfig{Logger: testHandlerLogger()})
	rec := doJSON(t, makeAlertRouter(svc, nil), http.MethodPost, "/api/test-sms-length", alertBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp PreviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Length == 0 || resp.Length > alerts.DefaultHardCeiling || !resp.WithinLimit {
		t.Errorf("unexpected preview %+v", resp)
	}
}
