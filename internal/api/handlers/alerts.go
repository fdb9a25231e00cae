package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wayrafrost/internal/alerts"
	"wayrafrost/internal/core"
	"wayrafrost/internal/types"
)

// AlertService renders and dispatches SMS alerts.
type AlertService interface {
	Preview(ctx context.Context, data alerts.PredictionData) (alerts.Text, error)
	Send(ctx context.Context, rawPhone string, data alerts.PredictionData) (*alerts.Dispatch, error)
	Budget() alerts.Budget
}

// AlertHandler serves the SMS alert endpoints.
type AlertHandler struct {
	service   AlertService
	validator *core.Validator
	logger    *slog.Logger
	limiter   func(http.Handler) http.Handler
}

// NewAlertHandler creates an AlertHandler. limiter, when non-nil, wraps the
// send endpoint.
func NewAlertHandler(
	service AlertService,
	val *core.Validator,
	logger *slog.Logger,
	limiter func(http.Handler) http.Handler,
) *AlertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertHandler{
		service:   service,
		validator: val,
		logger:    logger,
		limiter:   limiter,
	}
}

// RegisterRoutes mounts the endpoints under the /api router.
func (h *AlertHandler) RegisterRoutes(r chi.Router) {
	send := r
	if h.limiter != nil {
		send = r.With(h.limiter)
	}
	send.Post("/send-alert-sms", h.HandleSend)
	r.Post("/test-sms-length", h.HandlePreview)
}

// SendAlertRequest is the body of POST /api/send-alert-sms.
type SendAlertRequest struct {
	PhoneNumber    string                 `json:"phone_number" validate:"not_blank"`
	PredictionData *alerts.PredictionData `json:"prediction_data"`
}

// PreviewRequest is the body of POST /api/test-sms-length. Any phone number
// in the body is ignored.
type PreviewRequest struct {
	PredictionData *alerts.PredictionData `json:"prediction_data"`
}

// SendAlertResponse is the body of a successful send.
type SendAlertResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*alerts.Dispatch
}

// PreviewResponse is the body of POST /api/test-sms-length.
type PreviewResponse struct {
	alerts.Text
	WithinLimit bool `json:"within_limit"`
}

// HandleSend handles POST /api/send-alert-sms. A queued alert answers 202.
func (h *AlertHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req SendAlertRequest
	if err := core.DecodeJSON(w, r, &req, true); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.PredictionData == nil {
		core.Error(w, r, errPredictionRequired)
		return
	}

	d, err := h.service.Send(r.Context(), req.PhoneNumber, *req.PredictionData)
	if err != nil {
		h.logger.WarnContext(r.Context(), "alert dispatch failed", "error", err)
		core.Error(w, r, err)
		return
	}

	status, msg := http.StatusOK, "SMS enviado exitosamente"
	if d.Mode == alerts.DispatchQueued {
		status, msg = http.StatusAccepted, "SMS encolado para envío"
	}
	core.JSON(w, r, status, SendAlertResponse{Success: true, Message: msg, Dispatch: d})
}

// HandlePreview handles POST /api/test-sms-length. Nothing is sent.
func (h *AlertHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := core.DecodeJSON(w, r, &req, true); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.PredictionData == nil {
		core.Error(w, r, errPredictionRequired)
		return
	}

	text, err := h.service.Preview(r.Context(), *req.PredictionData)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	ceiling := h.service.Budget().Ceiling
	core.JSON(w, r, http.StatusOK, PreviewResponse{
		Text:        text,
		WithinLimit: ceiling <= 0 || text.Length <= ceiling,
	})
}

var _ AlertService = (*alerts.Service)(nil)

var errPredictionRequired = types.NewAppError(types.ErrCodeValidationInvalidPrediction,
	"Datos de predicción requeridos", nil)
