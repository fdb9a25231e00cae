package alerts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"wayrafrost/internal/notifications"
	"wayrafrost/internal/types"
)

// WeatherReader provides the current reading for a coordinate. It is used to
// fill in the temperature of out-of-coverage alerts.
type WeatherReader interface {
	Current(ctx context.Context, lat, lon float64) (*types.CurrentWeather, error)
}

// Publisher enqueues an alert for asynchronous delivery.
type Publisher interface {
	Publish(ctx context.Context, msg notifications.AlertMessage, delay time.Duration) error
}

// Metrics records rendered alerts.
type Metrics interface {
	RecordAlert(tier string, truncated bool)
	RecordDispatch(mode string, ok bool)
}

// DispatchMode says how an alert left the API.
type DispatchMode string

const (
	DispatchSent   DispatchMode = "sent"
	DispatchQueued DispatchMode = "queued"
)

// Dispatch is the outcome of Send.
type Dispatch struct {
	Mode          DispatchMode `json:"mode"`
	PhoneNumber   string       `json:"phone_number"`
	MessageSID    string       `json:"message_sid,omitempty"`
	MessageID     string       `json:"message_id,omitempty"`
	MessageLength int          `json:"message_length"`
	Tier          Tier         `json:"tier"`
	Segments      int          `json:"estimated_segments"`
	Timestamp     time.Time    `json:"timestamp"`
}

// ServiceConfig wires a Service. Publisher, Weather and Metrics are optional.
type ServiceConfig struct {
	Compactor *Compactor
	Sender    types.SMSSender
	Publisher Publisher
	Weather   WeatherReader
	Metrics   Metrics
	Phone     PhoneRules
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Service renders alerts from prediction data and dispatches them, either
// by enqueueing (when a Publisher is configured) or by sending directly.
type Service struct {
	compactor *Compactor
	sender    types.SMSSender
	publisher Publisher
	weather   WeatherReader
	metrics   Metrics
	phone     PhoneRules
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Compactor == nil {
		cfg.Compactor = NewCompactor(DefaultBudget(), cfg.Clock, time.UTC)
	}
	if cfg.Phone.Digits == 0 {
		cfg.Phone = DefaultPhoneRules()
	}
	return &Service{
		compactor: cfg.Compactor,
		sender:    cfg.Sender,
		publisher: cfg.Publisher,
		weather:   cfg.Weather,
		metrics:   cfg.Metrics,
		phone:     cfg.Phone,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// Budget returns the compactor budget.
func (s *Service) Budget() Budget { return s.compactor.Budget() }

// Available reports whether alerts can be dispatched at all.
func (s *Service) Available() bool {
	return s.publisher != nil || (s.sender != nil && s.sender.Available())
}

// Preview renders the alert for data without sending it.
func (s *Service) Preview(ctx context.Context, data PredictionData) (Text, error) {
	p, err := PayloadFromResult(data)
	if err != nil {
		return Text{}, err
	}
	s.fillTemperature(ctx, &p, data)

	text := s.compactor.Compact(p)
	if s.metrics != nil {
		s.metrics.RecordAlert(string(text.Tier), text.Truncated)
	}
	return text, nil
}

// Send validates the phone number, renders the alert and dispatches it.
func (s *Service) Send(ctx context.Context, rawPhone string, data PredictionData) (*Dispatch, error) {
	to, err := NormalizePhone(rawPhone, s.phone)
	if err != nil {
		return nil, err
	}
	if !s.Available() {
		return nil, types.NewAppError(types.ErrCodeUnavailableSMS,
			"Servicio de SMS no disponible. Twilio no está configurado.", nil)
	}

	text, err := s.Preview(ctx, data)
	if err != nil {
		return nil, err
	}

	d := &Dispatch{
		PhoneNumber:   to,
		MessageLength: text.Length,
		Tier:          text.Tier,
		Segments:      text.Segments,
		Timestamp:     s.clock.Now().UTC(),
	}

	if s.publisher != nil {
		msg := notifications.NewAlertMessage(to, text.Body, string(text.Tier), types.GetTraceID(ctx), d.Timestamp)
		if err := s.publisher.Publish(ctx, msg, 0); err != nil {
			s.recordDispatch(DispatchQueued, false)
			return nil, types.NewAppError(types.ErrCodeUpstreamSMS, "failed to enqueue alert", err)
		}
		s.recordDispatch(DispatchQueued, true)
		d.Mode = DispatchQueued
		d.MessageID = msg.MessageID
		s.logger.InfoContext(ctx, "alert queued",
			"message_id", msg.MessageID,
			"tier", text.Tier,
			"length", text.Length,
		)
		return d, nil
	}

	sid, err := s.sender.Send(ctx, to, text.Body)
	if err != nil {
		s.recordDispatch(DispatchSent, false)
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamSMS, "failed to send SMS", err)
	}
	s.recordDispatch(DispatchSent, true)
	d.Mode = DispatchSent
	d.MessageSID = sid
	s.logger.InfoContext(ctx, "alert sent",
		"message_sid", sid,
		"tier", text.Tier,
		"length", text.Length,
	)
	return d, nil
}

// fillTemperature looks up the current temperature for out-of-coverage
// alerts that arrive without one. Failures leave the field unknown.
func (s *Service) fillTemperature(ctx context.Context, p *Payload, data PredictionData) {
	if p.Available || p.Temperature != nil || s.weather == nil || data.RequestedLocation == nil {
		return
	}
	loc := data.RequestedLocation
	cw, err := s.weather.Current(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		s.logger.WarnContext(ctx, "current weather lookup failed for unavailable alert", "error", err)
		return
	}
	p.Temperature = cw.Temperature
}

func (s *Service) recordDispatch(mode DispatchMode, ok bool) {
	if s.metrics != nil {
		s.metrics.RecordDispatch(string(mode), ok)
	}
}
