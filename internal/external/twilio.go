package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wayrafrost/internal/types"
)

const (
	twilioAPIBase = "https://api.twilio.com"
	twilioSource  = "twilio"
)

// Twilio error codes for recipients that can never be reached.
var twilioInvalidRecipient = map[int]bool{
	21211: true, // invalid 'To' number
	21614: true, // 'To' is not a mobile number
	21610: true, // recipient unsubscribed
}

// TwilioConfig holds the configuration for creating a TwilioSender.
type TwilioConfig struct {
	AccountSID string
	AuthToken  types.SecretString
	From       string
	BaseURL    string
	Logger     *slog.Logger
}

// TwilioSender implements types.SMSSender over the Twilio Messages API.
type TwilioSender struct {
	base       *BaseClient
	accountSID string
	authToken  types.SecretString
	from       string
	baseURL    string
	logger     *slog.Logger
}

// NewTwilioSender creates a TwilioSender with its own breaker. Sends are not
// retried: a retried POST may deliver the message twice.
func NewTwilioSender(httpClient *http.Client, cfg TwilioConfig) *TwilioSender {
	base := NewBaseClient(httpClient, twilioSource, NoRetryPolicy(),
		WithFailureCode(types.ErrCodeUpstreamSMS),
		WithSleepFunc(time.Sleep),
	)
	return NewTwilioSenderWithBase(base, cfg)
}

// NewTwilioSenderWithBase creates a TwilioSender on a pre-configured
// BaseClient.
func NewTwilioSenderWithBase(base *BaseClient, cfg TwilioConfig) *TwilioSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioAPIBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TwilioSender{
		base:       base,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:     cfg.Logger,
	}
}

// Available reports whether all credentials are configured.
func (t *TwilioSender) Available() bool {
	return t.accountSID != "" && t.authToken.IsSet() && t.from != ""
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send delivers body to the E.164 number to and returns the message SID.
//
// Error mapping:
//   - unreachable recipient (21211, 21610, 21614) -> validation_invalid_phone
//   - other 4xx -> upstream_sms_unavailable
//   - 429/5xx -> handled by BaseClient
func (t *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	if !t.Available() {
		return "", types.NewAppError(types.ErrCodeUnavailableSMS, "twilio credentials are not configured", nil)
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, url.PathEscape(t.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create twilio request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken.Unmask())

	resp, err := t.base.Do(req)
	if err != nil {
		return "", wrapError(twilioSource, types.ErrCodeUpstreamSMS, "Send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", t.handleErrorResponse(resp)
	}

	var msg twilioMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamSMS, "failed to decode twilio response", err)
	}

	t.logger.InfoContext(ctx, "sms accepted by twilio", "message_sid", msg.SID, "status", msg.Status)
	return msg.SID, nil
}

func (t *TwilioSender) handleErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var te twilioError
	_ = json.Unmarshal(raw, &te)

	t.logger.Error("twilio API error",
		"status_code", resp.StatusCode,
		"twilio_code", te.Code,
		"message", te.Message,
	)

	if twilioInvalidRecipient[te.Code] {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidPhone,
			"el número no puede recibir SMS",
			fmt.Errorf("twilio %d: %s", te.Code, te.Message),
			map[string]any{"twilio_code": te.Code},
		)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return types.NewAppErrorWithDetails(
			types.ErrCodeUnavailableSMS,
			"twilio rejected the account credentials",
			fmt.Errorf("twilio %d: %s", te.Code, te.Message),
			map[string]any{"status_code": resp.StatusCode, "twilio_code": te.Code},
		)
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamSMS,
		fmt.Sprintf("twilio returned %d", resp.StatusCode),
		fmt.Errorf("twilio %d: %s", te.Code, te.Message),
		map[string]any{"status_code": resp.StatusCode, "twilio_code": te.Code},
	)
}
