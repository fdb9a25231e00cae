package external

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"wayrafrost/internal/types"
)

// maxErrorBody bounds how much of an error response is read for logging.
const maxErrorBody = 4096

// responseError reads a non-2xx response that BaseClient passed through and
// maps it to code. The body is logged, not returned to callers.
func responseError(logger *slog.Logger, provider string, code types.ErrorCode, op string, resp *http.Response) *types.AppError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	logger.Error("upstream API error",
		"provider", provider,
		"operation", op,
		"status_code", resp.StatusCode,
		"response_body", string(body),
	)

	return types.NewAppErrorWithDetails(
		code,
		fmt.Sprintf("%s %s returned %d", provider, op, resp.StatusCode),
		fmt.Errorf("%s %s: %d: %s", provider, op, resp.StatusCode, body),
		map[string]any{"status_code": resp.StatusCode},
	)
}

// wrapError prefixes the message of an AppError from BaseClient with the
// operation, keeping its code. Other errors get code.
func wrapError(provider string, code types.ErrorCode, op string, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return types.NewAppError(appErr.Code, fmt.Sprintf("%s %s: %s", provider, op, appErr.Message), appErr.Err)
	}
	return types.NewAppError(code, fmt.Sprintf("%s %s failed", provider, op), err)
}
