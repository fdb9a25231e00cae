package types

import (
	"context"
	"log/slog"
)

// Logger defines the structured logging interface used by workers and
// request-scoped code paths.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// SlogAdapter wraps *slog.Logger to implement Logger. slog.Logger already has
// Info/Error/Warn but its With returns *slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns a Logger backed by l (slog.Default when nil).
func NewSlogAdapter(l *slog.Logger) *SlogAdapter {
	if l == nil {
		l = slog.Default()
	}
	return &SlogAdapter{logger: l}
}

func (a *SlogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{logger: a.logger.With(args...)}
}

// SMSSender is the notification transport collaborator. It accepts a rendered
// alert and a destination and returns an opaque delivery identifier.
type SMSSender interface {
	Send(ctx context.Context, to, body string) (string, error)
	Available() bool
}
