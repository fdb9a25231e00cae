package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// StubSMSSender implements types.SMSSender by logging messages instead of
// delivering them. Used by local runs of the alert worker.
type StubSMSSender struct {
	logger *slog.Logger
	seq    atomic.Int64
}

// NewStubSMSSender creates a new StubSMSSender.
func NewStubSMSSender(logger *slog.Logger) *StubSMSSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubSMSSender{logger: logger}
}

func (s *StubSMSSender) Send(ctx context.Context, to, body string) (string, error) {
	n := s.seq.Add(1)
	s.logger.InfoContext(ctx, "stub: SMS send called",
		"to", to,
		"length", len([]rune(body)),
		"body", body,
	)
	return fmt.Sprintf("SMstub%06d", n), nil
}

func (s *StubSMSSender) Available() bool { return true }
