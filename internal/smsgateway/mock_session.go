package smsgateway

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// MockSession accepts every message with a generated external id unless
// FailSend is set. Restart reactivates it immediately.
type MockSession struct {
	logger   *slog.Logger
	FailSend bool

	active   atomic.Bool
	restarts atomic.Int64
}

func NewMockSession(logger *slog.Logger, failSend bool) *MockSession {
	s := &MockSession{logger: logger.With("component", "mock_session"), FailSend: failSend}
	s.active.Store(true)
	return s
}

func (s *MockSession) Name() string { return "mock" }

func (s *MockSession) IsActive() bool { return s.active.Load() }

// SetActive forces the session state.
func (s *MockSession) SetActive(v bool) { s.active.Store(v) }

func (s *MockSession) Restart() {
	n := s.restarts.Add(1)
	s.active.Store(true)
	s.logger.Info("Mock session restarted", "restarts", n)
}

func (s *MockSession) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	if err := ctx.Err(); err != nil {
		return &SendResponse{}, err
	}
	if s.FailSend {
		s.logger.WarnContext(ctx, "Mock session simulated send failure", "correlation_id", req.CorrelationID)
		return &SendResponse{GatewayStatus: "FAILED_MOCK"}, nil
	}
	externalID := "mock-" + uuid.NewString()
	s.logger.DebugContext(ctx, "Mock session accepted message", "correlation_id", req.CorrelationID, "external_id", externalID)
	return &SendResponse{ExternalID: externalID, GatewayStatus: "SENT_MOCK_OK"}, nil
}
