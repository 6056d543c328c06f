package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/core_sms/domain"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/repository"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/smsgateway"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type MockSession struct {
	mock.Mock
}

func (m *MockSession) IsActive() bool { return m.Called().Bool(0) }
func (m *MockSession) Restart()       { m.Called() }
func (m *MockSession) Name() string   { return "mock" }
func (m *MockSession) Send(ctx context.Context, req smsgateway.SendRequest) (*smsgateway.SendResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*smsgateway.SendResponse)
	return resp, args.Error(1)
}

type MockOutboundMessageRepository struct {
	mock.Mock
}

func (m *MockOutboundMessageRepository) Create(ctx context.Context, msg *domain.OutboundMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockOutboundMessageRepository) FindPending(ctx context.Context, limit int) ([]*domain.OutboundMessage, error) {
	args := m.Called(ctx, limit)
	msgs, _ := args.Get(0).([]*domain.OutboundMessage)
	return msgs, args.Error(1)
}

func (m *MockOutboundMessageRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.OutboundMessage, error) {
	args := m.Called(ctx, externalID)
	msg, _ := args.Get(0).(*domain.OutboundMessage)
	return msg, args.Error(1)
}

func (m *MockOutboundMessageRepository) Save(ctx context.Context, msg *domain.OutboundMessage) error {
	return m.Called(ctx, msg).Error(0)
}

type MockDeliveryReportRepository struct {
	mock.Mock
}

func (m *MockDeliveryReportRepository) Enqueue(ctx context.Context, report *domain.DeliveryReport) error {
	return m.Called(ctx, report).Error(0)
}

func (m *MockDeliveryReportRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryReport, error) {
	args := m.Called(ctx, now, limit)
	reports, _ := args.Get(0).([]*domain.DeliveryReport)
	return reports, args.Error(1)
}

func (m *MockDeliveryReportRepository) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryReport, error) {
	args := m.Called(ctx, now, limit)
	reports, _ := args.Get(0).([]*domain.DeliveryReport)
	return reports, args.Error(1)
}

func (m *MockDeliveryReportRepository) Defer(ctx context.Context, id uuid.UUID, attempts int, next time.Time) error {
	return m.Called(ctx, id, attempts, next).Error(0)
}

func (m *MockDeliveryReportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return m.Called(ctx, subject, data).Error(0)
}

// --- Fakes ---

// countingSession is an always-active gateway that hands out sequential ids.
// onSend, when set, runs before each send returns.
type countingSession struct {
	sends    atomic.Int64
	restarts atomic.Int64
	reject   func(req smsgateway.SendRequest) bool
	onSend   func(n int64)
}

func (s *countingSession) IsActive() bool { return true }
func (s *countingSession) Restart()       { s.restarts.Add(1) }
func (s *countingSession) Name() string   { return "counting" }
func (s *countingSession) Send(ctx context.Context, req smsgateway.SendRequest) (*smsgateway.SendResponse, error) {
	n := s.sends.Add(1)
	if s.onSend != nil {
		s.onSend(n)
	}
	if s.reject != nil && s.reject(req) {
		return &smsgateway.SendResponse{}, nil
	}
	return &smsgateway.SendResponse{ExternalID: fmt.Sprintf("X%d", n)}, nil
}

// lookupCountingRepo counts FindByExternalID calls and can inject a lookup error.
type lookupCountingRepo struct {
	repository.OutboundMessageRepository
	lookups   int
	lookupErr error
	saveErr   error
}

func (r *lookupCountingRepo) FindByExternalID(ctx context.Context, externalID string) (*domain.OutboundMessage, error) {
	r.lookups++
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	return r.OutboundMessageRepository.FindByExternalID(ctx, externalID)
}

func (r *lookupCountingRepo) Save(ctx context.Context, msg *domain.OutboundMessage) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.OutboundMessageRepository.Save(ctx, msg)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
