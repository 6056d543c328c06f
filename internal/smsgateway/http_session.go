package smsgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/core_sms/domain"
)

const defaultProbeTimeout = 5 * time.Second

// HTTPSession talks JSON over HTTP to the gateway. Activity is tracked with a
// health probe: a failed transport call marks the session down until a
// Restart probe succeeds.
type HTTPSession struct {
	logger       *slog.Logger
	httpClient   *http.Client
	sendURL      string
	healthURL    string
	apiKey       string
	probeTimeout time.Duration

	active     atomic.Bool
	restarting atomic.Bool
}

// NewHTTPSession builds a session. healthPath is resolved against sendURL.
// The session starts inactive; call Connect or Restart.
func NewHTTPSession(logger *slog.Logger, sendURL, healthPath, apiKey string, httpClient *http.Client) (*HTTPSession, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	base, err := url.Parse(sendURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	health, err := base.Parse(healthPath)
	if err != nil {
		return nil, fmt.Errorf("parse gateway health path: %w", err)
	}
	s := &HTTPSession{
		logger:       logger.With("component", "http_session"),
		httpClient:   httpClient,
		sendURL:      sendURL,
		healthURL:    health.String(),
		apiKey:       apiKey,
		probeTimeout: defaultProbeTimeout,
	}
	s.setActive(false)
	return s, nil
}

type httpSendRequestBody struct {
	CorrelationID string `json:"correlation_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Body          string `json:"body"`
}

type httpSendResponseBody struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (s *HTTPSession) Name() string { return "http" }

func (s *HTTPSession) IsActive() bool { return s.active.Load() }

// Connect probes the gateway synchronously.
func (s *HTTPSession) Connect(ctx context.Context) error {
	if err := s.probe(ctx); err != nil {
		s.setActive(false)
		return err
	}
	s.setActive(true)
	return nil
}

// Restart probes the gateway in a background goroutine. Calls made while a
// probe is running are coalesced into it.
func (s *HTTPSession) Restart() {
	if !s.restarting.CompareAndSwap(false, true) {
		s.logger.Debug("Gateway restart already in progress")
		return
	}
	go func() {
		defer s.restarting.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), s.probeTimeout)
		defer cancel()
		if err := s.Connect(ctx); err != nil {
			s.logger.Warn("Gateway restart failed", "error", err)
			return
		}
		s.logger.Info("Gateway session restarted")
	}()
}

func (s *HTTPSession) probe(ctx context.Context) error {
	timer := prometheus.NewTimer(gatewayRequestDurationHist.WithLabelValues(s.Name(), "health"))
	defer timer.ObserveDuration()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.healthURL, nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	s.authorize(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway health probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// Send posts one message. A non-2xx answer yields an empty ExternalID and an
// error wrapping domain.ErrGatewayRejected.
func (s *HTTPSession) Send(ctx context.Context, sr SendRequest) (*SendResponse, error) {
	timer := prometheus.NewTimer(gatewayRequestDurationHist.WithLabelValues(s.Name(), "send"))
	defer timer.ObserveDuration()

	if !s.IsActive() {
		return &SendResponse{}, domain.ErrSessionInactive
	}

	payload, err := json.Marshal(httpSendRequestBody{
		CorrelationID: sr.CorrelationID.String(),
		From:          sr.SourceAddress,
		To:            sr.DestinationAddress,
		Body:          sr.Body,
	})
	if err != nil {
		return &SendResponse{}, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendURL, bytes.NewReader(payload))
	if err != nil {
		return &SendResponse{}, fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.setActive(false)
		s.logger.ErrorContext(ctx, "Gateway send failed, session marked inactive", "correlation_id", sr.CorrelationID, "error", err)
		return &SendResponse{}, fmt.Errorf("send to gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SendResponse{GatewayStatus: fmt.Sprintf("HTTP_%d", resp.StatusCode)}, fmt.Errorf("read gateway response: %w", err)
	}

	var body httpSendResponseBody
	parseErr := json.Unmarshal(raw, &body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := body.Error
		if parseErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		s.logger.WarnContext(ctx, "Gateway rejected message", "correlation_id", sr.CorrelationID, "status_code", resp.StatusCode, "error", msg)
		return &SendResponse{GatewayStatus: fmt.Sprintf("HTTP_%d", resp.StatusCode)},
			fmt.Errorf("%w: status %d: %s", domain.ErrGatewayRejected, resp.StatusCode, msg)
	}
	if parseErr != nil {
		s.logger.WarnContext(ctx, "Gateway accepted request but response was unparsable", "correlation_id", sr.CorrelationID, "error", parseErr)
		return &SendResponse{GatewayStatus: fmt.Sprintf("HTTP_%d_UNPARSED", resp.StatusCode)}, nil
	}

	s.logger.DebugContext(ctx, "Gateway accepted message", "correlation_id", sr.CorrelationID, "external_id", body.MessageID)
	return &SendResponse{ExternalID: body.MessageID, GatewayStatus: body.Status}, nil
}

func (s *HTTPSession) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

func (s *HTTPSession) setActive(v bool) {
	s.active.Store(v)
	if v {
		gatewaySessionActiveGauge.WithLabelValues(s.Name()).Set(1)
	} else {
		gatewaySessionActiveGauge.WithLabelValues(s.Name()).Set(0)
	}
}
