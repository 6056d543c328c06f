package smsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/core_sms/domain"
)

func newTestSession(t *testing.T, server *httptest.Server) *HTTPSession {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewHTTPSession(logger, server.URL+"/api/v1/messages", "/health", "test-api-key", server.Client())
	require.NoError(t, err)
	return s
}

func TestHTTPSession_Send_Success(t *testing.T) {
	correlationID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/messages":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body httpSendRequestBody
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, correlationID.String(), body.CorrelationID)
			assert.Equal(t, "MIFOS", body.From)
			assert.Equal(t, "+254700000001", body.To)
			assert.Equal(t, "Hello", body.Body)

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(httpSendResponseBody{MessageID: "X123", Status: "ACCEPTED"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	s := newTestSession(t, server)
	require.NoError(t, s.Connect(context.Background()))
	require.True(t, s.IsActive())

	resp, err := s.Send(context.Background(), SendRequest{
		CorrelationID:      correlationID,
		SourceAddress:      "MIFOS",
		DestinationAddress: "+254700000001",
		Body:               "Hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "X123", resp.ExternalID)
	assert.Equal(t, "ACCEPTED", resp.GatewayStatus)
}

func TestHTTPSession_Send_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(httpSendResponseBody{Error: "invalid destination"})
	}))
	defer server.Close()

	s := newTestSession(t, server)
	require.NoError(t, s.Connect(context.Background()))

	resp, err := s.Send(context.Background(), SendRequest{CorrelationID: uuid.New(), DestinationAddress: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGatewayRejected))
	assert.Empty(t, resp.ExternalID)
	assert.Equal(t, "HTTP_400", resp.GatewayStatus)
	assert.True(t, s.IsActive(), "a rejection is not a transport failure")
}

func TestHTTPSession_Send_Inactive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer server.Close()

	s := newTestSession(t, server)
	resp, err := s.Send(context.Background(), SendRequest{CorrelationID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrSessionInactive)
	assert.Empty(t, resp.ExternalID)
}

func TestHTTPSession_TransportErrorMarksInactive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	s := newTestSession(t, server)
	require.NoError(t, s.Connect(context.Background()))
	server.Close()

	resp, err := s.Send(context.Background(), SendRequest{CorrelationID: uuid.New()})
	require.Error(t, err)
	assert.Empty(t, resp.ExternalID)
	assert.False(t, s.IsActive())
}

func TestHTTPSession_Restart(t *testing.T) {
	var healthy atomic.Bool
	var probes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := newTestSession(t, server)
	require.Error(t, s.Connect(context.Background()))
	assert.False(t, s.IsActive())

	healthy.Store(true)
	s.Restart()
	assert.Eventually(t, s.IsActive, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return !s.restarting.Load() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), probes.Load())
}

func TestMockSession(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewMockSession(logger, false)
	assert.True(t, s.IsActive())
	resp, err := s.Send(context.Background(), SendRequest{CorrelationID: uuid.New()})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ExternalID)

	s.SetActive(false)
	s.Restart()
	assert.True(t, s.IsActive())
	assert.Equal(t, int64(1), s.restarts.Load())

	failing := NewMockSession(logger, true)
	resp, err = failing.Send(context.Background(), SendRequest{CorrelationID: uuid.New()})
	require.NoError(t, err)
	assert.Empty(t, resp.ExternalID)
}
