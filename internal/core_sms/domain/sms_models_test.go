package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want MessageStatus
	}{
		{"DELIVERED", MessageStatusDelivered},
		{"delivered", MessageStatusDelivered},
		{" DELIVRD ", MessageStatusDelivered},
		{"UNDELIV", MessageStatusUndeliverable},
		{"REJECTD", MessageStatusRejected},
		{"EXPIRED", MessageStatusExpired},
		{"garbage", MessageStatusUnknown},
		{"pending", MessageStatusUnknown},
		{"SENT", MessageStatusUnknown},
		{"FAILED", MessageStatusFailed},
		{"", MessageStatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMessageStatus(tt.raw))
		})
	}
}

func TestMessageStatus_Scan(t *testing.T) {
	var s MessageStatus
	require.NoError(t, s.Scan("SENT"))
	assert.Equal(t, MessageStatusSent, s)

	require.NoError(t, s.Scan([]byte("FAILED")))
	assert.Equal(t, MessageStatusFailed, s)

	assert.Error(t, s.Scan("sent_to_provider"))
	assert.Error(t, s.Scan(42))
}

func TestOutboundMessage_MarkSubmitted(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("AcceptedBecomesSent", func(t *testing.T) {
		m := NewPendingMessage("MIFOS", "+254700000001", "hello", now)
		m.MarkSubmitted("X123", now)

		assert.Equal(t, MessageStatusSent, m.DeliveryStatus)
		require.NotNil(t, m.ExternalID)
		assert.Equal(t, "X123", *m.ExternalID)
		require.NotNil(t, m.SubmittedAt)
		assert.Equal(t, now, *m.SubmittedAt)
		assert.Nil(t, m.DeliveredAt)
	})

	t.Run("NoExternalIDBecomesFailed", func(t *testing.T) {
		m := NewPendingMessage("MIFOS", "+254700000001", "hello", now)
		m.MarkSubmitted("", now)

		assert.Equal(t, MessageStatusFailed, m.DeliveryStatus)
		assert.Nil(t, m.ExternalID)
		require.NotNil(t, m.SubmittedAt)
	})
}

func TestOutboundMessage_ApplyDeliveryReport(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	done := now.Add(-time.Minute)

	t.Run("DeliveredSetsDeliveredAt", func(t *testing.T) {
		m := NewPendingMessage("MIFOS", "+254700000001", "hello", now)
		m.MarkSubmitted("X123", now)

		require.NoError(t, m.ApplyDeliveryReport(NewDeliveryReport("X123", MessageStatusDelivered, &done, now), now))
		assert.Equal(t, MessageStatusDelivered, m.DeliveryStatus)
		require.NotNil(t, m.DeliveredAt)
		assert.Equal(t, done, *m.DeliveredAt)
	})

	t.Run("DeliveredWithoutCompletionUsesNow", func(t *testing.T) {
		m := NewPendingMessage("MIFOS", "+254700000001", "hello", now)
		require.NoError(t, m.ApplyDeliveryReport(NewDeliveryReport("X123", MessageStatusDelivered, nil, now), now))
		require.NotNil(t, m.DeliveredAt)
		assert.Equal(t, now, *m.DeliveredAt)
	})

	t.Run("OtherStatusLeavesDeliveredAtUnset", func(t *testing.T) {
		m := NewPendingMessage("MIFOS", "+254700000001", "hello", now)
		require.NoError(t, m.ApplyDeliveryReport(NewDeliveryReport("X123", MessageStatusUndeliverable, &done, now), now))
		assert.Equal(t, MessageStatusUndeliverable, m.DeliveryStatus)
		assert.Nil(t, m.DeliveredAt)
	})

	t.Run("PendingReportRefused", func(t *testing.T) {
		m := NewPendingMessage("MIFOS", "+254700000001", "hello", now)
		m.MarkSubmitted("X123", now)

		err := m.ApplyDeliveryReport(NewDeliveryReport("X123", MessageStatusPending, nil, now), now.Add(time.Minute))
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
		assert.Equal(t, MessageStatusSent, m.DeliveryStatus)
		require.NotNil(t, m.ExternalID)
		assert.Equal(t, "X123", *m.ExternalID)
		assert.Equal(t, now, m.UpdatedAt)
	})
}

func TestProcessedDeliveryReportSubject(t *testing.T) {
	assert.Equal(t, "dlr.processed.v1.DELIVERED", ProcessedDeliveryReportSubject(MessageStatusDelivered))
}
