package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/core_sms/domain"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/repository"
)

// OutboundMessageRepository keeps messages in insertion order.
// Callers always receive copies.
type OutboundMessageRepository struct {
	mu       sync.RWMutex
	order    []uuid.UUID
	messages map[uuid.UUID]*domain.OutboundMessage
}

var _ repository.OutboundMessageRepository = (*OutboundMessageRepository)(nil)

func NewOutboundMessageRepository() *OutboundMessageRepository {
	return &OutboundMessageRepository{messages: make(map[uuid.UUID]*domain.OutboundMessage)}
}

func (r *OutboundMessageRepository) Create(ctx context.Context, msg *domain.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.messages[msg.ID]; exists {
		return fmt.Errorf("outbound message %s already exists", msg.ID)
	}
	if err := r.checkExternalIDLocked(msg); err != nil {
		return err
	}
	r.order = append(r.order, msg.ID)
	r.messages[msg.ID] = copyMessage(msg)
	return nil
}

func (r *OutboundMessageRepository) FindPending(ctx context.Context, limit int) ([]*domain.OutboundMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.OutboundMessage
	for _, id := range r.order {
		if len(out) >= limit {
			break
		}
		if m := r.messages[id]; m.DeliveryStatus == domain.MessageStatusPending {
			out = append(out, copyMessage(m))
		}
	}
	return out, nil
}

func (r *OutboundMessageRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.OutboundMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if m := r.messages[id]; m.ExternalID != nil && *m.ExternalID == externalID {
			return copyMessage(m), nil
		}
	}
	return nil, domain.ErrOutboundMessageNotFound
}

func (r *OutboundMessageRepository) Save(ctx context.Context, msg *domain.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.messages[msg.ID]; !exists {
		return domain.ErrOutboundMessageNotFound
	}
	if err := r.checkExternalIDLocked(msg); err != nil {
		return err
	}
	r.messages[msg.ID] = copyMessage(msg)
	return nil
}

// Get returns a copy of the stored message.
func (r *OutboundMessageRepository) Get(id uuid.UUID) (*domain.OutboundMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, false
	}
	return copyMessage(m), true
}

// CountByStatus is a test and debugging helper.
func (r *OutboundMessageRepository) CountByStatus(status domain.MessageStatus) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.messages {
		if m.DeliveryStatus == status {
			n++
		}
	}
	return n
}

// external_id is unique in the postgres schema as well
func (r *OutboundMessageRepository) checkExternalIDLocked(msg *domain.OutboundMessage) error {
	if msg.ExternalID == nil {
		return nil
	}
	for id, m := range r.messages {
		if id != msg.ID && m.ExternalID != nil && *m.ExternalID == *msg.ExternalID {
			return fmt.Errorf("external id %q already used by message %s", *msg.ExternalID, id)
		}
	}
	return nil
}

func copyMessage(m *domain.OutboundMessage) *domain.OutboundMessage {
	c := *m
	if m.ExternalID != nil {
		v := *m.ExternalID
		c.ExternalID = &v
	}
	if m.SubmittedAt != nil {
		v := *m.SubmittedAt
		c.SubmittedAt = &v
	}
	if m.DeliveredAt != nil {
		v := *m.DeliveredAt
		c.DeliveredAt = &v
	}
	return &c
}
