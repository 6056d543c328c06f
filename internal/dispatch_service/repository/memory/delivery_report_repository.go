package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/core_sms/domain"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/repository"
)

// DeliveryReportRepository is a FIFO report queue.
type DeliveryReportRepository struct {
	mu      sync.RWMutex
	reports []*domain.DeliveryReport
}

var _ repository.DeliveryReportRepository = (*DeliveryReportRepository)(nil)

func NewDeliveryReportRepository() *DeliveryReportRepository {
	return &DeliveryReportRepository{}
}

func (r *DeliveryReportRepository) Enqueue(ctx context.Context, report *domain.DeliveryReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reports {
		if existing.ID == report.ID {
			return fmt.Errorf("delivery report %s already queued", report.ID)
		}
	}
	r.reports = append(r.reports, copyReport(report))
	return nil
}

func (r *DeliveryReportRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryReport, error) {
	return r.find(now, limit, false), nil
}

func (r *DeliveryReportRepository) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryReport, error) {
	return r.find(now, limit, true), nil
}

func (r *DeliveryReportRepository) find(now time.Time, limit int, retriesOnly bool) []*domain.DeliveryReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.DeliveryReport
	for _, rep := range r.reports {
		if len(out) >= limit {
			break
		}
		if rep.NextAttemptAt.After(now) {
			continue
		}
		if retriesOnly && rep.Attempts == 0 {
			continue
		}
		out = append(out, copyReport(rep))
	}
	return out
}

func (r *DeliveryReportRepository) Defer(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.reports {
		if rep.ID == id {
			rep.Attempts = attempts
			rep.NextAttemptAt = nextAttemptAt
			return nil
		}
	}
	return domain.ErrDeliveryReportNotFound
}

func (r *DeliveryReportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rep := range r.reports {
		if rep.ID == id {
			r.reports = append(r.reports[:i], r.reports[i+1:]...)
			return nil
		}
	}
	return domain.ErrDeliveryReportNotFound
}

// Len returns the number of queued reports.
func (r *DeliveryReportRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reports)
}

// Get returns a copy of a queued report.
func (r *DeliveryReportRepository) Get(id uuid.UUID) (*domain.DeliveryReport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rep := range r.reports {
		if rep.ID == id {
			return copyReport(rep), true
		}
	}
	return nil, false
}

func copyReport(rep *domain.DeliveryReport) *domain.DeliveryReport {
	c := *rep
	if rep.CompletedAt != nil {
		v := *rep.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}
