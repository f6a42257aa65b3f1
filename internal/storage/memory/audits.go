package memory

import (
	"context"
	"time"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/google/uuid"
)

type AuditEventRepository struct {
	base baseMemoryRepo[domain.AuditEvent]
}

var _ store.AuditEventRepository = (*AuditEventRepository)(nil)

func NewAuditEventRepository() *AuditEventRepository {
	return &AuditEventRepository{
		base: newBaseMemoryRepo("audit_event", func(e *domain.AuditEvent) *domain.RecordMeta { return &e.RecordMeta }),
	}
}

func (r *AuditEventRepository) Create(ctx context.Context, evt *domain.AuditEvent) error {
	return r.base.create(ctx, evt)
}

// Update is unsupported: audit events are immutable.
func (r *AuditEventRepository) Update(ctx context.Context, evt *domain.AuditEvent) error {
	return store.ErrConflict
}

func (r *AuditEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.AuditEvent, error) {
	return r.base.getByID(ctx, id, false)
}

func (r *AuditEventRepository) List(ctx context.Context, opts store.ListOptions) (store.ListResult[domain.AuditEvent], error) {
	return r.base.list(ctx, opts)
}

func (r *AuditEventRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.base.softDelete(ctx, id)
}

func (r *AuditEventRepository) ListByTenant(ctx context.Context, tenantID string, opts store.ListOptions) (store.ListResult[domain.AuditEvent], error) {
	result, err := r.base.list(ctx, opts)
	if err != nil {
		return store.ListResult[domain.AuditEvent]{}, err
	}
	items := make([]domain.AuditEvent, 0)
	for _, evt := range result.Items {
		if evt.TenantID == tenantID {
			items = append(items, evt)
		}
	}
	return store.ListResult[domain.AuditEvent]{Items: items, Total: len(items)}, nil
}

func (r *AuditEventRepository) ListByCredential(ctx context.Context, credentialID uuid.UUID, opts store.ListOptions) (store.ListResult[domain.AuditEvent], error) {
	result, err := r.base.list(ctx, opts)
	if err != nil {
		return store.ListResult[domain.AuditEvent]{}, err
	}
	items := make([]domain.AuditEvent, 0)
	for _, evt := range result.Items {
		if evt.CredentialID == credentialID {
			items = append(items, evt)
		}
	}
	return store.ListResult[domain.AuditEvent]{Items: items, Total: len(items)}, nil
}

func (r *AuditEventRepository) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	r.base.mu.Lock()
	defer r.base.mu.Unlock()

	purged := 0
	for id, evt := range r.base.records {
		if evt.CreatedAt.Before(olderThan) {
			delete(r.base.records, id)
			purged++
		}
	}
	return purged, nil
}
