package bunrepo

import (
	"context"
	"time"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AuditEventRepository struct {
	base baseRepository[domain.AuditEvent]
}

var _ store.AuditEventRepository = (*AuditEventRepository)(nil)

func NewAuditEventRepository(db *bun.DB) *AuditEventRepository {
	handlers := repository.ModelHandlers[*domain.AuditEvent]{
		NewRecord:          func() *domain.AuditEvent { return &domain.AuditEvent{} },
		GetID:              func(e *domain.AuditEvent) uuid.UUID { return e.ID },
		SetID:              func(e *domain.AuditEvent, id uuid.UUID) { e.ID = id },
		GetIdentifier:      func() string { return "id" },
		GetIdentifierValue: func(e *domain.AuditEvent) string { return e.ID.String() },
	}
	return &AuditEventRepository{
		base: newBaseRepository[domain.AuditEvent](db, handlers, func(e *domain.AuditEvent) *domain.RecordMeta { return &e.RecordMeta }),
	}
}

func (r *AuditEventRepository) Create(ctx context.Context, evt *domain.AuditEvent) error {
	return r.base.create(ctx, evt)
}

// Update is unsupported: audit events are immutable once written.
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
	records, total, err := r.base.repo.List(ctx, withTenant(tenantID), withListOptions(opts))
	if err != nil {
		return store.ListResult[domain.AuditEvent]{}, mapError(err)
	}
	items := make([]domain.AuditEvent, len(records))
	for i, rec := range records {
		items[i] = *rec
	}
	return store.ListResult[domain.AuditEvent]{Items: items, Total: total}, nil
}

func (r *AuditEventRepository) ListByCredential(ctx context.Context, credentialID uuid.UUID, opts store.ListOptions) (store.ListResult[domain.AuditEvent], error) {
	records, total, err := r.base.repo.List(ctx, withListOptions(opts), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("credential_id = ?", credentialID)
	})
	if err != nil {
		return store.ListResult[domain.AuditEvent]{}, mapError(err)
	}
	items := make([]domain.AuditEvent, len(records))
	for i, rec := range records {
		items[i] = *rec
	}
	return store.ListResult[domain.AuditEvent]{Items: items, Total: total}, nil
}

func (r *AuditEventRepository) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.base.db.NewDelete().
		Model((*domain.AuditEvent)(nil)).
		Where("created_at < ?", olderThan).
		ForceDelete().
		Exec(ctx)
	if err != nil {
		return 0, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
