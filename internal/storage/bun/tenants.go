package bunrepo

import (
	"context"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type TenantRepository struct {
	base baseRepository[domain.Tenant]
}

var _ store.TenantRepository = (*TenantRepository)(nil)

func NewTenantRepository(db *bun.DB) *TenantRepository {
	handlers := repository.ModelHandlers[*domain.Tenant]{
		NewRecord:          func() *domain.Tenant { return &domain.Tenant{} },
		GetID:              func(t *domain.Tenant) uuid.UUID { return t.ID },
		SetID:              func(t *domain.Tenant, id uuid.UUID) { t.ID = id },
		GetIdentifier:      func() string { return "id" },
		GetIdentifierValue: func(t *domain.Tenant) string { return t.ID.String() },
	}
	return &TenantRepository{
		base: newBaseRepository[domain.Tenant](db, handlers, func(t *domain.Tenant) *domain.RecordMeta { return &t.RecordMeta }),
	}
}

func (r *TenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	return r.base.create(ctx, tenant)
}

func (r *TenantRepository) Update(ctx context.Context, tenant *domain.Tenant) error {
	return r.base.update(ctx, tenant)
}

func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	return r.base.getByID(ctx, id, false)
}

func (r *TenantRepository) List(ctx context.Context, opts store.ListOptions) (store.ListResult[domain.Tenant], error) {
	return r.base.list(ctx, opts)
}

func (r *TenantRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.base.softDelete(ctx, id)
}

func (r *TenantRepository) GetByTenantID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	record, err := r.base.repo.Get(ctx, withoutDeleted(), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("tenant_id = ?", tenantID)
	})
	if err != nil {
		return nil, mapError(err)
	}
	return record, nil
}
