package memory

import (
	"context"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/google/uuid"
)

type TenantRepository struct {
	base baseMemoryRepo[domain.Tenant]
}

var _ store.TenantRepository = (*TenantRepository)(nil)

func NewTenantRepository() *TenantRepository {
	return &TenantRepository{
		base: newBaseMemoryRepo("tenant", func(t *domain.Tenant) *domain.RecordMeta { return &t.RecordMeta }),
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
	var found *domain.Tenant
	r.base.each(func(tenant domain.Tenant) bool {
		if tenant.TenantID == tenantID {
			found = &tenant
			return false
		}
		return true
	})
	if found == nil {
		return nil, store.ErrNotFound
	}
	copied := *found
	return &copied, nil
}
