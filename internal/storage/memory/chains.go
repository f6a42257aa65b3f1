package memory

import (
	"context"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/google/uuid"
)

type FallbackChainRepository struct {
	base baseMemoryRepo[domain.FallbackChain]
}

var _ store.FallbackChainRepository = (*FallbackChainRepository)(nil)

func NewFallbackChainRepository() *FallbackChainRepository {
	return &FallbackChainRepository{
		base: newBaseMemoryRepo("fallback_chain", func(c *domain.FallbackChain) *domain.RecordMeta { return &c.RecordMeta }),
	}
}

func (r *FallbackChainRepository) Create(ctx context.Context, chain *domain.FallbackChain) error {
	return r.base.create(ctx, chain)
}

func (r *FallbackChainRepository) Update(ctx context.Context, chain *domain.FallbackChain) error {
	return r.base.update(ctx, chain)
}

func (r *FallbackChainRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FallbackChain, error) {
	return r.base.getByID(ctx, id, false)
}

func (r *FallbackChainRepository) List(ctx context.Context, opts store.ListOptions) (store.ListResult[domain.FallbackChain], error) {
	return r.base.list(ctx, opts)
}

func (r *FallbackChainRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.base.softDelete(ctx, id)
}

func (r *FallbackChainRepository) GetByScope(ctx context.Context, tenantID, provider string, env domain.Environment) (*domain.FallbackChain, error) {
	var found *domain.FallbackChain
	r.base.each(func(chain domain.FallbackChain) bool {
		if chain.TenantID == tenantID && chain.Provider == provider && chain.Environment == env {
			found = &chain
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
