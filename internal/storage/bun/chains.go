package bunrepo

import (
	"context"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FallbackChainRepository struct {
	base baseRepository[domain.FallbackChain]
}

var _ store.FallbackChainRepository = (*FallbackChainRepository)(nil)

func NewFallbackChainRepository(db *bun.DB) *FallbackChainRepository {
	handlers := repository.ModelHandlers[*domain.FallbackChain]{
		NewRecord:          func() *domain.FallbackChain { return &domain.FallbackChain{} },
		GetID:              func(c *domain.FallbackChain) uuid.UUID { return c.ID },
		SetID:              func(c *domain.FallbackChain, id uuid.UUID) { c.ID = id },
		GetIdentifier:      func() string { return "id" },
		GetIdentifierValue: func(c *domain.FallbackChain) string { return c.ID.String() },
	}
	return &FallbackChainRepository{
		base: newBaseRepository[domain.FallbackChain](db, handlers, func(c *domain.FallbackChain) *domain.RecordMeta { return &c.RecordMeta }),
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
	record, err := r.base.repo.Get(ctx, withTenant(tenantID), withoutDeleted(), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("provider = ?", provider).Where("environment = ?", env)
	})
	if err != nil {
		return nil, mapError(err)
	}
	return record, nil
}
