package bunrepo

import (
	"context"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ValidationResultRepository struct {
	base baseRepository[domain.ValidationResult]
}

var _ store.ValidationResultRepository = (*ValidationResultRepository)(nil)

func NewValidationResultRepository(db *bun.DB) *ValidationResultRepository {
	handlers := repository.ModelHandlers[*domain.ValidationResult]{
		NewRecord:          func() *domain.ValidationResult { return &domain.ValidationResult{} },
		GetID:              func(v *domain.ValidationResult) uuid.UUID { return v.ID },
		SetID:              func(v *domain.ValidationResult, id uuid.UUID) { v.ID = id },
		GetIdentifier:      func() string { return "id" },
		GetIdentifierValue: func(v *domain.ValidationResult) string { return v.ID.String() },
	}
	return &ValidationResultRepository{
		base: newBaseRepository[domain.ValidationResult](db, handlers, func(v *domain.ValidationResult) *domain.RecordMeta { return &v.RecordMeta }),
	}
}

func (r *ValidationResultRepository) Create(ctx context.Context, result *domain.ValidationResult) error {
	return r.base.create(ctx, result)
}

// Update is unsupported: validation results are append-only.
func (r *ValidationResultRepository) Update(ctx context.Context, result *domain.ValidationResult) error {
	return store.ErrConflict
}

func (r *ValidationResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ValidationResult, error) {
	return r.base.getByID(ctx, id, false)
}

func (r *ValidationResultRepository) List(ctx context.Context, opts store.ListOptions) (store.ListResult[domain.ValidationResult], error) {
	return r.base.list(ctx, opts)
}

func (r *ValidationResultRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.base.softDelete(ctx, id)
}

func (r *ValidationResultRepository) ListByCredential(ctx context.Context, credentialID uuid.UUID, opts store.ListOptions) (store.ListResult[domain.ValidationResult], error) {
	records, total, err := r.base.repo.List(ctx, withListOptions(opts), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("credential_id = ?", credentialID)
	})
	if err != nil {
		return store.ListResult[domain.ValidationResult]{}, mapError(err)
	}
	items := make([]domain.ValidationResult, len(records))
	for i, rec := range records {
		items[i] = *rec
	}
	return store.ListResult[domain.ValidationResult]{Items: items, Total: total}, nil
}
