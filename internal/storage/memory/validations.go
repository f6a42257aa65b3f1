package memory

import (
	"context"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/google/uuid"
)

type ValidationResultRepository struct {
	base baseMemoryRepo[domain.ValidationResult]
}

var _ store.ValidationResultRepository = (*ValidationResultRepository)(nil)

func NewValidationResultRepository() *ValidationResultRepository {
	return &ValidationResultRepository{
		base: newBaseMemoryRepo("validation_result", func(v *domain.ValidationResult) *domain.RecordMeta { return &v.RecordMeta }),
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
	result, err := r.base.list(ctx, opts)
	if err != nil {
		return store.ListResult[domain.ValidationResult]{}, err
	}
	items := make([]domain.ValidationResult, 0)
	for _, row := range result.Items {
		if row.CredentialID == credentialID {
			items = append(items, row)
		}
	}
	return store.ListResult[domain.ValidationResult]{Items: items, Total: len(items)}, nil
}
