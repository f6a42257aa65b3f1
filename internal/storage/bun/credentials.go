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

type CredentialRepository struct {
	base baseRepository[domain.Credential]
}

var _ store.CredentialRepository = (*CredentialRepository)(nil)

func NewCredentialRepository(db *bun.DB) *CredentialRepository {
	handlers := repository.ModelHandlers[*domain.Credential]{
		NewRecord:          func() *domain.Credential { return &domain.Credential{} },
		GetID:              func(c *domain.Credential) uuid.UUID { return c.ID },
		SetID:              func(c *domain.Credential, id uuid.UUID) { c.ID = id },
		GetIdentifier:      func() string { return "id" },
		GetIdentifierValue: func(c *domain.Credential) string { return c.ID.String() },
	}
	return &CredentialRepository{
		base: newBaseRepository[domain.Credential](db, handlers, func(c *domain.Credential) *domain.RecordMeta { return &c.RecordMeta }),
	}
}

func (r *CredentialRepository) Create(ctx context.Context, cred *domain.Credential) error {
	if cred.Status == "" {
		cred.Status = domain.StatusActive
	}
	return r.base.create(ctx, cred)
}

func (r *CredentialRepository) Update(ctx context.Context, cred *domain.Credential) error {
	return r.base.update(ctx, cred)
}

func (r *CredentialRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	return r.base.getByID(ctx, id, false)
}

func (r *CredentialRepository) List(ctx context.Context, opts store.ListOptions) (store.ListResult[domain.Credential], error) {
	return r.base.list(ctx, opts)
}

func (r *CredentialRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.base.softDelete(ctx, id)
}

func (r *CredentialRepository) GetByTenantHash(ctx context.Context, tenantID, plaintextHash string) (*domain.Credential, error) {
	record, err := r.base.repo.Get(ctx, withTenant(tenantID), withoutDeleted(), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("plaintext_hash = ?", plaintextHash)
	})
	if err != nil {
		return nil, mapError(err)
	}
	return record, nil
}

func (r *CredentialRepository) ListByTenant(ctx context.Context, tenantID string, opts store.ListOptions) (store.ListResult[domain.Credential], error) {
	records, total, err := r.base.repo.List(ctx, withTenant(tenantID), withListOptions(opts))
	if err != nil {
		return store.ListResult[domain.Credential]{}, mapError(err)
	}
	items := make([]domain.Credential, len(records))
	for i, rec := range records {
		items[i] = *rec
	}
	return store.ListResult[domain.Credential]{Items: items, Total: total}, nil
}

func (r *CredentialRepository) ListActive(ctx context.Context, tenantID, provider string, env domain.Environment) ([]domain.Credential, error) {
	now := time.Now().UTC()
	records, _, err := r.base.repo.List(ctx, withTenant(tenantID), withoutDeleted(), func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("provider = ?", provider).
			Where("environment = ?", env).
			Where("status = ?", domain.StatusActive).
			Where("expires_at IS NULL OR expires_at > ?", now).
			OrderExpr("health_score DESC, created_at ASC")
	})
	if err != nil {
		return nil, mapError(err)
	}
	items := make([]domain.Credential, len(records))
	for i, rec := range records {
		items[i] = *rec
	}
	return items, nil
}

// UpdateStatus is a guarded read-modify-write: the row is only touched when
// updated_at still matches what the caller read, otherwise ErrConflict.
func (r *CredentialRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expectedUpdatedAt time.Time, update store.StatusUpdate) error {
	query := r.base.db.NewUpdate().
		Model((*domain.Credential)(nil)).
		Set("status = ?", update.Status).
		Set("health_score = ?", update.HealthScore).
		Set("last_error = ?", update.LastError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("deleted_at IS NULL")
	if !update.ValidatedAt.IsZero() {
		query = query.Set("last_validated_at = ?", update.ValidatedAt)
	}
	if !expectedUpdatedAt.IsZero() {
		query = query.Where("updated_at = ?", expectedUpdatedAt)
	}

	res, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return store.ErrConflict
	}
	return nil
}

func (r *CredentialRepository) HardDelete(ctx context.Context, id uuid.UUID) error {
	res, err := r.base.db.NewDelete().
		Model((*domain.Credential)(nil)).
		Where("id = ?", id).
		ForceDelete().
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
