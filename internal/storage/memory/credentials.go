package memory

import (
	"context"
	"sort"
	"time"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/google/uuid"
)

type CredentialRepository struct {
	base baseMemoryRepo[domain.Credential]
}

var _ store.CredentialRepository = (*CredentialRepository)(nil)

func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{
		base: newBaseMemoryRepo("credential", func(c *domain.Credential) *domain.RecordMeta { return &c.RecordMeta }),
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
	var found *domain.Credential
	r.base.each(func(cred domain.Credential) bool {
		if cred.TenantID == tenantID && cred.PlaintextHash == plaintextHash {
			found = &cred
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

func (r *CredentialRepository) ListByTenant(ctx context.Context, tenantID string, opts store.ListOptions) (store.ListResult[domain.Credential], error) {
	result, err := r.base.list(ctx, opts)
	if err != nil {
		return store.ListResult[domain.Credential]{}, err
	}
	items := make([]domain.Credential, 0)
	for _, cred := range result.Items {
		if cred.TenantID == tenantID {
			items = append(items, cred)
		}
	}
	return store.ListResult[domain.Credential]{Items: items, Total: len(items)}, nil
}

func (r *CredentialRepository) ListActive(ctx context.Context, tenantID, provider string, env domain.Environment) ([]domain.Credential, error) {
	now := time.Now().UTC()
	items := make([]domain.Credential, 0)
	r.base.each(func(cred domain.Credential) bool {
		if cred.TenantID == tenantID && cred.Provider == provider && cred.Environment == env && cred.Usable(now) {
			items = append(items, cred)
		}
		return true
	})
	sort.Slice(items, func(i, j int) bool {
		if items[i].HealthScore != items[j].HealthScore {
			return items[i].HealthScore > items[j].HealthScore
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (r *CredentialRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expectedUpdatedAt time.Time, update store.StatusUpdate) error {
	r.base.mu.Lock()
	defer r.base.mu.Unlock()

	cred, ok := r.base.records[id]
	if !ok || !cred.DeletedAt.IsZero() {
		return store.ErrNotFound
	}
	if !expectedUpdatedAt.IsZero() && !cred.UpdatedAt.Equal(expectedUpdatedAt) {
		return store.ErrConflict
	}
	cred.Status = update.Status
	cred.HealthScore = update.HealthScore
	cred.LastError = update.LastError
	if !update.ValidatedAt.IsZero() {
		cred.LastValidatedAt = update.ValidatedAt
	}
	cred.UpdatedAt = time.Now().UTC()
	r.base.records[id] = cred
	return nil
}

func (r *CredentialRepository) HardDelete(ctx context.Context, id uuid.UUID) error {
	return r.base.hardDelete(ctx, id)
}
