package store

import (
	"context"
	"time"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/google/uuid"
)

// ListOptions capture pagination and filtering knobs common to repositories.
type ListOptions struct {
	Limit              int
	Offset             int
	Since              time.Time
	Until              time.Time
	IncludeSoftDeleted bool
}

// ListResult bundles records and totals.
type ListResult[T any] struct {
	Items []T
	Total int
}

// Repository defines base CRUD helpers reused by entity-specific interfaces.
type Repository[T any] interface {
	Create(ctx context.Context, record *T) error
	Update(ctx context.Context, record *T) error
	GetByID(ctx context.Context, id uuid.UUID) (*T, error)
	List(ctx context.Context, opts ListOptions) (ListResult[T], error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// StatusUpdate captures the mutable health fields written by validation
// passes. Writes are guarded by the expected UpdatedAt timestamp so a
// validation pass and a concurrent update call cannot silently clobber each
// other; a mismatch yields ErrConflict.
type StatusUpdate struct {
	Status      domain.CredentialStatus
	HealthScore int
	LastError   string
	ValidatedAt time.Time
}

type CredentialRepository interface {
	Repository[domain.Credential]
	GetByTenantHash(ctx context.Context, tenantID, plaintextHash string) (*domain.Credential, error)
	ListByTenant(ctx context.Context, tenantID string, opts ListOptions) (ListResult[domain.Credential], error)
	// ListActive returns usable candidates for the scope ordered by health
	// score, best first.
	ListActive(ctx context.Context, tenantID, provider string, env domain.Environment) ([]domain.Credential, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expectedUpdatedAt time.Time, update StatusUpdate) error
	HardDelete(ctx context.Context, id uuid.UUID) error
}

type TenantRepository interface {
	Repository[domain.Tenant]
	GetByTenantID(ctx context.Context, tenantID string) (*domain.Tenant, error)
}

type ValidationResultRepository interface {
	Repository[domain.ValidationResult]
	ListByCredential(ctx context.Context, credentialID uuid.UUID, opts ListOptions) (ListResult[domain.ValidationResult], error)
}

type FallbackChainRepository interface {
	Repository[domain.FallbackChain]
	GetByScope(ctx context.Context, tenantID, provider string, env domain.Environment) (*domain.FallbackChain, error)
}

type AuditEventRepository interface {
	Repository[domain.AuditEvent]
	ListByTenant(ctx context.Context, tenantID string, opts ListOptions) (ListResult[domain.AuditEvent], error)
	ListByCredential(ctx context.Context, credentialID uuid.UUID, opts ListOptions) (ListResult[domain.AuditEvent], error)
	// Purge hard-removes events older than the cutoff and reports how many
	// rows were dropped.
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}
