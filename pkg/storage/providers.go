package storage

import (
	"context"
	"database/sql"

	bunrepo "github.com/goliatone/go-credentials/internal/storage/bun"
	"github.com/goliatone/go-credentials/internal/storage/memory"
	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// Providers exposes all repositories needed by services.
type Providers struct {
	Credentials store.CredentialRepository
	Tenants     store.TenantRepository
	Validations store.ValidationResultRepository
	Chains      store.FallbackChainRepository
	Audits      store.AuditEventRepository
	Transaction store.TransactionManager
}

type Option func(*Providers)

// NewMemoryProviders returns repositories backed by in-memory maps.
func NewMemoryProviders(opts ...Option) Providers {
	providers := Providers{
		Credentials: memory.NewCredentialRepository(),
		Tenants:     memory.NewTenantRepository(),
		Validations: memory.NewValidationResultRepository(),
		Chains:      memory.NewFallbackChainRepository(),
		Audits:      memory.NewAuditEventRepository(),
		Transaction: &store.NopTransactionManager{},
	}
	for _, opt := range opts {
		opt(&providers)
	}
	return providers
}

// NewBunProviders wires Bun-backed repositories using go-repository-bun.
// The caller is responsible for creating the *bun.DB instance (potentially
// via go-persistence-bun) and managing its lifecycle.
func NewBunProviders(db *bun.DB, opts ...Option) Providers {
	if db == nil {
		panic("storage: bun DB is required")
	}

	// Register models so go-persistence-bun migrations can pick them up.
	persistence.RegisterModel(
		(*domain.Tenant)(nil),
		(*domain.Credential)(nil),
		(*domain.ValidationResult)(nil),
		(*domain.FallbackChain)(nil),
		(*domain.AuditEvent)(nil),
	)

	providers := Providers{
		Credentials: bunrepo.NewCredentialRepository(db),
		Tenants:     bunrepo.NewTenantRepository(db),
		Validations: bunrepo.NewValidationResultRepository(db),
		Chains:      bunrepo.NewFallbackChainRepository(db),
		Audits:      bunrepo.NewAuditEventRepository(db),
		Transaction: &bunTxManager{db: db},
	}

	for _, opt := range opts {
		opt(&providers)
	}
	return providers
}

type bunTxManager struct {
	db *bun.DB
}

func (m *bunTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx)
	})
}
