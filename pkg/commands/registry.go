package commands

import (
	command "github.com/goliatone/go-command"
	internalcommands "github.com/goliatone/go-credentials/internal/commands"
	"github.com/goliatone/go-credentials/pkg/interfaces/logger"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/vault"
)

// Re-export request types so consumers need not import internal packages.
type (
	CreateCredential    = internalcommands.CreateCredential
	RotateCredential    = internalcommands.RotateCredential
	DeleteCredential    = internalcommands.DeleteCredential
	UpsertFallbackChain = internalcommands.UpsertFallbackChain
)

// Registry exposes go-command compatible handlers backed by the vault services.
type Registry struct {
	Catalog             *internalcommands.Catalog
	CreateCredential    command.Commander[CreateCredential]
	RotateCredential    command.Commander[RotateCredential]
	DeleteCredential    command.Commander[DeleteCredential]
	UpsertFallbackChain command.Commander[UpsertFallbackChain]
}

// Dependencies mirror the internal command dependencies but keep them public.
type Dependencies struct {
	Vault  *vault.Manager
	Chains store.FallbackChainRepository
	Logger logger.Logger
}

// New builds the registry using the provided dependencies.
func New(deps Dependencies) (*Registry, error) {
	catalog, err := internalcommands.NewCatalog(internalcommands.Dependencies{
		Vault:  deps.Vault,
		Chains: deps.Chains,
		Logger: deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Registry{
		Catalog:             catalog,
		CreateCredential:    catalog.CreateCredential,
		RotateCredential:    catalog.RotateCredential,
		DeleteCredential:    catalog.DeleteCredential,
		UpsertFallbackChain: catalog.UpsertFallbackChain,
	}, nil
}

// Commanders returns every handler so callers can register them with
// go-command registries.
func (r *Registry) Commanders() []any {
	if r == nil {
		return nil
	}
	return []any{
		r.CreateCredential,
		r.RotateCredential,
		r.DeleteCredential,
		r.UpsertFallbackChain,
	}
}
