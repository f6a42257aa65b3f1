package commands

import (
	"context"
	"errors"
	"strings"
	"time"

	command "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/logger"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/vault"
	"github.com/google/uuid"
)

// Catalog exposes go-command compatible handlers for host transports.
type Catalog struct {
	CreateCredential    command.Commander[CreateCredential]
	RotateCredential    command.Commander[RotateCredential]
	DeleteCredential    command.Commander[DeleteCredential]
	UpsertFallbackChain command.Commander[UpsertFallbackChain]
}

type vaultService interface {
	AddCredential(ctx context.Context, in vault.AddInput) (*domain.Credential, error)
	UpdateCredential(ctx context.Context, tenantID string, id uuid.UUID, in vault.UpdateInput) (*domain.Credential, error)
	DeleteCredential(ctx context.Context, tenantID string, id uuid.UUID) error
}

// Dependencies wires the vault services into the command catalog.
type Dependencies struct {
	Vault  vaultService
	Chains store.FallbackChainRepository
	Logger logger.Logger
}

// NewCatalog builds the command catalog using the supplied dependencies.
func NewCatalog(deps Dependencies) (*Catalog, error) {
	if deps.Vault == nil {
		return nil, errors.New("commands: vault manager is required")
	}
	if deps.Chains == nil {
		return nil, errors.New("commands: chains repository is required")
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}

	return &Catalog{
		CreateCredential:    credentialCreateCommand{vault: deps.Vault},
		RotateCredential:    credentialRotateCommand{vault: deps.Vault},
		DeleteCredential:    credentialDeleteCommand{vault: deps.Vault},
		UpsertFallbackChain: chainUpsertCommand{chains: deps.Chains},
	}, nil
}

// CreateCredential is the payload for registering a credential.
type CreateCredential struct {
	TenantID     string         `json:"tenant_id"`
	Provider     string         `json:"provider"`
	Alias        string         `json:"alias"`
	Description  string         `json:"description"`
	Environment  string         `json:"environment"`
	Payload      map[string]any `json:"payload"`
	Metadata     map[string]any `json:"metadata"`
	Capabilities []string       `json:"capabilities"`
}

type credentialCreateCommand struct {
	vault vaultService
}

func (c credentialCreateCommand) Execute(ctx context.Context, msg CreateCredential) error {
	if strings.TrimSpace(msg.TenantID) == "" {
		return errors.New("commands: tenant id is required")
	}
	_, err := c.vault.AddCredential(ctx, vault.AddInput{
		TenantID:     msg.TenantID,
		Provider:     msg.Provider,
		Alias:        msg.Alias,
		Description:  msg.Description,
		Environment:  domain.Environment(msg.Environment),
		Payload:      msg.Payload,
		Metadata:     msg.Metadata,
		Capabilities: msg.Capabilities,
	})
	return err
}

// RotateCredential swaps the secret payload of an existing credential.
type RotateCredential struct {
	TenantID     string         `json:"tenant_id"`
	CredentialID string         `json:"credential_id"`
	Payload      map[string]any `json:"payload"`
}

type credentialRotateCommand struct {
	vault vaultService
}

func (c credentialRotateCommand) Execute(ctx context.Context, msg RotateCredential) error {
	id, err := uuid.Parse(msg.CredentialID)
	if err != nil {
		return errors.New("commands: valid credential id is required")
	}
	if len(msg.Payload) == 0 {
		return errors.New("commands: rotation payload is required")
	}
	_, err = c.vault.UpdateCredential(ctx, msg.TenantID, id, vault.UpdateInput{Payload: msg.Payload})
	return err
}

// DeleteCredential hard-removes a credential.
type DeleteCredential struct {
	TenantID     string `json:"tenant_id"`
	CredentialID string `json:"credential_id"`
}

type credentialDeleteCommand struct {
	vault vaultService
}

func (c credentialDeleteCommand) Execute(ctx context.Context, msg DeleteCredential) error {
	id, err := uuid.Parse(msg.CredentialID)
	if err != nil {
		return errors.New("commands: valid credential id is required")
	}
	return c.vault.DeleteCredential(ctx, msg.TenantID, id)
}

// UpsertFallbackChain creates or replaces the resolution policy for a scope.
type UpsertFallbackChain struct {
	TenantID           string   `json:"tenant_id"`
	Provider           string   `json:"provider"`
	Environment        string   `json:"environment"`
	PrimaryID          string   `json:"primary_id"`
	FallbackIDs        []string `json:"fallback_ids"`
	AllowSystemDefault bool     `json:"allow_system_default"`
	MaxRetries         int      `json:"max_retries"`
	RetryDelayMS       int64    `json:"retry_delay_ms"`
}

type chainUpsertCommand struct {
	chains store.FallbackChainRepository
}

func (c chainUpsertCommand) Execute(ctx context.Context, msg UpsertFallbackChain) error {
	if strings.TrimSpace(msg.TenantID) == "" {
		return errors.New("commands: tenant id is required")
	}
	env := domain.Environment(msg.Environment)
	if !env.Valid() {
		return errors.New("commands: valid environment is required")
	}
	provider := strings.TrimSpace(strings.ToLower(msg.Provider))
	if provider == "" {
		return errors.New("commands: provider is required")
	}

	var primary uuid.UUID
	if msg.PrimaryID != "" {
		id, err := uuid.Parse(msg.PrimaryID)
		if err != nil {
			return errors.New("commands: valid primary id is required")
		}
		primary = id
	}
	for _, raw := range msg.FallbackIDs {
		if _, err := uuid.Parse(raw); err != nil {
			return errors.New("commands: valid fallback ids are required")
		}
	}

	chain, err := c.chains.GetByScope(ctx, msg.TenantID, provider, env)
	if errors.Is(err, store.ErrNotFound) {
		chain = &domain.FallbackChain{
			TenantID:    msg.TenantID,
			Provider:    provider,
			Environment: env,
		}
		applyChainInput(chain, msg, primary)
		return c.chains.Create(ctx, chain)
	}
	if err != nil {
		return err
	}
	applyChainInput(chain, msg, primary)
	return c.chains.Update(ctx, chain)
}

func applyChainInput(chain *domain.FallbackChain, msg UpsertFallbackChain, primary uuid.UUID) {
	chain.PrimaryID = primary
	chain.FallbackIDs = domain.StringList(msg.FallbackIDs)
	chain.AllowSystemDefault = msg.AllowSystemDefault
	chain.MaxRetries = msg.MaxRetries
	chain.RetryDelay = time.Duration(msg.RetryDelayMS) * time.Millisecond
}
