package envmigrate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/logger"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/providers"
	"github.com/goliatone/go-credentials/pkg/redact"
	"github.com/goliatone/go-credentials/pkg/vault"
	"github.com/google/uuid"
)

// Action is the planned disposition for one provider.
type Action string

const (
	// ActionSkip means nothing to do: no variables set, or a credential
	// already exists for the scope.
	ActionSkip Action = "skip"
	// ActionMigrate means the scanned variables form a valid payload.
	ActionMigrate Action = "migrate"
	// ActionManual means variables were found but do not form a valid
	// payload; an operator has to finish the job.
	ActionManual Action = "manual"
)

var (
	ErrMissingRegistry    = errors.New("envmigrate: provider registry is required")
	ErrMissingVault       = errors.New("envmigrate: vault manager is required")
	ErrMissingCredentials = errors.New("envmigrate: credentials repository is required")
	// ErrNotConfirmed guards the write path: a plan is a dry run until the
	// caller explicitly confirms it.
	ErrNotConfirmed = errors.New("envmigrate: plan must be confirmed before apply")
)

// Item is the planned disposition for one provider.
type Item struct {
	Provider string
	Action   Action
	Reason   string
	// Preview maps payload fields to masked values, safe to print.
	Preview map[string]string
	// ExistingID is set when the tenant already holds a credential for this
	// provider and environment.
	ExistingID uuid.UUID

	payload map[string]any
}

// Plan is a dry run of a one-shot environment import. Nothing is written
// until Apply is called with Options.Confirm.
type Plan struct {
	TenantID    string
	Environment domain.Environment
	Items       []Item
}

// Options control the apply step.
type Options struct {
	// Confirm acknowledges the dry-run plan. Apply refuses to write
	// without it.
	Confirm bool
	// Overwrite replaces an existing credential for the same scope.
	Overwrite bool
}

// Result reports what Apply did for one provider.
type Result struct {
	Provider     string
	Applied      bool
	CredentialID uuid.UUID
	Reason       string
	Err          error
}

// Vault is the slice of the vault manager the migrator uses.
type Vault interface {
	AddCredential(ctx context.Context, in vault.AddInput) (*domain.Credential, error)
	DeleteCredential(ctx context.Context, tenantID string, id uuid.UUID) error
}

// Dependencies bundles collaborators for the migrator.
type Dependencies struct {
	Providers   *providers.Registry
	Vault       Vault
	Credentials store.CredentialRepository
	Logger      logger.Logger
}

// Migrator imports provider secrets from a flat environment map, such as the
// process environment, behind an explicit dry-run/confirm boundary.
type Migrator struct {
	registry    *providers.Registry
	vault       Vault
	credentials store.CredentialRepository
	logger      logger.Logger
}

// New constructs the migrator.
func New(deps Dependencies) (*Migrator, error) {
	if deps.Providers == nil {
		return nil, ErrMissingRegistry
	}
	if deps.Vault == nil {
		return nil, ErrMissingVault
	}
	if deps.Credentials == nil {
		return nil, ErrMissingCredentials
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}
	return &Migrator{
		registry:    deps.Providers,
		vault:       deps.Vault,
		credentials: deps.Credentials,
		logger:      deps.Logger,
	}, nil
}

// Plan scans the environment map against every registered provider's
// variable mapping and produces a per-provider dry-run plan. It never writes.
func (m *Migrator) Plan(ctx context.Context, environ map[string]string, tenantID string, env domain.Environment) (*Plan, error) {
	plan := &Plan{TenantID: tenantID, Environment: env}

	types := m.registry.Types()
	sort.Strings(types)

	for _, providerType := range types {
		def, err := m.registry.Get(providerType)
		if err != nil {
			return nil, err
		}
		if len(def.EnvMapping) == 0 {
			continue
		}

		item := Item{Provider: providerType, payload: map[string]any{}}
		for envVar, field := range def.EnvMapping {
			if value, ok := environ[envVar]; ok && strings.TrimSpace(value) != "" {
				item.payload[field] = value
			}
		}

		if len(item.payload) == 0 {
			item.Action = ActionSkip
			item.Reason = "no environment variables set"
			plan.Items = append(plan.Items, item)
			continue
		}

		item.Preview = make(map[string]string, len(item.payload))
		for field, value := range item.payload {
			item.Preview[field] = redact.MaskString(fmt.Sprint(value))
		}

		existing, err := m.existingCredential(ctx, tenantID, providerType, env)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			item.Action = ActionSkip
			item.Reason = "credential already exists for this scope"
			item.ExistingID = existing.ID
			plan.Items = append(plan.Items, item)
			continue
		}

		if err := m.registry.ValidatePayload(providerType, item.payload); err != nil {
			item.Action = ActionManual
			item.Reason = err.Error()
			plan.Items = append(plan.Items, item)
			continue
		}

		item.Action = ActionMigrate
		item.Reason = "payload validates against the provider schema"
		plan.Items = append(plan.Items, item)
	}
	return plan, nil
}

// Apply executes a confirmed plan. Only items planned as migrate are
// written; an existing credential for the same scope is left alone unless
// Options.Overwrite is set.
func (m *Migrator) Apply(ctx context.Context, plan *Plan, opts Options) ([]Result, error) {
	if !opts.Confirm {
		return nil, ErrNotConfirmed
	}

	var results []Result
	for _, item := range plan.Items {
		result := Result{Provider: item.Provider}

		switch item.Action {
		case ActionMigrate:
		case ActionSkip:
			if item.ExistingID == uuid.Nil || !opts.Overwrite {
				result.Reason = item.Reason
				results = append(results, result)
				continue
			}
			// Overwrite was requested; replace the existing record.
			if len(item.payload) == 0 {
				result.Reason = item.Reason
				results = append(results, result)
				continue
			}
			if err := m.registry.ValidatePayload(item.Provider, item.payload); err != nil {
				result.Err = err
				results = append(results, result)
				continue
			}
			if err := m.vault.DeleteCredential(ctx, plan.TenantID, item.ExistingID); err != nil {
				result.Err = err
				results = append(results, result)
				continue
			}
		default:
			result.Reason = item.Reason
			results = append(results, result)
			continue
		}

		record, err := m.vault.AddCredential(ctx, vault.AddInput{
			TenantID:    plan.TenantID,
			Provider:    item.Provider,
			Alias:       "imported from environment",
			Environment: plan.Environment,
			Payload:     item.payload,
			Metadata:    map[string]any{"source": "env_migration"},
		})
		if err != nil {
			result.Err = err
			results = append(results, result)
			continue
		}
		result.Applied = true
		result.CredentialID = record.ID
		m.logger.Info("migrated credential from environment",
			logger.F("provider", item.Provider),
			logger.F("tenant_id", plan.TenantID),
			logger.F("credential_id", record.ID.String()))
		results = append(results, result)
	}
	return results, nil
}

func (m *Migrator) existingCredential(ctx context.Context, tenantID, provider string, env domain.Environment) (*domain.Credential, error) {
	list, err := m.credentials.ListByTenant(ctx, tenantID, store.ListOptions{})
	if err != nil {
		return nil, err
	}
	for i := range list.Items {
		cred := &list.Items[i]
		if cred.Provider == provider && cred.Environment == env {
			return cred, nil
		}
	}
	return nil, nil
}
