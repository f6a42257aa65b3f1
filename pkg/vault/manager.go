package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-credentials/pkg/config"
	"github.com/goliatone/go-credentials/pkg/crypto"
	"github.com/goliatone/go-credentials/pkg/domain"
	cacheiface "github.com/goliatone/go-credentials/pkg/interfaces/cache"
	"github.com/goliatone/go-credentials/pkg/interfaces/logger"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/providers"
	"github.com/goliatone/go-credentials/pkg/retry"
	"github.com/google/uuid"
)

// Validator runs a health-check pass against a stored credential.
type Validator interface {
	Validate(ctx context.Context, cred *domain.Credential) (*domain.ValidationResult, error)
}

// Auditor records state-changing and sensitive-read operations. Implementations
// must be best-effort; Log never returns an error.
type Auditor interface {
	Log(ctx context.Context, evt domain.AuditEvent)
}

// BreakerEvictor drops circuit-breaker state for a credential that no longer
// exists.
type BreakerEvictor interface {
	Remove(id uuid.UUID)
}

// DefaultSource supplies operator-configured system-wide credentials, used
// only when a caller explicitly opts in and the tenant owns nothing usable.
type DefaultSource interface {
	SystemDefault(provider string, env domain.Environment) (map[string]any, bool)
}

// AddInput carries everything needed to register a credential.
type AddInput struct {
	TenantID     string
	Provider     string
	Alias        string
	Description  string
	Environment  domain.Environment
	Payload      map[string]any
	Metadata     map[string]any
	Capabilities []string
	ExpiresAt    time.Time
}

// UpdateInput mutates non-secret fields. A non-nil Payload rotates the secret,
// which resets health to 100 and schedules a fresh validation pass.
type UpdateInput struct {
	Alias        *string
	Description  *string
	Metadata     map[string]any
	Capabilities []string
	ExpiresAt    *time.Time
	Payload      map[string]any
}

// ActiveCredential pairs a record with its decrypted payload.
type ActiveCredential struct {
	Record  domain.Credential
	Payload map[string]any
	// SystemDefault is true when the payload came from the operator table
	// rather than a tenant-owned record.
	SystemDefault bool
}

// GetOption tunes GetActiveCredential.
type GetOption func(*getOptions)

type getOptions struct {
	allowSystemDefault bool
}

// WithSystemFallback permits returning the operator-configured system default
// when the tenant owns no usable credential.
func WithSystemFallback() GetOption {
	return func(o *getOptions) { o.allowSystemDefault = true }
}

// Dependencies bundles repositories and collaborators required by the manager.
type Dependencies struct {
	Credentials store.CredentialRepository
	Tenants     store.TenantRepository
	Crypto      *crypto.Service
	Providers   *providers.Registry
	Validator   Validator
	Audit       Auditor
	Cache       cacheiface.Cache
	Breakers    BreakerEvictor
	Defaults    DefaultSource
	Logger      logger.Logger
	Config      config.Config
	Backoff     retry.Backoff
}

// Manager orchestrates credential CRUD: schema validation, encryption,
// persistence, cache/breaker invalidation and audit.
type Manager struct {
	credentials store.CredentialRepository
	tenants     store.TenantRepository
	crypto      *crypto.Service
	registry    *providers.Registry
	validator   Validator
	audit       Auditor
	cache       cacheiface.Cache
	breakers    BreakerEvictor
	defaults    DefaultSource
	logger      logger.Logger
	cfg         config.Config
	backoff     retry.Backoff

	wg sync.WaitGroup
}

// New constructs the vault manager.
func New(deps Dependencies) (*Manager, error) {
	if deps.Credentials == nil {
		return nil, ErrMissingCredentialsRepository
	}
	if deps.Tenants == nil {
		return nil, ErrMissingTenantsRepository
	}
	if deps.Crypto == nil {
		return nil, ErrMissingCrypto
	}
	if deps.Providers == nil {
		return nil, ErrMissingRegistry
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}
	if deps.Audit == nil {
		deps.Audit = nopAuditor{}
	}
	if deps.Cache == nil {
		deps.Cache = &cacheiface.Nop{}
	}
	if deps.Backoff == nil {
		deps.Backoff = retry.DefaultBackoff()
	}
	if deps.Config.Cache.TTL == 0 {
		deps.Config = config.Defaults()
	}

	return &Manager{
		credentials: deps.Credentials,
		tenants:     deps.Tenants,
		crypto:      deps.Crypto,
		registry:    deps.Providers,
		validator:   deps.Validator,
		audit:       deps.Audit,
		cache:       deps.Cache,
		breakers:    deps.Breakers,
		defaults:    deps.Defaults,
		logger:      deps.Logger,
		cfg:         deps.Config,
		backoff:     deps.Backoff,
	}, nil
}

// AddCredential validates the payload against the provider schema, rejects
// duplicates, encrypts and persists the record active at health 100, then
// schedules an asynchronous validation pass.
func (m *Manager) AddCredential(ctx context.Context, in AddInput) (*domain.Credential, error) {
	in.Provider = strings.TrimSpace(strings.ToLower(in.Provider))
	if !in.Environment.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEnvironment, in.Environment)
	}

	def, err := m.registry.Get(in.Provider)
	if err != nil {
		m.auditFailure(ctx, in.TenantID, uuid.Nil, domain.EventCreate, "add_credential", err)
		return nil, err
	}
	if err := m.registry.ValidatePayload(in.Provider, in.Payload); err != nil {
		m.auditFailure(ctx, in.TenantID, uuid.Nil, domain.EventCreate, "add_credential", err)
		return nil, err
	}

	if err := m.ensureTenant(ctx, in.TenantID); err != nil {
		return nil, err
	}

	hash := crypto.HashPayload(in.Payload)
	if existing, err := m.credentials.GetByTenantHash(ctx, in.TenantID, hash); err == nil {
		dup := &DuplicateError{TenantID: in.TenantID, Provider: in.Provider, ExistingID: existing.ID}
		m.auditFailure(ctx, in.TenantID, uuid.Nil, domain.EventCreate, "add_credential", dup)
		return nil, dup
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	env, err := m.crypto.Encrypt(in.Payload, in.TenantID)
	if err != nil {
		m.auditFailure(ctx, in.TenantID, uuid.Nil, domain.EventCreate, "add_credential", err)
		return nil, err
	}

	capabilities := in.Capabilities
	if len(capabilities) == 0 {
		capabilities = def.Capabilities
	}

	record := &domain.Credential{
		TenantID:      in.TenantID,
		Provider:      in.Provider,
		Alias:         in.Alias,
		Description:   in.Description,
		Environment:   in.Environment,
		Ciphertext:    env.Ciphertext,
		Nonce:         env.Nonce,
		Salt:          env.Salt,
		PlaintextHash: hash,
		Metadata:      domain.JSONMap(in.Metadata),
		Capabilities:  domain.StringList(capabilities),
		Status:        domain.StatusActive,
		HealthScore:   100,
		ExpiresAt:     in.ExpiresAt,
	}
	if err := m.credentials.Create(ctx, record); err != nil {
		m.auditFailure(ctx, in.TenantID, uuid.Nil, domain.EventCreate, "add_credential", err)
		return nil, err
	}

	m.audit.Log(ctx, domain.AuditEvent{
		TenantID:     in.TenantID,
		CredentialID: record.ID,
		EventType:    domain.EventCreate,
		Action:       "add_credential",
		Success:      true,
		NewValues:    recordSnapshot(record),
	})

	m.scheduleValidation(record)
	return record, nil
}

// GetActiveCredential returns the highest-health usable record for the scope
// with its decrypted payload. When the tenant owns nothing usable the call
// fails with NotFoundError unless the caller opted into the system fallback.
func (m *Manager) GetActiveCredential(ctx context.Context, tenantID, provider string, env domain.Environment, opts ...GetOption) (*ActiveCredential, error) {
	var options getOptions
	for _, opt := range opts {
		opt(&options)
	}
	provider = strings.TrimSpace(strings.ToLower(provider))

	key := cacheKey(tenantID, provider, env)
	if value, ok, err := m.cache.Get(ctx, key); err == nil && ok {
		if active, valid := value.(ActiveCredential); valid {
			return &active, nil
		}
	}

	candidates, err := m.credentials.ListActive(ctx, tenantID, provider, env)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		if options.allowSystemDefault && m.defaults != nil {
			if payload, ok := m.defaults.SystemDefault(provider, env); ok {
				m.audit.Log(ctx, domain.AuditEvent{
					TenantID:  tenantID,
					EventType: domain.EventUse,
					Action:    "get_active_credential",
					Success:   true,
					Context:   domain.JSONMap{"provider": provider, "environment": string(env), "system_default": true},
				})
				return &ActiveCredential{
					Record:        domain.Credential{TenantID: tenantID, Provider: provider, Environment: env},
					Payload:       payload,
					SystemDefault: true,
				}, nil
			}
		}
		notFound := &NotFoundError{TenantID: tenantID, Provider: provider, Environment: env}
		m.auditFailure(ctx, tenantID, uuid.Nil, domain.EventUse, "get_active_credential", notFound)
		return nil, notFound
	}

	best := candidates[0]
	payload, err := m.crypto.Decrypt(crypto.Envelope{
		Ciphertext: best.Ciphertext,
		Nonce:      best.Nonce,
		Salt:       best.Salt,
	}, tenantID)
	if err != nil {
		m.auditFailure(ctx, tenantID, best.ID, domain.EventUse, "get_active_credential", err)
		return nil, err
	}

	active := ActiveCredential{Record: best, Payload: payload}
	if err := m.cache.Set(ctx, key, active, m.cfg.Cache.TTL); err != nil {
		m.logger.Warn("credential cache write failed", logger.F("error", err.Error()))
	}

	m.audit.Log(ctx, domain.AuditEvent{
		TenantID:     tenantID,
		CredentialID: best.ID,
		EventType:    domain.EventUse,
		Action:       "get_active_credential",
		Success:      true,
		Context:      domain.JSONMap{"provider": provider, "environment": string(env)},
	})
	return &active, nil
}

// ListCredentials returns the tenant's records. Ciphertext stays encrypted.
func (m *Manager) ListCredentials(ctx context.Context, tenantID string, opts store.ListOptions) (store.ListResult[domain.Credential], error) {
	return m.credentials.ListByTenant(ctx, tenantID, opts)
}

// UpdateCredential mutates non-secret fields; a non-nil Payload additionally
// rotates the secret, resetting health to 100 and re-validating.
func (m *Manager) UpdateCredential(ctx context.Context, tenantID string, id uuid.UUID, in UpdateInput) (*domain.Credential, error) {
	record, err := m.ownedCredential(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	before := recordSnapshot(record)
	rotated := false

	if in.Alias != nil {
		record.Alias = *in.Alias
	}
	if in.Description != nil {
		record.Description = *in.Description
	}
	if in.Metadata != nil {
		record.Metadata = domain.JSONMap(in.Metadata)
	}
	if in.Capabilities != nil {
		record.Capabilities = domain.StringList(in.Capabilities)
	}
	if in.ExpiresAt != nil {
		record.ExpiresAt = *in.ExpiresAt
	}

	if in.Payload != nil {
		if err := m.registry.ValidatePayload(record.Provider, in.Payload); err != nil {
			m.auditFailure(ctx, tenantID, id, domain.EventUpdate, "update_credential", err)
			return nil, err
		}
		hash := crypto.HashPayload(in.Payload)
		if existing, err := m.credentials.GetByTenantHash(ctx, tenantID, hash); err == nil && existing.ID != id {
			dup := &DuplicateError{TenantID: tenantID, Provider: record.Provider, ExistingID: existing.ID}
			m.auditFailure(ctx, tenantID, id, domain.EventUpdate, "update_credential", dup)
			return nil, dup
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		env, err := m.crypto.Encrypt(in.Payload, tenantID)
		if err != nil {
			m.auditFailure(ctx, tenantID, id, domain.EventUpdate, "update_credential", err)
			return nil, err
		}
		record.Ciphertext = env.Ciphertext
		record.Nonce = env.Nonce
		record.Salt = env.Salt
		record.PlaintextHash = hash
		record.Status = domain.StatusActive
		record.HealthScore = 100
		record.LastError = ""
		rotated = true
	}

	if err := m.credentials.Update(ctx, record); err != nil {
		m.auditFailure(ctx, tenantID, id, domain.EventUpdate, "update_credential", err)
		return nil, err
	}

	m.invalidate(ctx, record)
	m.audit.Log(ctx, domain.AuditEvent{
		TenantID:     tenantID,
		CredentialID: record.ID,
		EventType:    domain.EventUpdate,
		Action:       "update_credential",
		Success:      true,
		OldValues:    before,
		NewValues:    recordSnapshot(record),
		Context:      domain.JSONMap{"rotated": rotated},
	})

	if rotated {
		m.scheduleValidation(record)
	}
	return record, nil
}

// DeleteCredential hard-removes the record and immediately invalidates cache
// and circuit-breaker state.
func (m *Manager) DeleteCredential(ctx context.Context, tenantID string, id uuid.UUID) error {
	record, err := m.ownedCredential(ctx, tenantID, id)
	if err != nil {
		return err
	}

	if err := m.credentials.HardDelete(ctx, id); err != nil {
		m.auditFailure(ctx, tenantID, id, domain.EventDelete, "delete_credential", err)
		return err
	}

	m.invalidate(ctx, record)
	if m.breakers != nil {
		m.breakers.Remove(id)
	}

	m.audit.Log(ctx, domain.AuditEvent{
		TenantID:     tenantID,
		CredentialID: id,
		EventType:    domain.EventDelete,
		Action:       "delete_credential",
		Success:      true,
		OldValues:    recordSnapshot(record),
	})
	return nil
}

// Wait blocks until all in-flight asynchronous validation passes finish.
// Useful for tests and graceful shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) ownedCredential(ctx context.Context, tenantID string, id uuid.UUID) (*domain.Credential, error) {
	record, err := m.credentials.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{TenantID: tenantID, ID: id}
	}
	if err != nil {
		return nil, err
	}
	if record.TenantID != tenantID {
		return nil, &NotFoundError{TenantID: tenantID, ID: id}
	}
	return record, nil
}

func (m *Manager) ensureTenant(ctx context.Context, tenantID string) error {
	_, err := m.tenants.GetByTenantID(ctx, tenantID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	tenant := &domain.Tenant{TenantID: tenantID}
	if err := m.tenants.Create(ctx, tenant); err != nil {
		// Another writer may have registered the tenant concurrently.
		if _, getErr := m.tenants.GetByTenantID(ctx, tenantID); getErr == nil {
			return nil
		}
		return err
	}
	return nil
}

func (m *Manager) scheduleValidation(record *domain.Credential) {
	if m.validator == nil {
		return
	}
	snapshot := *record
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx := context.Background()
		maxAttempts := m.cfg.Fallback.MaxRetries
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if attempt > 0 {
				time.Sleep(m.backoff.Next(attempt))
			}
			result, err := m.validator.Validate(ctx, &snapshot)
			if err == nil {
				m.logger.Debug("post-write validation finished",
					logger.F("credential_id", snapshot.ID.String()),
					logger.F("passed", result.Passed))
				return
			}
			m.logger.Warn("post-write validation attempt failed",
				logger.F("credential_id", snapshot.ID.String()),
				logger.F("attempt", attempt+1),
				logger.F("error", err.Error()))
		}
	}()
}

func (m *Manager) invalidate(ctx context.Context, record *domain.Credential) {
	key := cacheKey(record.TenantID, record.Provider, record.Environment)
	if err := m.cache.Delete(ctx, key); err != nil {
		m.logger.Warn("credential cache invalidation failed", logger.F("error", err.Error()))
	}
}

func (m *Manager) auditFailure(ctx context.Context, tenantID string, id uuid.UUID, kind domain.AuditEventType, action string, cause error) {
	m.audit.Log(ctx, domain.AuditEvent{
		TenantID:     tenantID,
		CredentialID: id,
		EventType:    kind,
		Action:       action,
		Success:      false,
		ErrorMessage: cause.Error(),
	})
}

func cacheKey(tenantID, provider string, env domain.Environment) string {
	return cacheiface.CredentialKey(tenantID, provider, string(env))
}

// recordSnapshot captures the non-secret shape of a record for audit
// snapshots. Cipher material and payload hash never appear here.
func recordSnapshot(record *domain.Credential) domain.JSONMap {
	snap := domain.JSONMap{
		"provider":     record.Provider,
		"alias":        record.Alias,
		"description":  record.Description,
		"environment":  string(record.Environment),
		"status":       string(record.Status),
		"health_score": record.HealthScore,
	}
	if len(record.Metadata) > 0 {
		snap["metadata"] = map[string]any(record.Metadata)
	}
	if len(record.Capabilities) > 0 {
		snap["capabilities"] = []string(record.Capabilities)
	}
	if !record.ExpiresAt.IsZero() {
		snap["expires_at"] = record.ExpiresAt
	}
	return snap
}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, domain.AuditEvent) {}
