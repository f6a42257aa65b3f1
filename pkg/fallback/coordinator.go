package fallback

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/pkg/config"
	"github.com/goliatone/go-credentials/pkg/crypto"
	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/logger"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/google/uuid"
)

// Auditor records resolution outcomes on the audit trail.
type Auditor interface {
	Log(ctx context.Context, evt domain.AuditEvent)
}

// CheckFunc probes whether a candidate is actually usable and returns its
// decrypted payload. The default check decrypts the envelope and nothing
// more; callers can inject a provider round-trip instead.
type CheckFunc func(ctx context.Context, cred *domain.Credential) (map[string]any, error)

// Resolution is the outcome of a successful resolve: the chosen credential,
// its payload, and every candidate that failed along the way.
type Resolution struct {
	Credential    domain.Credential
	Payload       map[string]any
	SystemDefault bool
	Failed        []Attempt
}

// Dependencies bundles collaborators required by the coordinator.
type Dependencies struct {
	Credentials store.CredentialRepository
	Chains      store.FallbackChainRepository
	Crypto      *crypto.Service
	Breakers    *BreakerRegistry
	Defaults    *SystemDefaults
	Audit       Auditor
	Logger      logger.Logger
	Config      config.FallbackConfig
	Check       CheckFunc
	// Sleep waits between attempts, honoring the context deadline. Injected
	// for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Coordinator resolves "the best currently-usable credential" for a (tenant,
// provider, environment) scope through a primary, an ordered fallback
// sequence, and an optional system-wide default, consulting per-credential
// circuit breakers at every step.
type Coordinator struct {
	credentials store.CredentialRepository
	chains      store.FallbackChainRepository
	crypto      *crypto.Service
	breakers    *BreakerRegistry
	defaults    *SystemDefaults
	audit       Auditor
	logger      logger.Logger
	cfg         config.FallbackConfig
	check       CheckFunc
	sleep       func(ctx context.Context, d time.Duration) error
}

// New constructs the coordinator.
func New(deps Dependencies) (*Coordinator, error) {
	if deps.Credentials == nil {
		return nil, ErrMissingCredentialsRepository
	}
	if deps.Chains == nil {
		return nil, ErrMissingChainsRepository
	}
	if deps.Crypto == nil {
		return nil, ErrMissingCrypto
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}
	if deps.Audit == nil {
		deps.Audit = nopAuditor{}
	}
	cfg := deps.Config
	if cfg.FailureThreshold == 0 {
		cfg = config.Defaults().Fallback
	}
	if deps.Breakers == nil {
		deps.Breakers = NewBreakerRegistry(Settings{
			FailureThreshold: cfg.FailureThreshold,
			RecoveryWindow:   cfg.RecoveryWindow,
			SuccessThreshold: cfg.SuccessThreshold,
		})
	}
	if deps.Defaults == nil {
		deps.Defaults = NewSystemDefaults()
	}

	c := &Coordinator{
		credentials: deps.Credentials,
		chains:      deps.Chains,
		crypto:      deps.Crypto,
		breakers:    deps.Breakers,
		defaults:    deps.Defaults,
		audit:       deps.Audit,
		logger:      deps.Logger,
		cfg:         cfg,
		check:       deps.Check,
		sleep:       deps.Sleep,
	}
	if c.check == nil {
		c.check = c.decryptCheck
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	return c, nil
}

// Breakers exposes the registry so hosts can wire breaker eviction into the
// vault manager's delete path.
func (c *Coordinator) Breakers() *BreakerRegistry {
	return c.breakers
}

// Defaults exposes the operator table for system-wide credentials.
func (c *Coordinator) Defaults() *SystemDefaults {
	return c.defaults
}

// Resolve walks the scope's fallback chain: primary first, then the fallback
// sequence in order (skipping ids already attempted and ids whose breaker is
// open), then the system default when the chain permits it. Every real
// attempt is recorded against that credential's breaker. When nothing
// succeeds the call fails with a ResolutionError enumerating every attempt.
func (c *Coordinator) Resolve(ctx context.Context, tenantID, provider string, env domain.Environment) (*Resolution, error) {
	provider = strings.TrimSpace(strings.ToLower(provider))

	chain, err := c.chains.GetByScope(ctx, tenantID, provider, env)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	candidates, err := c.candidateIDs(ctx, chain, tenantID, provider, env)
	if err != nil {
		return nil, err
	}

	retryDelay := c.cfg.RetryDelay
	if chain != nil && chain.RetryDelay > 0 {
		retryDelay = chain.RetryDelay
	}

	var attempts []Attempt
	attempted := make(map[uuid.UUID]bool)
	needDelay := false

	for _, id := range candidates {
		if attempted[id] {
			continue
		}
		attempted[id] = true

		// The inter-attempt delay applies between real attempts, not after
		// breaker skips.
		if needDelay {
			if err := c.sleep(ctx, retryDelay); err != nil {
				attempts = append(attempts, Attempt{CredentialID: id, Reason: "abandoned: " + err.Error()})
				return nil, c.fail(ctx, tenantID, provider, env, attempts)
			}
			needDelay = false
		}

		payload, reason, tried := c.tryCandidate(ctx, tenantID, id)
		if reason == "" {
			resolution := &Resolution{Payload: payload.payload, Credential: payload.record, Failed: attempts}
			c.auditResolve(ctx, tenantID, payload.record.ID, provider, env, true, "")
			return resolution, nil
		}
		needDelay = tried
		attempts = append(attempts, Attempt{CredentialID: id, Reason: reason})
	}

	if chain != nil && chain.AllowSystemDefault {
		if resolution, ok := c.trySystemDefault(ctx, tenantID, provider, env, attempts); ok {
			return resolution, nil
		}
	}

	return nil, c.fail(ctx, tenantID, provider, env, attempts)
}

type candidateResult struct {
	record  domain.Credential
	payload map[string]any
}

// tryCandidate returns an empty reason on success. The tried flag reports
// whether a real check ran, as opposed to the candidate being skipped.
func (c *Coordinator) tryCandidate(ctx context.Context, tenantID string, id uuid.UUID) (candidateResult, string, bool) {
	if !c.breakers.Allow(id) {
		// ErrCircuitOpen is swallowed here: an open breaker just means
		// "skip without attempting".
		return candidateResult{}, ErrCircuitOpen.Error(), false
	}

	record, err := c.credentials.GetByID(ctx, id)
	if err != nil {
		return candidateResult{}, "not found", false
	}
	if record.TenantID != tenantID {
		return candidateResult{}, "not found", false
	}
	if !record.Usable(time.Now()) {
		return candidateResult{}, "status " + string(record.Status), false
	}

	payload, err := c.check(ctx, record)
	if err != nil {
		c.breakers.RecordFailure(id)
		return candidateResult{}, err.Error(), true
	}
	c.breakers.RecordSuccess(id)
	return candidateResult{record: *record, payload: payload}, "", true
}

func (c *Coordinator) trySystemDefault(ctx context.Context, tenantID, provider string, env domain.Environment, attempts []Attempt) (*Resolution, bool) {
	payload, ok := c.defaults.SystemDefault(provider, env)
	if !ok {
		return nil, false
	}
	breakerID, _ := c.defaults.BreakerID(provider)
	if !c.breakers.Allow(breakerID) {
		return nil, false
	}
	c.breakers.RecordSuccess(breakerID)
	c.auditResolve(ctx, tenantID, uuid.Nil, provider, env, true, "system default")
	return &Resolution{
		Credential:    domain.Credential{TenantID: tenantID, Provider: provider, Environment: env},
		Payload:       payload,
		SystemDefault: true,
		Failed:        attempts,
	}, true
}

func (c *Coordinator) candidateIDs(ctx context.Context, chain *domain.FallbackChain, tenantID, provider string, env domain.Environment) ([]uuid.UUID, error) {
	if chain != nil {
		return chain.Candidates(), nil
	}
	records, err := c.credentials.ListActive(ctx, tenantID, provider, env)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}
	return ids, nil
}

func (c *Coordinator) fail(ctx context.Context, tenantID, provider string, env domain.Environment, attempts []Attempt) error {
	resErr := &ResolutionError{TenantID: tenantID, Provider: provider, Environment: env, Attempts: attempts}
	c.auditResolve(ctx, tenantID, uuid.Nil, provider, env, false, resErr.Error())
	return resErr
}

func (c *Coordinator) auditResolve(ctx context.Context, tenantID string, id uuid.UUID, provider string, env domain.Environment, success bool, detail string) {
	evt := domain.AuditEvent{
		TenantID:     tenantID,
		CredentialID: id,
		EventType:    domain.EventUse,
		Action:       "resolve_credential",
		Success:      success,
		Context:      domain.JSONMap{"provider": provider, "environment": string(env)},
	}
	if !success {
		evt.ErrorMessage = detail
	} else if detail != "" {
		evt.Context["detail"] = detail
	}
	c.audit.Log(ctx, evt)
}

func (c *Coordinator) decryptCheck(ctx context.Context, cred *domain.Credential) (map[string]any, error) {
	return c.crypto.Decrypt(crypto.Envelope{
		Ciphertext: cred.Ciphertext,
		Nonce:      cred.Nonce,
		Salt:       cred.Salt,
	}, cred.TenantID)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, domain.AuditEvent) {}
