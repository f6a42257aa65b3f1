package validator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goliatone/go-credentials/pkg/config"
	"github.com/goliatone/go-credentials/pkg/crypto"
	"github.com/goliatone/go-credentials/pkg/domain"
	cacheiface "github.com/goliatone/go-credentials/pkg/interfaces/cache"
	"github.com/goliatone/go-credentials/pkg/interfaces/logger"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/providers"
)

// Auditor records validation outcomes on the audit trail.
type Auditor interface {
	Log(ctx context.Context, evt domain.AuditEvent)
}

// Dependencies bundles collaborators required by the validator.
type Dependencies struct {
	Credentials store.CredentialRepository
	Validations store.ValidationResultRepository
	Crypto      *crypto.Service
	Providers   *providers.Registry
	Audit       Auditor
	Client      *http.Client
	Cache       cacheiface.Cache
	Logger      logger.Logger
	Config      config.ValidatorConfig
}

// Service runs provider health-check probes against stored credentials and
// records the outcome as an append-only validation result plus a status and
// health-score write on the record itself.
type Service struct {
	credentials store.CredentialRepository
	validations store.ValidationResultRepository
	crypto      *crypto.Service
	registry    *providers.Registry
	audit       Auditor
	client      *http.Client
	cache       cacheiface.Cache
	logger      logger.Logger
	cfg         config.ValidatorConfig
	now         func() time.Time
}

// New constructs the validator.
func New(deps Dependencies) (*Service, error) {
	if deps.Credentials == nil {
		return nil, ErrMissingCredentialsRepository
	}
	if deps.Validations == nil {
		return nil, ErrMissingValidationsRepository
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
	if deps.Client == nil {
		deps.Client = &http.Client{}
	}
	if deps.Cache == nil {
		deps.Cache = &cacheiface.Nop{}
	}
	cfg := deps.Config
	if cfg.ProbeTimeout == 0 {
		cfg = config.Defaults().Validator
	}
	return &Service{
		credentials: deps.Credentials,
		validations: deps.Validations,
		crypto:      deps.Crypto,
		registry:    deps.Providers,
		audit:       deps.Audit,
		client:      deps.Client,
		cache:       deps.Cache,
		logger:      deps.Logger,
		cfg:         cfg,
		now:         time.Now,
	}, nil
}

// Validate decrypts the record, runs the provider's probes in order and
// persists the outcome. Probe failures are recorded, not returned: the error
// return is reserved for system faults such as decryption or persistence.
func (s *Service) Validate(ctx context.Context, cred *domain.Credential) (*domain.ValidationResult, error) {
	def, err := s.registry.Get(cred.Provider)
	if err != nil {
		return nil, err
	}

	payload, err := s.crypto.Decrypt(crypto.Envelope{
		Ciphertext: cred.Ciphertext,
		Nonce:      cred.Nonce,
		Salt:       cred.Salt,
	}, cred.TenantID)
	if err != nil {
		// Tag mismatch means corruption or tampering, not a transient
		// provider fault. Flag the record for operator review.
		s.writeStatus(ctx, cred, store.StatusUpdate{
			Status:      domain.StatusInvalid,
			HealthScore: 0,
			LastError:   err.Error(),
			ValidatedAt: s.now().UTC(),
		})
		return nil, err
	}

	header, err := s.registry.AuthHeader(cred.Provider, payload)
	if err != nil {
		return nil, err
	}

	score := 100
	passed := true
	var probeErr *ProviderError
	outcomes := domain.JSONMap{}
	start := s.now()

	for _, probe := range def.Probes {
		outcome, failure := s.runProbe(ctx, cred.Provider, probe, payload, header)
		outcomes[probe.Name] = outcome
		score -= s.latencyDeduction(time.Duration(outcome.LatencyMS) * time.Millisecond)

		if failure == nil {
			continue
		}
		if probe.Required {
			passed = false
			probeErr = failure
		} else {
			score -= 10
		}
		// Probes run in declared order and stop at the first failure.
		break
	}

	if score < 0 {
		score = 0
	}
	if !passed {
		score = 0
	}

	result := &domain.ValidationResult{
		CredentialID: cred.ID,
		Passed:       passed,
		Score:        score,
		LatencyMS:    s.now().Sub(start).Milliseconds(),
		Probes:       outcomes,
	}
	if probeErr != nil {
		result.ProviderError = probeErr.Error()
	}
	if err := s.validations.Create(ctx, result); err != nil {
		return nil, err
	}

	update := store.StatusUpdate{
		Status:      cred.Status,
		HealthScore: score,
		ValidatedAt: s.now().UTC(),
	}
	if !passed {
		update.Status = domain.StatusInvalid
		update.LastError = probeErr.Error()
	} else if cred.Status == domain.StatusInvalid {
		update.Status = domain.StatusActive
	}
	s.writeStatus(ctx, cred, update)

	s.audit.Log(ctx, domain.AuditEvent{
		TenantID:     cred.TenantID,
		CredentialID: cred.ID,
		EventType:    domain.EventValidate,
		Action:       "validate_credential",
		Success:      passed,
		ErrorMessage: result.ProviderError,
		Context:      domain.JSONMap{"score": score, "provider": cred.Provider},
	})
	return result, nil
}

// BatchOutcome pairs a credential with its validation result or system error.
type BatchOutcome struct {
	CredentialID string
	Result       *domain.ValidationResult
	Err          error
}

// ValidateBatch runs validations with bounded concurrency. Individual
// failures never abort the batch.
func (s *Service) ValidateBatch(ctx context.Context, records []*domain.Credential) []BatchOutcome {
	maxInFlight := s.cfg.MaxInFlight
	if maxInFlight < 1 {
		maxInFlight = 1
	}

	outcomes := make([]BatchOutcome, len(records))
	sem := make(chan struct{}, maxInFlight)
	var wg sync.WaitGroup

	for i, record := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, record *domain.Credential) {
			defer wg.Done()
			defer func() { <-sem }()
			result, err := s.Validate(ctx, record)
			outcomes[i] = BatchOutcome{CredentialID: record.ID.String(), Result: result, Err: err}
		}(i, record)
	}
	wg.Wait()
	return outcomes
}

type probeOutcome struct {
	Passed     bool   `json:"passed"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

func (s *Service) runProbe(ctx context.Context, provider string, probe providers.Probe, payload map[string]any, header http.Header) (probeOutcome, *ProviderError) {
	timeout := probe.Timeout
	if timeout == 0 {
		timeout = s.cfg.ProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, probe.Method, probe.ExpandURL(payload), nil)
	if err != nil {
		failure := &ProviderError{Provider: provider, Probe: probe.Name, Detail: err.Error()}
		return probeOutcome{Error: failure.Detail}, failure
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	start := s.now()
	resp, err := s.client.Do(req)
	latency := s.now().Sub(start)
	if err != nil {
		// A timed-out probe counts as a failure, not as unknown.
		detail := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || probeCtx.Err() != nil {
			detail = fmt.Sprintf("timed out after %s", timeout)
		}
		failure := &ProviderError{Provider: provider, Probe: probe.Name, Detail: detail}
		return probeOutcome{LatencyMS: latency.Milliseconds(), Error: detail}, failure
	}
	defer resp.Body.Close()

	outcome := probeOutcome{
		StatusCode: resp.StatusCode,
		LatencyMS:  latency.Milliseconds(),
	}
	if !statusExpected(resp.StatusCode, probe.ExpectStatus) {
		failure := &ProviderError{
			Provider:   provider,
			Probe:      probe.Name,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
		outcome.Error = failure.Detail
		return outcome, failure
	}

	if probe.CheckBody != nil {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			failure := &ProviderError{Provider: provider, Probe: probe.Name, Detail: err.Error()}
			outcome.Error = failure.Detail
			return outcome, failure
		}
		if err := probe.CheckBody(body); err != nil {
			failure := &ProviderError{Provider: provider, Probe: probe.Name, StatusCode: resp.StatusCode, Detail: err.Error()}
			outcome.Error = failure.Detail
			return outcome, failure
		}
	}

	outcome.Passed = true
	return outcome, nil
}

// writeStatus applies the status update with optimistic concurrency. A
// conflicting concurrent write wins; the next validation pass reconciles.
// Any cached decrypted copy of the record is evicted so readers never see a
// pre-transition snapshot for the rest of its TTL.
func (s *Service) writeStatus(ctx context.Context, cred *domain.Credential, update store.StatusUpdate) {
	err := s.credentials.UpdateStatus(ctx, cred.ID, cred.UpdatedAt, update)
	if errors.Is(err, store.ErrConflict) {
		fresh, getErr := s.credentials.GetByID(ctx, cred.ID)
		if getErr != nil {
			s.evict(ctx, cred)
			return
		}
		err = s.credentials.UpdateStatus(ctx, cred.ID, fresh.UpdatedAt, update)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("credential status write failed",
			logger.F("credential_id", cred.ID.String()),
			logger.F("error", err.Error()))
	}
	s.evict(ctx, cred)
}

func (s *Service) evict(ctx context.Context, cred *domain.Credential) {
	key := cacheiface.CredentialKey(cred.TenantID, cred.Provider, string(cred.Environment))
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("credential cache eviction failed",
			logger.F("credential_id", cred.ID.String()),
			logger.F("error", err.Error()))
	}
}

func (s *Service) latencyDeduction(latency time.Duration) int {
	cfg := s.cfg
	switch {
	case latency > cfg.CriticalAt:
		return 20
	case latency > cfg.DegradedAt:
		return 10
	case latency > cfg.SlowAt:
		return 5
	default:
		return 0
	}
}

func statusExpected(code int, expected []int) bool {
	if len(expected) == 0 {
		return code >= 200 && code < 300
	}
	for _, want := range expected {
		if code == want {
			return true
		}
	}
	return false
}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, domain.AuditEvent) {}
