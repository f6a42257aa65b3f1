package vault

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-credentials/internal/storage/memory"
	"github.com/goliatone/go-credentials/pkg/audit"
	"github.com/goliatone/go-credentials/pkg/cache"
	"github.com/goliatone/go-credentials/pkg/config"
	"github.com/goliatone/go-credentials/pkg/crypto"
	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/providers"
	"github.com/goliatone/go-credentials/pkg/retry"
	"github.com/google/uuid"
)

const testMasterKey = "Zq3!x8Lw0#tVbN5m^RdK1pYcE7uHgJ2aQ9sF6iTnXoPk"

type fakeValidator struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (f *fakeValidator) Validate(ctx context.Context, cred *domain.Credential) (*domain.ValidationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cred.ID)
	return &domain.ValidationResult{CredentialID: cred.ID, Passed: true, Score: 100}, nil
}

func (f *fakeValidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeBreakers struct {
	mu      sync.Mutex
	removed []uuid.UUID
}

func (f *fakeBreakers) Remove(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
}

type fakeDefaults struct {
	payloads map[string]map[string]any
}

func (f *fakeDefaults) SystemDefault(provider string, env domain.Environment) (map[string]any, bool) {
	payload, ok := f.payloads[provider]
	return payload, ok
}

type testEnv struct {
	manager     *Manager
	credentials *memory.CredentialRepository
	audits      *memory.AuditEventRepository
	validator   *fakeValidator
	breakers    *fakeBreakers
	defaults    *fakeDefaults
}

func setupManager(t *testing.T) *testEnv {
	t.Helper()

	svc, err := crypto.New(testMasterKey)
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}
	credentials := memory.NewCredentialRepository()
	audits := memory.NewAuditEventRepository()
	auditSvc, err := audit.New(audit.Dependencies{Events: audits})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	validator := &fakeValidator{}
	breakers := &fakeBreakers{}
	defaults := &fakeDefaults{payloads: map[string]map[string]any{}}

	manager, err := New(Dependencies{
		Credentials: credentials,
		Tenants:     memory.NewTenantRepository(),
		Crypto:      svc,
		Providers:   providers.DefaultRegistry(),
		Validator:   validator,
		Audit:       auditSvc,
		Cache:       cache.NewMemory(),
		Breakers:    breakers,
		Defaults:    defaults,
		Config:      config.Defaults(),
		Backoff:     retry.FixedBackoff{Delay: 0},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return &testEnv{
		manager:     manager,
		credentials: credentials,
		audits:      audits,
		validator:   validator,
		breakers:    breakers,
		defaults:    defaults,
	}
}

func openaiInput(tenantID string) AddInput {
	return AddInput{
		TenantID:    tenantID,
		Provider:    "openai",
		Alias:       "primary",
		Environment: domain.EnvProduction,
		Payload:     map[string]any{"apiKey": "sk-test-1234567890"},
	}
}

func TestManagerAddCredential(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()

	record, err := env.manager.AddCredential(ctx, openaiInput("t1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if record.Status != domain.StatusActive || record.HealthScore != 100 {
		t.Fatalf("expected active/100, got %s/%d", record.Status, record.HealthScore)
	}
	if record.Ciphertext == "" || record.Nonce == "" || record.Salt == "" {
		t.Fatal("expected envelope fields to be populated")
	}
	if record.PlaintextHash == "" || strings.Contains(record.PlaintextHash, "sk-test") {
		t.Fatalf("unexpected plaintext hash %q", record.PlaintextHash)
	}
	if len(record.Capabilities) == 0 {
		t.Fatal("expected provider default capabilities")
	}

	env.manager.Wait()
	if env.validator.count() != 1 {
		t.Fatalf("expected one validation pass, got %d", env.validator.count())
	}
}

func TestManagerAddCredentialDuplicate(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()

	if _, err := env.manager.AddCredential(ctx, openaiInput("t1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err := env.manager.AddCredential(ctx, openaiInput("t1"))
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	list, err := env.credentials.ListByTenant(ctx, "t1", store.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("duplicate add must not write, found %d records", list.Total)
	}

	// Same payload under another tenant is fine.
	if _, err := env.manager.AddCredential(ctx, openaiInput("t2")); err != nil {
		t.Fatalf("cross-tenant add: %v", err)
	}
}

func TestManagerAddCredentialRejectsBadPayload(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()

	in := openaiInput("t1")
	in.Payload = map[string]any{"apiKey": "not-an-openai-key"}
	_, err := env.manager.AddCredential(ctx, in)
	var verr *providers.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	in = openaiInput("t1")
	in.Environment = "qa"
	if _, err := env.manager.AddCredential(ctx, in); !errors.Is(err, ErrInvalidEnvironment) {
		t.Fatalf("expected invalid environment, got %v", err)
	}
}

func TestManagerEndToEnd(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()

	record, err := env.manager.AddCredential(ctx, openaiInput("t1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	active, err := env.manager.GetActiveCredential(ctx, "t1", "openai", domain.EnvProduction)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.Payload["apiKey"] != "sk-test-1234567890" {
		t.Fatalf("decrypted payload mismatch: %v", active.Payload["apiKey"])
	}
	if active.Record.ID != record.ID {
		t.Fatalf("unexpected record %s", active.Record.ID)
	}
	if active.SystemDefault {
		t.Fatal("tenant-owned credential flagged as system default")
	}

	if err := env.manager.DeleteCredential(ctx, "t1", record.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err = env.manager.GetActiveCredential(ctx, "t1", "openai", domain.EnvProduction)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestManagerGetActiveSystemFallback(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()
	env.defaults.payloads["openai"] = map[string]any{"apiKey": "sk-system-default-00"}

	// Without the opt-in the caller sees not-found.
	_, err := env.manager.GetActiveCredential(ctx, "t1", "openai", domain.EnvProduction)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	active, err := env.manager.GetActiveCredential(ctx, "t1", "openai", domain.EnvProduction, WithSystemFallback())
	if err != nil {
		t.Fatalf("get with fallback: %v", err)
	}
	if !active.SystemDefault {
		t.Fatal("expected system default flag")
	}
	if active.Payload["apiKey"] != "sk-system-default-00" {
		t.Fatalf("unexpected payload %v", active.Payload)
	}
}

func TestManagerUpdateCredentialRotation(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()

	record, err := env.manager.AddCredential(ctx, openaiInput("t1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	env.manager.Wait()
	originalHash := record.PlaintextHash

	alias := "rotated"
	updated, err := env.manager.UpdateCredential(ctx, "t1", record.ID, UpdateInput{
		Alias:   &alias,
		Payload: map[string]any{"apiKey": "sk-rotated-0987654321"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Alias != "rotated" {
		t.Fatalf("alias not applied: %s", updated.Alias)
	}
	if updated.PlaintextHash == originalHash {
		t.Fatal("rotation must change the payload hash")
	}
	if updated.Status != domain.StatusActive || updated.HealthScore != 100 {
		t.Fatalf("rotation must reset health, got %s/%d", updated.Status, updated.HealthScore)
	}

	env.manager.Wait()
	if env.validator.count() != 2 {
		t.Fatalf("expected re-validation after rotation, got %d passes", env.validator.count())
	}

	active, err := env.manager.GetActiveCredential(ctx, "t1", "openai", domain.EnvProduction)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.Payload["apiKey"] != "sk-rotated-0987654321" {
		t.Fatalf("expected rotated payload, got %v", active.Payload["apiKey"])
	}
}

func TestManagerUpdateWrongTenant(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()

	record, err := env.manager.AddCredential(ctx, openaiInput("t1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	alias := "stolen"
	_, err = env.manager.UpdateCredential(ctx, "t2", record.ID, UpdateInput{Alias: &alias})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found for foreign tenant, got %v", err)
	}
}

func TestManagerDeleteEvictsBreaker(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()

	record, err := env.manager.AddCredential(ctx, openaiInput("t1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := env.manager.DeleteCredential(ctx, "t1", record.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	env.breakers.mu.Lock()
	defer env.breakers.mu.Unlock()
	if len(env.breakers.removed) != 1 || env.breakers.removed[0] != record.ID {
		t.Fatalf("expected breaker eviction for %s, got %v", record.ID, env.breakers.removed)
	}
}

func TestManagerAuditTrailIsRedacted(t *testing.T) {
	env := setupManager(t)
	ctx := context.Background()

	record, err := env.manager.AddCredential(ctx, openaiInput("t1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := env.manager.GetActiveCredential(ctx, "t1", "openai", domain.EnvProduction); err != nil {
		t.Fatalf("get active: %v", err)
	}
	if err := env.manager.DeleteCredential(ctx, "t1", record.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	events, err := env.audits.ListByTenant(ctx, "t1", store.ListOptions{})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if events.Total < 3 {
		t.Fatalf("expected create/use/delete events, got %d", events.Total)
	}
	for _, evt := range events.Items {
		for _, snapshot := range []domain.JSONMap{evt.OldValues, evt.NewValues, evt.Context} {
			assertNoSecrets(t, snapshot)
		}
	}
}

func assertNoSecrets(t *testing.T, values domain.JSONMap) {
	t.Helper()
	for key, value := range values {
		lower := strings.ToLower(key)
		for _, banned := range []string{"apikey", "secret", "token", "password", "ciphertext", "nonce"} {
			if lower == banned {
				t.Fatalf("audit snapshot leaked field %q", key)
			}
		}
		if nested, ok := value.(map[string]any); ok {
			assertNoSecrets(t, domain.JSONMap(nested))
		}
	}
}
