package validator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-credentials/internal/storage/memory"
	"github.com/goliatone/go-credentials/pkg/cache"
	"github.com/goliatone/go-credentials/pkg/config"
	"github.com/goliatone/go-credentials/pkg/crypto"
	"github.com/goliatone/go-credentials/pkg/domain"
	cacheiface "github.com/goliatone/go-credentials/pkg/interfaces/cache"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/providers"
)

const testMasterKey = "Zq3!x8Lw0#tVbN5m^RdK1pYcE7uHgJ2aQ9sF6iTnXoPk"

const testSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["apiKey"],
	"properties": {"apiKey": {"type": "string"}}
}`

type harness struct {
	service     *Service
	credentials *memory.CredentialRepository
	validations *memory.ValidationResultRepository
	crypto      *crypto.Service
	registry    *providers.Registry
	cache       *cache.Memory
}

func setupValidator(t *testing.T, probes []providers.Probe) *harness {
	t.Helper()

	svc, err := crypto.New(testMasterKey)
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}

	registry := providers.NewRegistry()
	err = registry.Register(providers.Definition{
		Type:   "probeprov",
		Schema: testSchema,
		Auth: func(payload map[string]any) (http.Header, error) {
			header := http.Header{}
			header.Set("Authorization", "Bearer "+payload["apiKey"].(string))
			return header, nil
		},
		Probes: probes,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	credentials := memory.NewCredentialRepository()
	validations := memory.NewValidationResultRepository()
	credCache := cache.NewMemory()
	service, err := New(Dependencies{
		Credentials: credentials,
		Validations: validations,
		Crypto:      svc,
		Providers:   registry,
		Cache:       credCache,
		Config:      config.Defaults().Validator,
	})
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return &harness{
		service:     service,
		credentials: credentials,
		validations: validations,
		crypto:      svc,
		registry:    registry,
		cache:       credCache,
	}
}

func (h *harness) seedCredential(t *testing.T, status domain.CredentialStatus) *domain.Credential {
	t.Helper()

	payload := map[string]any{"apiKey": "probe-key-123"}
	env, err := h.crypto.Encrypt(payload, "t1")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	cred := &domain.Credential{
		TenantID:      "t1",
		Provider:      "probeprov",
		Environment:   domain.EnvProduction,
		Ciphertext:    env.Ciphertext,
		Nonce:         env.Nonce,
		Salt:          env.Salt,
		PlaintextHash: crypto.HashPayload(payload),
		Status:        status,
		HealthScore:   100,
	}
	if err := h.credentials.Create(context.Background(), cred); err != nil {
		t.Fatalf("create: %v", err)
	}
	return cred
}

func TestValidatePassingProbe(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h := setupValidator(t, []providers.Probe{
		{Name: "ping", Method: http.MethodGet, URL: server.URL, ExpectStatus: []int{200}, Required: true},
	})
	cred := h.seedCredential(t, domain.StatusActive)

	result, err := h.service.Validate(context.Background(), cred)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Passed || result.Score != 100 {
		t.Fatalf("expected pass at 100, got %v/%d", result.Passed, result.Score)
	}
	if gotAuth != "Bearer probe-key-123" {
		t.Fatalf("auth header not applied: %q", gotAuth)
	}

	stored, err := h.credentials.GetByID(context.Background(), cred.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.StatusActive || stored.HealthScore != 100 {
		t.Fatalf("unexpected stored state %s/%d", stored.Status, stored.HealthScore)
	}
	if stored.LastValidatedAt.IsZero() {
		t.Fatal("expected validated timestamp")
	}

	rows, err := h.validations.ListByCredential(context.Background(), cred.ID, store.ListOptions{})
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if rows.Total != 1 {
		t.Fatalf("expected one result row, got %d", rows.Total)
	}
}

func TestValidateFailingProbeMarksInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	h := setupValidator(t, []providers.Probe{
		{Name: "ping", Method: http.MethodGet, URL: server.URL, ExpectStatus: []int{200}, Required: true},
	})
	cred := h.seedCredential(t, domain.StatusActive)

	result, err := h.service.Validate(context.Background(), cred)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Passed || result.Score != 0 {
		t.Fatalf("expected failure at score 0, got %v/%d", result.Passed, result.Score)
	}
	if result.ProviderError == "" {
		t.Fatal("expected provider error detail")
	}

	stored, err := h.credentials.GetByID(context.Background(), cred.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.StatusInvalid {
		t.Fatalf("expected invalid, got %s", stored.Status)
	}
	if stored.LastError == "" {
		t.Fatal("expected captured error")
	}
}

func TestValidateEvictsCachedCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	h := setupValidator(t, []providers.Probe{
		{Name: "ping", Method: http.MethodGet, URL: server.URL, ExpectStatus: []int{200}, Required: true},
	})
	cred := h.seedCredential(t, domain.StatusActive)

	// A reader warmed the look-aside before validation downgraded the record.
	ctx := context.Background()
	key := cacheiface.CredentialKey(cred.TenantID, cred.Provider, string(cred.Environment))
	if err := h.cache.Set(ctx, key, map[string]any{"apiKey": "probe-key-123"}, 5*time.Minute); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	if _, err := h.service.Validate(ctx, cred); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if _, hit, _ := h.cache.Get(ctx, key); hit {
		t.Fatal("stale decrypted credential still cached after status downgrade")
	}
	stored, err := h.credentials.GetByID(ctx, cred.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.StatusInvalid {
		t.Fatalf("expected invalid, got %s", stored.Status)
	}
}

func TestValidateRecoversInvalidCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h := setupValidator(t, []providers.Probe{
		{Name: "ping", Method: http.MethodGet, URL: server.URL, ExpectStatus: []int{200}, Required: true},
	})
	cred := h.seedCredential(t, domain.StatusInvalid)

	result, err := h.service.Validate(context.Background(), cred)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Passed {
		t.Fatal("expected pass")
	}

	stored, err := h.credentials.GetByID(context.Background(), cred.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.StatusActive {
		t.Fatalf("expected recovery to active, got %s", stored.Status)
	}
}

func TestValidateOptionalProbeDegradesScore(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	passing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer passing.Close()

	h := setupValidator(t, []providers.Probe{
		{Name: "extras", Method: http.MethodGet, URL: failing.URL, ExpectStatus: []int{200}},
		{Name: "ping", Method: http.MethodGet, URL: passing.URL, ExpectStatus: []int{200}, Required: true},
	})
	cred := h.seedCredential(t, domain.StatusActive)

	result, err := h.service.Validate(context.Background(), cred)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Passed {
		t.Fatal("optional probe failure must not fail the check")
	}
	if result.Score != 90 {
		t.Fatalf("expected score 90, got %d", result.Score)
	}
	if _, ran := result.Probes["ping"]; ran {
		t.Fatal("probes must stop at the first failure")
	}
}

func TestValidateTimeoutCountsAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h := setupValidator(t, []providers.Probe{
		{Name: "ping", Method: http.MethodGet, URL: server.URL, ExpectStatus: []int{200}, Timeout: 20 * time.Millisecond, Required: true},
	})
	cred := h.seedCredential(t, domain.StatusActive)

	result, err := h.service.Validate(context.Background(), cred)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Passed {
		t.Fatal("timed-out probe must count as a failure")
	}
}

func TestValidateBatchToleratesFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h := setupValidator(t, []providers.Probe{
		{Name: "ping", Method: http.MethodGet, URL: server.URL, ExpectStatus: []int{200}, Required: true},
	})

	records := make([]*domain.Credential, 0, 4)
	for i := 0; i < 3; i++ {
		records = append(records, h.seedCredentialWithKey(t, domain.StatusActive, "probe-key-"+string(rune('a'+i))))
	}
	// A record with garbage cipher material fails with a system error.
	broken := h.seedCredentialWithKey(t, domain.StatusActive, "probe-key-z")
	broken.Ciphertext = "bm90LXJlYWwtY2lwaGVydGV4dA=="
	records = append(records, broken)

	outcomes := h.service.ValidateBatch(context.Background(), records)
	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
	}
	for i := 0; i < 3; i++ {
		if outcomes[i].Err != nil {
			t.Fatalf("outcome %d: %v", i, outcomes[i].Err)
		}
		if !outcomes[i].Result.Passed {
			t.Fatalf("outcome %d should pass", i)
		}
	}
	if outcomes[3].Err == nil {
		t.Fatal("expected decrypt failure for tampered record")
	}
}

func (h *harness) seedCredentialWithKey(t *testing.T, status domain.CredentialStatus, key string) *domain.Credential {
	t.Helper()

	payload := map[string]any{"apiKey": key}
	env, err := h.crypto.Encrypt(payload, "t1")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	cred := &domain.Credential{
		TenantID:      "t1",
		Provider:      "probeprov",
		Environment:   domain.EnvProduction,
		Ciphertext:    env.Ciphertext,
		Nonce:         env.Nonce,
		Salt:          env.Salt,
		PlaintextHash: crypto.HashPayload(payload),
		Status:        status,
		HealthScore:   100,
	}
	if err := h.credentials.Create(context.Background(), cred); err != nil {
		t.Fatalf("create: %v", err)
	}
	return cred
}
