package commands

import (
	"context"
	"testing"

	"github.com/goliatone/go-credentials/internal/storage/memory"
	"github.com/goliatone/go-credentials/pkg/config"
	"github.com/goliatone/go-credentials/pkg/crypto"
	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/providers"
	"github.com/goliatone/go-credentials/pkg/vault"
	"github.com/google/uuid"
)

const testMasterKey = "Zq3!x8Lw0#tVbN5m^RdK1pYcE7uHgJ2aQ9sF6iTnXoPk"

func setupCatalog(t *testing.T) (*Catalog, *memory.CredentialRepository, *memory.FallbackChainRepository) {
	t.Helper()

	svc, err := crypto.New(testMasterKey)
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}
	credentials := memory.NewCredentialRepository()
	chains := memory.NewFallbackChainRepository()
	manager, err := vault.New(vault.Dependencies{
		Credentials: credentials,
		Tenants:     memory.NewTenantRepository(),
		Crypto:      svc,
		Providers:   providers.DefaultRegistry(),
		Config:      config.Defaults(),
	})
	if err != nil {
		t.Fatalf("vault: %v", err)
	}

	catalog, err := NewCatalog(Dependencies{Vault: manager, Chains: chains})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return catalog, credentials, chains
}

func TestCreateCredentialCommand(t *testing.T) {
	catalog, credentials, _ := setupCatalog(t)
	ctx := context.Background()

	err := catalog.CreateCredential.Execute(ctx, CreateCredential{
		TenantID:    "t1",
		Provider:    "openai",
		Alias:       "primary",
		Environment: "production",
		Payload:     map[string]any{"apiKey": "sk-test-1234567890"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	list, err := credentials.ListByTenant(ctx, "t1", store.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("expected one credential, got %d", list.Total)
	}

	if err := catalog.CreateCredential.Execute(ctx, CreateCredential{Provider: "openai"}); err == nil {
		t.Fatal("expected tenant id validation")
	}
}

func TestRotateAndDeleteCredentialCommands(t *testing.T) {
	catalog, credentials, _ := setupCatalog(t)
	ctx := context.Background()

	if err := catalog.CreateCredential.Execute(ctx, CreateCredential{
		TenantID:    "t1",
		Provider:    "openai",
		Environment: "production",
		Payload:     map[string]any{"apiKey": "sk-test-1234567890"},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	list, _ := credentials.ListByTenant(ctx, "t1", store.ListOptions{})
	id := list.Items[0].ID

	err := catalog.RotateCredential.Execute(ctx, RotateCredential{
		TenantID:     "t1",
		CredentialID: id.String(),
		Payload:      map[string]any{"apiKey": "sk-rotated-0987654321"},
	})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	rotated, err := credentials.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rotated.PlaintextHash == list.Items[0].PlaintextHash {
		t.Fatal("rotation must change the payload hash")
	}

	if err := catalog.RotateCredential.Execute(ctx, RotateCredential{TenantID: "t1", CredentialID: "not-a-uuid"}); err == nil {
		t.Fatal("expected id validation")
	}

	if err := catalog.DeleteCredential.Execute(ctx, DeleteCredential{TenantID: "t1", CredentialID: id.String()}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = credentials.ListByTenant(ctx, "t1", store.ListOptions{})
	if list.Total != 0 {
		t.Fatalf("expected empty vault, got %d", list.Total)
	}
}

func TestUpsertFallbackChainCommand(t *testing.T) {
	catalog, _, chains := setupCatalog(t)
	ctx := context.Background()

	primary := uuid.New()
	err := catalog.UpsertFallbackChain.Execute(ctx, UpsertFallbackChain{
		TenantID:     "t1",
		Provider:     "OpenAI",
		Environment:  "production",
		PrimaryID:    primary.String(),
		FallbackIDs:  []string{uuid.NewString()},
		MaxRetries:   3,
		RetryDelayMS: 250,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	chain, err := chains.GetByScope(ctx, "t1", "openai", domain.EnvProduction)
	if err != nil {
		t.Fatalf("get by scope: %v", err)
	}
	if chain.PrimaryID != primary || chain.MaxRetries != 3 {
		t.Fatalf("unexpected chain %+v", chain)
	}

	// Second upsert replaces the policy in place.
	err = catalog.UpsertFallbackChain.Execute(ctx, UpsertFallbackChain{
		TenantID:           "t1",
		Provider:           "openai",
		Environment:        "production",
		AllowSystemDefault: true,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	updated, err := chains.GetByScope(ctx, "t1", "openai", domain.EnvProduction)
	if err != nil {
		t.Fatalf("get by scope: %v", err)
	}
	if updated.ID != chain.ID || !updated.AllowSystemDefault || updated.PrimaryID != uuid.Nil {
		t.Fatalf("expected in-place replacement, got %+v", updated)
	}

	if err := catalog.UpsertFallbackChain.Execute(ctx, UpsertFallbackChain{TenantID: "t1", Provider: "openai", Environment: "qa"}); err == nil {
		t.Fatal("expected environment validation")
	}
}
