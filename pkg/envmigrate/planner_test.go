package envmigrate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-credentials/internal/storage/memory"
	"github.com/goliatone/go-credentials/pkg/config"
	"github.com/goliatone/go-credentials/pkg/crypto"
	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/providers"
	"github.com/goliatone/go-credentials/pkg/vault"
)

const testMasterKey = "Zq3!x8Lw0#tVbN5m^RdK1pYcE7uHgJ2aQ9sF6iTnXoPk"

func setupMigrator(t *testing.T) (*Migrator, *memory.CredentialRepository) {
	t.Helper()

	svc, err := crypto.New(testMasterKey)
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}
	credentials := memory.NewCredentialRepository()
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

	migrator, err := New(Dependencies{
		Providers:   providers.DefaultRegistry(),
		Vault:       manager,
		Credentials: credentials,
	})
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	return migrator, credentials
}

func planItem(t *testing.T, plan *Plan, provider string) Item {
	t.Helper()
	for _, item := range plan.Items {
		if item.Provider == provider {
			return item
		}
	}
	t.Fatalf("no plan item for %s", provider)
	return Item{}
}

func TestPlanClassifiesProviders(t *testing.T) {
	migrator, _ := setupMigrator(t)
	ctx := context.Background()

	environ := map[string]string{
		"OPENAI_API_KEY":    "sk-test-1234567890",
		"ANTHROPIC_API_KEY": "not-an-anthropic-key",
	}
	plan, err := migrator.Plan(ctx, environ, "t1", domain.EnvProduction)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	openai := planItem(t, plan, "openai")
	if openai.Action != ActionMigrate {
		t.Fatalf("expected openai migrate, got %s (%s)", openai.Action, openai.Reason)
	}

	anthropic := planItem(t, plan, "anthropic")
	if anthropic.Action != ActionManual {
		t.Fatalf("expected anthropic manual, got %s", anthropic.Action)
	}
	if anthropic.Reason == "" {
		t.Fatal("manual item needs a reason")
	}

	twilio := planItem(t, plan, "twilio")
	if twilio.Action != ActionSkip {
		t.Fatalf("expected twilio skip, got %s", twilio.Action)
	}
}

func TestPlanPreviewIsMasked(t *testing.T) {
	migrator, _ := setupMigrator(t)
	ctx := context.Background()

	plan, err := migrator.Plan(ctx, map[string]string{"OPENAI_API_KEY": "sk-test-1234567890"}, "t1", domain.EnvProduction)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	openai := planItem(t, plan, "openai")
	preview := openai.Preview["apiKey"]
	if preview == "" {
		t.Fatal("expected masked preview")
	}
	if strings.Contains(preview, "test-1234567890") {
		t.Fatalf("preview leaks the secret: %q", preview)
	}
}

func TestApplyRequiresConfirmation(t *testing.T) {
	migrator, credentials := setupMigrator(t)
	ctx := context.Background()

	plan, err := migrator.Plan(ctx, map[string]string{"OPENAI_API_KEY": "sk-test-1234567890"}, "t1", domain.EnvProduction)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if _, err := migrator.Apply(ctx, plan, Options{}); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected confirmation guard, got %v", err)
	}
	list, err := credentials.ListByTenant(ctx, "t1", store.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Total != 0 {
		t.Fatalf("unconfirmed apply must not write, found %d records", list.Total)
	}
}

func TestApplyWritesMigrateItemsOnly(t *testing.T) {
	migrator, credentials := setupMigrator(t)
	ctx := context.Background()

	environ := map[string]string{
		"OPENAI_API_KEY":    "sk-test-1234567890",
		"ANTHROPIC_API_KEY": "not-an-anthropic-key",
	}
	plan, err := migrator.Plan(ctx, environ, "t1", domain.EnvProduction)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	results, err := migrator.Apply(ctx, plan, Options{Confirm: true})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	applied := 0
	for _, result := range results {
		if result.Applied {
			applied++
			if result.Provider != "openai" {
				t.Fatalf("unexpected applied provider %s", result.Provider)
			}
		}
	}
	if applied != 1 {
		t.Fatalf("expected one applied item, got %d", applied)
	}

	list, err := credentials.ListByTenant(ctx, "t1", store.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("expected one credential, got %d", list.Total)
	}
	if list.Items[0].Provider != "openai" {
		t.Fatalf("unexpected provider %s", list.Items[0].Provider)
	}
}

func TestApplyNeverOverwritesUnlessTold(t *testing.T) {
	migrator, credentials := setupMigrator(t)
	ctx := context.Background()

	environ := map[string]string{"OPENAI_API_KEY": "sk-test-1234567890"}
	plan, err := migrator.Plan(ctx, environ, "t1", domain.EnvProduction)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if _, err := migrator.Apply(ctx, plan, Options{Confirm: true}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	list, err := credentials.ListByTenant(ctx, "t1", store.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	originalID := list.Items[0].ID

	// A second pass sees the existing record and plans a skip.
	environ["OPENAI_API_KEY"] = "sk-replacement-key-99"
	plan, err = migrator.Plan(ctx, environ, "t1", domain.EnvProduction)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	openai := planItem(t, plan, "openai")
	if openai.Action != ActionSkip || openai.ExistingID != originalID {
		t.Fatalf("expected skip for existing scope, got %s", openai.Action)
	}

	if _, err := migrator.Apply(ctx, plan, Options{Confirm: true}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	list, _ = credentials.ListByTenant(ctx, "t1", store.ListOptions{})
	if list.Total != 1 || list.Items[0].ID != originalID {
		t.Fatal("apply without overwrite must leave the record alone")
	}

	// Overwrite replaces it.
	results, err := migrator.Apply(ctx, plan, Options{Confirm: true, Overwrite: true})
	if err != nil {
		t.Fatalf("apply overwrite: %v", err)
	}
	var replacement Result
	for _, result := range results {
		if result.Provider == "openai" {
			replacement = result
		}
	}
	if !replacement.Applied {
		t.Fatalf("expected overwrite to apply: %+v", replacement)
	}
	list, _ = credentials.ListByTenant(ctx, "t1", store.ListOptions{})
	if list.Total != 1 || list.Items[0].ID == originalID {
		t.Fatal("overwrite must replace the record")
	}
}
