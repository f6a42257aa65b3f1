package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/pkg/audit"
	"github.com/goliatone/go-credentials/pkg/cache"
	"github.com/goliatone/go-credentials/pkg/config"
	"github.com/goliatone/go-credentials/pkg/crypto"
	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/envmigrate"
	"github.com/goliatone/go-credentials/pkg/interfaces/logger"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/providers"
	"github.com/goliatone/go-credentials/pkg/storage"
	"github.com/goliatone/go-credentials/pkg/validator"
	"github.com/goliatone/go-credentials/pkg/vault"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// version is set by ldflags at build time.
var version = "dev"

type services struct {
	db        *bun.DB
	providers storage.Providers
	vault     *vault.Manager
	validator *validator.Service
	audit     *audit.Service
	registry  *providers.Registry
	log       logger.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string

	rootCmd := &cobra.Command{
		Use:     "vaultctl",
		Short:   "manage the multi-tenant credential vault",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "vault.db", "path to the sqlite database")

	rootCmd.AddCommand(newMigrateCmd(&dbPath))
	rootCmd.AddCommand(newListCmd(&dbPath))
	rootCmd.AddCommand(newValidateCmd(&dbPath))
	rootCmd.AddCommand(newReportCmd(&dbPath))
	return rootCmd
}

func newMigrateCmd(dbPath *string) *cobra.Command {
	var tenantID, env string
	var confirm, overwrite bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "import provider credentials from environment variables",
		Long: `Scans the process environment for known provider variables
(OPENAI_API_KEY, TWILIO_ACCOUNT_SID, ...) and prints a per-provider plan.
Nothing is written unless --confirm is passed. Existing credentials for the
same tenant/provider scope are never replaced unless --overwrite is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(*dbPath)
			if err != nil {
				return err
			}
			defer svc.db.Close()

			migrator, err := envmigrate.New(envmigrate.Dependencies{
				Providers:   svc.registry,
				Vault:       svc.vault,
				Credentials: svc.providers.Credentials,
				Logger:      svc.log,
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			plan, err := migrator.Plan(ctx, environMap(), tenantID, domain.Environment(env))
			if err != nil {
				return err
			}

			for _, item := range plan.Items {
				fmt.Printf("%-12s %-8s %s\n", item.Provider, item.Action, item.Reason)
				for field, masked := range item.Preview {
					fmt.Printf("%14s%s = %s\n", "", field, masked)
				}
			}
			if !confirm {
				fmt.Println("\ndry run; pass --confirm to apply")
				return nil
			}

			results, err := migrator.Apply(ctx, plan, envmigrate.Options{Confirm: confirm, Overwrite: overwrite})
			if err != nil {
				return err
			}
			for _, result := range results {
				switch {
				case result.Err != nil:
					fmt.Printf("%-12s error: %v\n", result.Provider, result.Err)
				case result.Applied:
					fmt.Printf("%-12s migrated as %s\n", result.Provider, result.CredentialID)
				default:
					fmt.Printf("%-12s skipped: %s\n", result.Provider, result.Reason)
				}
			}
			svc.vault.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "owning tenant id (required)")
	cmd.Flags().StringVar(&env, "env", "production", "environment tag")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "apply the plan instead of printing it")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing credentials for the same scope")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newListCmd(dbPath *string) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list a tenant's credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(*dbPath)
			if err != nil {
				return err
			}
			defer svc.db.Close()

			list, err := svc.vault.ListCredentials(cmd.Context(), tenantID, store.ListOptions{})
			if err != nil {
				return err
			}
			if list.Total == 0 {
				fmt.Println("no credentials")
				return nil
			}
			fmt.Printf("%-36s %-12s %-12s %-12s %-8s %s\n", "ID", "PROVIDER", "ENV", "STATUS", "HEALTH", "ALIAS")
			for _, cred := range list.Items {
				fmt.Printf("%-36s %-12s %-12s %-12s %-8d %s\n",
					cred.ID, cred.Provider, cred.Environment, cred.Status, cred.HealthScore, cred.Alias)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "owning tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newValidateCmd(dbPath *string) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "run health-check probes against a tenant's credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(*dbPath)
			if err != nil {
				return err
			}
			defer svc.db.Close()

			ctx := cmd.Context()
			list, err := svc.vault.ListCredentials(ctx, tenantID, store.ListOptions{})
			if err != nil {
				return err
			}
			records := make([]*domain.Credential, 0, len(list.Items))
			for i := range list.Items {
				records = append(records, &list.Items[i])
			}
			if len(records) == 0 {
				fmt.Println("no credentials to validate")
				return nil
			}

			for _, outcome := range svc.validator.ValidateBatch(ctx, records) {
				switch {
				case outcome.Err != nil:
					fmt.Printf("%-36s error: %v\n", outcome.CredentialID, outcome.Err)
				case outcome.Result.Passed:
					fmt.Printf("%-36s ok (score %d, %dms)\n", outcome.CredentialID, outcome.Result.Score, outcome.Result.LatencyMS)
				default:
					fmt.Printf("%-36s failed: %s\n", outcome.CredentialID, outcome.Result.ProviderError)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "owning tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newReportCmd(dbPath *string) *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "report",
		Short: "summarize audit activity over a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices(*dbPath)
			if err != nil {
				return err
			}
			defer svc.db.Close()

			report, err := svc.audit.Report(cmd.Context(), time.Now().Add(-window), time.Time{})
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
	cmd.Flags().DurationVar(&window, "window", 7*24*time.Hour, "reporting window")
	return cmd
}

func buildServices(dbPath string) (*services, error) {
	masterKey := os.Getenv("VAULT_MASTER_KEY")
	if masterKey == "" {
		return nil, fmt.Errorf("vaultctl: VAULT_MASTER_KEY is required")
	}

	cryptoSvc, err := crypto.New(masterKey)
	if err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(sqliteshim.DriverName(), dbPath)
	if err != nil {
		return nil, fmt.Errorf("vaultctl: open db: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	log := logger.New()
	cfg := config.Defaults()
	repos := storage.NewBunProviders(db)
	registry := providers.DefaultRegistry()
	credCache := cache.NewMemory()

	auditSvc, err := audit.New(audit.Dependencies{
		Events:    repos.Audits,
		Logger:    log,
		Retention: cfg.Audit.Retention,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	validatorSvc, err := validator.New(validator.Dependencies{
		Credentials: repos.Credentials,
		Validations: repos.Validations,
		Crypto:      cryptoSvc,
		Providers:   registry,
		Audit:       auditSvc,
		Cache:       credCache,
		Logger:      log,
		Config:      cfg.Validator,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	manager, err := vault.New(vault.Dependencies{
		Credentials: repos.Credentials,
		Tenants:     repos.Tenants,
		Crypto:      cryptoSvc,
		Providers:   registry,
		Validator:   validatorSvc,
		Audit:       auditSvc,
		Cache:       credCache,
		Logger:      log,
		Config:      cfg,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &services{
		db:        db,
		providers: repos,
		vault:     manager,
		validator: validatorSvc,
		audit:     auditSvc,
		registry:  registry,
		log:       log,
	}, nil
}

func createTables(db *bun.DB) error {
	ctx := context.Background()
	models := []any{
		(*domain.Tenant)(nil),
		(*domain.Credential)(nil),
		(*domain.ValidationResult)(nil),
		(*domain.FallbackChain)(nil),
		(*domain.AuditEvent)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("vaultctl: create table: %w", err)
		}
	}
	return nil
}

func environMap() map[string]string {
	environ := map[string]string{}
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			environ[key] = value
		}
	}
	return environ
}
