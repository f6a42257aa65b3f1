package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/logger"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/validator"
	"github.com/robfig/cron/v3"
)

// BatchValidator revalidates a set of credentials with bounded concurrency.
type BatchValidator interface {
	ValidateBatch(ctx context.Context, records []*domain.Credential) []validator.BatchOutcome
}

// AuditPurger drops audit events past their retention window.
type AuditPurger interface {
	Purge(ctx context.Context) (int, error)
}

var (
	ErrMissingCredentialsRepository = errors.New("maintenance: credentials repository is required")
	ErrMissingValidator             = errors.New("maintenance: validator is required")
	ErrMissingPurger                = errors.New("maintenance: audit purger is required")
	ErrAlreadyStarted               = errors.New("maintenance: runner already started")
)

// Dependencies bundles what the runner needs.
type Dependencies struct {
	Credentials store.CredentialRepository
	Validator   BatchValidator
	Audit       AuditPurger
	Logger      logger.Logger
	// RevalidateSpec and PurgeSpec are cron expressions; defaults are
	// hourly revalidation and daily purge.
	RevalidateSpec string
	PurgeSpec      string
	// JobTimeout bounds each background sweep.
	JobTimeout time.Duration
}

// Runner drives periodic revalidation of active credentials and audit
// retention purges on a cron schedule.
type Runner struct {
	credentials store.CredentialRepository
	validator   BatchValidator
	audit       AuditPurger
	logger      logger.Logger
	cron        *cron.Cron

	revalidateSpec string
	purgeSpec      string
	jobTimeout     time.Duration
	started        bool
	registered     bool
}

// New constructs a runner. Start must be called to begin scheduling.
func New(deps Dependencies) (*Runner, error) {
	if deps.Credentials == nil {
		return nil, ErrMissingCredentialsRepository
	}
	if deps.Validator == nil {
		return nil, ErrMissingValidator
	}
	if deps.Audit == nil {
		return nil, ErrMissingPurger
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}
	if deps.RevalidateSpec == "" {
		deps.RevalidateSpec = "@every 1h"
	}
	if deps.PurgeSpec == "" {
		deps.PurgeSpec = "@daily"
	}
	if deps.JobTimeout <= 0 {
		deps.JobTimeout = 10 * time.Minute
	}
	return &Runner{
		credentials:    deps.Credentials,
		validator:      deps.Validator,
		audit:          deps.Audit,
		logger:         deps.Logger,
		cron:           cron.New(),
		revalidateSpec: deps.RevalidateSpec,
		purgeSpec:      deps.PurgeSpec,
		jobTimeout:     deps.JobTimeout,
	}, nil
}

// Start registers the jobs and begins the schedule.
func (r *Runner) Start() error {
	if r.started {
		return ErrAlreadyStarted
	}
	if !r.registered {
		if _, err := r.cron.AddFunc(r.revalidateSpec, r.revalidateJob); err != nil {
			return err
		}
		if _, err := r.cron.AddFunc(r.purgeSpec, r.purgeJob); err != nil {
			return err
		}
		r.registered = true
	}
	r.cron.Start()
	r.started = true
	return nil
}

// Stop halts the schedule and waits for running jobs to finish.
func (r *Runner) Stop() {
	if !r.started {
		return
	}
	<-r.cron.Stop().Done()
	r.started = false
}

func (r *Runner) revalidateJob() {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()
	if err := r.RunRevalidation(ctx); err != nil {
		r.logger.Error("revalidation sweep failed", logger.F("error", err.Error()))
	}
}

func (r *Runner) purgeJob() {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()
	if err := r.RunPurge(ctx); err != nil {
		r.logger.Error("audit purge failed", logger.F("error", err.Error()))
	}
}

// RunRevalidation sweeps every usable credential through a validation pass.
func (r *Runner) RunRevalidation(ctx context.Context) error {
	const pageSize = 200
	offset := 0
	now := time.Now()
	var batch []*domain.Credential

	for {
		page, err := r.credentials.List(ctx, store.ListOptions{Limit: pageSize, Offset: offset})
		if err != nil {
			return err
		}
		for i := range page.Items {
			cred := page.Items[i]
			if cred.Usable(now) {
				batch = append(batch, &cred)
			}
		}
		offset += len(page.Items)
		if len(page.Items) < pageSize || offset >= page.Total {
			break
		}
	}

	if len(batch) == 0 {
		return nil
	}

	outcomes := r.validator.ValidateBatch(ctx, batch)
	failed := 0
	for _, outcome := range outcomes {
		if outcome.Err != nil || (outcome.Result != nil && !outcome.Result.Passed) {
			failed++
		}
	}
	r.logger.Info("revalidation sweep finished",
		logger.F("validated", len(outcomes)),
		logger.F("failed", failed))
	return nil
}

// RunPurge drops audit events past retention.
func (r *Runner) RunPurge(ctx context.Context) error {
	dropped, err := r.audit.Purge(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("audit purge finished", logger.F("dropped", dropped))
	return nil
}
