package audit

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/goliatone/go-credentials/pkg/interfaces/logger"
	"github.com/goliatone/go-credentials/pkg/interfaces/store"
	"github.com/goliatone/go-credentials/pkg/redact"
	"github.com/google/uuid"
)

// Dependencies groups what the audit service needs.
type Dependencies struct {
	Events    store.AuditEventRepository
	Logger    logger.Logger
	Retention time.Duration
}

// Service writes sanitized, append-only audit events. Logging is
// best-effort: persistence failures are reported on the operational log and
// never propagate to the caller.
type Service struct {
	events    store.AuditEventRepository
	logger    logger.Logger
	retention time.Duration
	now       func() time.Time
}

var ErrMissingEventsRepository = errors.New("audit: events repository is required")

// New builds the audit service.
func New(deps Dependencies) (*Service, error) {
	if deps.Events == nil {
		return nil, ErrMissingEventsRepository
	}
	if deps.Logger == nil {
		deps.Logger = &logger.Nop{}
	}
	if deps.Retention <= 0 {
		deps.Retention = 90 * 24 * time.Hour
	}
	return &Service{
		events:    deps.Events,
		logger:    deps.Logger,
		retention: deps.Retention,
		now:       time.Now,
	}, nil
}

// Log sanitizes and persists one audit event. It never returns an error and
// never panics the primary operation: a failed write is downgraded to a
// warning on the operational channel.
func (s *Service) Log(ctx context.Context, evt domain.AuditEvent) {
	evt.OldValues = domain.JSONMap(redact.Sanitize(evt.OldValues))
	evt.NewValues = domain.JSONMap(redact.Sanitize(evt.NewValues))
	evt.Context = domain.JSONMap(redact.Sanitize(evt.Context))
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.now().UTC()
	}

	if err := s.events.Create(ctx, &evt); err != nil {
		s.logger.Warn("audit write failed",
			logger.F("tenant_id", evt.TenantID),
			logger.F("event_type", string(evt.EventType)),
			logger.F("action", evt.Action),
			logger.F("error", err.Error()),
		)
	}
}

// ByTenant returns the audit trail for one tenant.
func (s *Service) ByTenant(ctx context.Context, tenantID string, opts store.ListOptions) (store.ListResult[domain.AuditEvent], error) {
	return s.events.ListByTenant(ctx, tenantID, opts)
}

// ByCredential returns the audit trail for one credential.
func (s *Service) ByCredential(ctx context.Context, credentialID uuid.UUID, opts store.ListOptions) (store.ListResult[domain.AuditEvent], error) {
	return s.events.ListByCredential(ctx, credentialID, opts)
}

// Purge drops events older than the retention window and reports how many
// were removed.
func (s *Service) Purge(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	return s.events.Purge(ctx, cutoff)
}
