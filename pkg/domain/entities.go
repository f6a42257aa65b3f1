package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RecordMeta captures identifiers and timestamps shared across entities.
type RecordMeta struct {
	ID        uuid.UUID `bun:",pk,type:uuid" json:"id"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt time.Time `bun:",soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureID assigns a UUID when the struct is about to be persisted.
func (m *RecordMeta) EnsureID() {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
}

// JSONMap persists arbitrary metadata fields as JSON.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if m == nil {
		return errors.New("JSONMap: Scan on nil pointer")
	}
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("JSONMap: unsupported type %T", value)
	}
}

// StringList stores []string as JSON.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	return json.Marshal([]string(s))
}

func (s *StringList) Scan(value any) error {
	if s == nil {
		return errors.New("StringList: Scan on nil pointer")
	}
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(s))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(s))
	default:
		return fmt.Errorf("StringList: unsupported type %T", value)
	}
}

// Environment tags a credential for a deployment stage.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Valid reports whether the environment tag is one of the known stages.
func (e Environment) Valid() bool {
	switch e {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// CredentialStatus tracks the lifecycle state of a stored credential.
type CredentialStatus string

const (
	StatusActive      CredentialStatus = "active"
	StatusInactive    CredentialStatus = "inactive"
	StatusInvalid     CredentialStatus = "invalid"
	StatusExpired     CredentialStatus = "expired"
	StatusRateLimited CredentialStatus = "rate_limited"
	StatusSuspended   CredentialStatus = "suspended"
)

// AuditEventType classifies audit trail entries.
type AuditEventType string

const (
	EventCreate   AuditEventType = "create"
	EventUpdate   AuditEventType = "update"
	EventDelete   AuditEventType = "delete"
	EventValidate AuditEventType = "validate"
	EventUse      AuditEventType = "use"
)

// Tenant is an owning principal. Rows are created lazily on the first
// credential write and never hard-deleted. Key-derivation salts live on each
// encrypted envelope, not on the tenant row.
type Tenant struct {
	bun.BaseModel `bun:"table:vault_tenants"`

	RecordMeta
	TenantID string  `bun:",notnull,unique" json:"tenant_id"`
	Settings JSONMap `bun:",type:jsonb" json:"settings,omitempty"`
}

// Credential is the central vault entity. The secret payload only exists as
// an AES-GCM envelope; PlaintextHash supports duplicate detection without
// storing anything reversible.
type Credential struct {
	bun.BaseModel `bun:"table:vault_credentials"`

	RecordMeta
	TenantID        string           `bun:",notnull,unique:credential_payload" json:"tenant_id"`
	Provider        string           `bun:",notnull" json:"provider"`
	Alias           string           `json:"alias,omitempty"`
	Description     string           `json:"description,omitempty"`
	Environment     Environment      `bun:",notnull" json:"environment"`
	Ciphertext      string           `bun:",notnull" json:"-"`
	Nonce           string           `bun:",notnull" json:"-"`
	Salt            string           `bun:",notnull" json:"-"`
	PlaintextHash   string           `bun:",notnull,unique:credential_payload" json:"-"`
	Metadata        JSONMap          `bun:",type:jsonb" json:"metadata,omitempty"`
	Capabilities    StringList       `json:"capabilities,omitempty"`
	Status          CredentialStatus `bun:",notnull" json:"status"`
	HealthScore     int              `bun:",notnull" json:"health_score"`
	LastError       string           `json:"last_error,omitempty"`
	LastValidatedAt time.Time        `bun:",nullzero" json:"last_validated_at,omitempty"`
	ExpiresAt       time.Time        `bun:",nullzero" json:"expires_at,omitempty"`
}

// Expired reports whether the credential has an elapsed expiry timestamp.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Usable reports whether the credential may be handed to a caller.
func (c *Credential) Usable(now time.Time) bool {
	return c.Status == StatusActive && !c.Expired(now)
}

// ValidationResult is one row per validation attempt. Append-only.
type ValidationResult struct {
	bun.BaseModel `bun:"table:vault_validation_results"`

	RecordMeta
	CredentialID  uuid.UUID `bun:",notnull,type:uuid" json:"credential_id"`
	Passed        bool      `bun:",notnull" json:"passed"`
	Score         int       `bun:",notnull" json:"score"`
	LatencyMS     int64     `json:"latency_ms"`
	Probes        JSONMap   `bun:",type:jsonb" json:"probes,omitempty"`
	ProviderError string    `json:"provider_error,omitempty"`
}

// FallbackChain defines the resolution policy for one
// (tenant, provider, environment) scope. Consulted, never mutated, during
// resolution.
type FallbackChain struct {
	bun.BaseModel `bun:"table:vault_fallback_chains"`

	RecordMeta
	TenantID           string        `bun:",notnull,unique:chain_scope" json:"tenant_id"`
	Provider           string        `bun:",notnull,unique:chain_scope" json:"provider"`
	Environment        Environment   `bun:",notnull,unique:chain_scope" json:"environment"`
	PrimaryID          uuid.UUID     `bun:",type:uuid,nullzero" json:"primary_id,omitempty"`
	FallbackIDs        StringList    `json:"fallback_ids,omitempty"`
	AllowSystemDefault bool          `json:"allow_system_default"`
	MaxRetries         int           `json:"max_retries"`
	RetryDelay         time.Duration `json:"retry_delay"`
	FailureThreshold   int           `json:"failure_threshold"`
	RecoveryWindow     time.Duration `json:"recovery_window"`
	SuccessThreshold   int           `json:"success_threshold"`
}

// Candidates returns the ordered credential ids the chain names, primary
// first, skipping unparseable entries.
func (c *FallbackChain) Candidates() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.FallbackIDs)+1)
	if c.PrimaryID != uuid.Nil {
		ids = append(ids, c.PrimaryID)
	}
	for _, raw := range c.FallbackIDs {
		if id, err := uuid.Parse(raw); err == nil && id != uuid.Nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// AuditEvent is an immutable audit trail entry. Secret-bearing fields are
// stripped before the event reaches persistence.
type AuditEvent struct {
	bun.BaseModel `bun:"table:vault_audit_events"`

	RecordMeta
	TenantID     string         `bun:",notnull" json:"tenant_id"`
	CredentialID uuid.UUID      `bun:",type:uuid,nullzero" json:"credential_id,omitempty"`
	EventType    AuditEventType `bun:",notnull" json:"event_type"`
	Action       string         `bun:",notnull" json:"action"`
	Success      bool           `bun:",notnull" json:"success"`
	OldValues    JSONMap        `bun:",type:jsonb" json:"old_values,omitempty"`
	NewValues    JSONMap        `bun:",type:jsonb" json:"new_values,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Context      JSONMap        `bun:",type:jsonb" json:"context,omitempty"`
}
