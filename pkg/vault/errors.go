package vault

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/google/uuid"
)

var (
	ErrMissingCredentialsRepository = errors.New("vault: credentials repository is required")
	ErrMissingTenantsRepository     = errors.New("vault: tenants repository is required")
	ErrMissingCrypto                = errors.New("vault: crypto service is required")
	ErrMissingRegistry              = errors.New("vault: provider registry is required")
	ErrInvalidEnvironment           = errors.New("vault: invalid environment")
)

// DuplicateError signals that the tenant already holds a credential with the
// same plaintext. No write is performed.
type DuplicateError struct {
	TenantID   string
	Provider   string
	ExistingID uuid.UUID
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("vault: tenant %s already holds this %s credential (%s)", e.TenantID, e.Provider, e.ExistingID)
}

// NotFoundError reports a missing credential for a lookup or scope.
type NotFoundError struct {
	TenantID    string
	Provider    string
	Environment domain.Environment
	ID          uuid.UUID
}

func (e *NotFoundError) Error() string {
	if e.ID != uuid.Nil {
		return fmt.Sprintf("vault: credential %s not found for tenant %s", e.ID, e.TenantID)
	}
	return fmt.Sprintf("vault: no usable %s credential for tenant %s in %s", e.Provider, e.TenantID, e.Environment)
}
