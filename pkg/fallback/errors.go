package fallback

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/google/uuid"
)

var (
	ErrMissingCredentialsRepository = errors.New("fallback: credentials repository is required")
	ErrMissingChainsRepository      = errors.New("fallback: chains repository is required")
	ErrMissingCrypto                = errors.New("fallback: crypto service is required")

	// ErrCircuitOpen is raised internally when a candidate's breaker rejects
	// the attempt. The coordinator converts it into "try next candidate".
	ErrCircuitOpen = errors.New("fallback: circuit open")
)

// Attempt records one candidate the coordinator tried or skipped, with the
// reason it did not produce a result.
type Attempt struct {
	CredentialID uuid.UUID
	Reason       string
}

// ResolutionError reports that no candidate produced a usable credential. It
// enumerates every id attempted and why each failed.
type ResolutionError struct {
	TenantID    string
	Provider    string
	Environment domain.Environment
	Attempts    []Attempt
}

func (e *ResolutionError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("fallback: no %s candidates for tenant %s in %s", e.Provider, e.TenantID, e.Environment)
	}
	parts := make([]string, len(e.Attempts))
	for i, attempt := range e.Attempts {
		parts[i] = fmt.Sprintf("%s (%s)", attempt.CredentialID, attempt.Reason)
	}
	return fmt.Sprintf("fallback: no usable %s credential for tenant %s in %s; attempted: %s",
		e.Provider, e.TenantID, e.Environment, strings.Join(parts, ", "))
}
