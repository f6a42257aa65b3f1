package crypto

import "fmt"

// IntegrityError signals an authentication-tag mismatch (or a malformed
// envelope) during decryption. It is fatal for the affected record:
// corruption or tampering, not a transient fault, so the record should be
// flagged for operator review.
type IntegrityError struct {
	TenantID string
	Err      error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("crypto: integrity check failed for tenant %s: %v", e.TenantID, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }
