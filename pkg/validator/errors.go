package validator

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCredentialsRepository = errors.New("validator: credentials repository is required")
	ErrMissingValidationsRepository = errors.New("validator: validations repository is required")
	ErrMissingCrypto                = errors.New("validator: crypto service is required")
	ErrMissingRegistry              = errors.New("validator: provider registry is required")
)

// ProviderError captures a failed health-check probe. It is recorded on the
// validation result and the credential record, not propagated as a system
// failure.
type ProviderError struct {
	Provider   string
	Probe      string
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("validator: %s probe %s failed with status %d: %s", e.Provider, e.Probe, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("validator: %s probe %s failed: %s", e.Provider, e.Probe, e.Detail)
}
