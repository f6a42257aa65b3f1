package providers

import "fmt"

// ValidationError reports a malformed payload or schema mismatch. It is
// surfaced to the caller and never retried automatically.
type ValidationError struct {
	Provider string
	Detail   string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("providers: %s: %s: %v", e.Provider, e.Detail, e.Err)
	}
	return fmt.Sprintf("providers: %s: %s", e.Provider, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }
