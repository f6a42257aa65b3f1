package fallback

import (
	"strings"
	"sync"

	"github.com/goliatone/go-credentials/pkg/domain"
	"github.com/google/uuid"
)

type defaultEntry struct {
	id      uuid.UUID
	payload map[string]any
}

// SystemDefaults is the operator-configured table of system-wide credentials,
// one per provider. A default is handed out only as a strict last resort,
// when every tenant-owned candidate is exhausted and the caller's chain
// permits it.
type SystemDefaults struct {
	mu      sync.RWMutex
	entries map[string]defaultEntry
}

// NewSystemDefaults returns an empty table.
func NewSystemDefaults() *SystemDefaults {
	return &SystemDefaults{entries: make(map[string]defaultEntry)}
}

// Set registers or replaces the system default payload for a provider.
func (d *SystemDefaults) Set(provider string, payload map[string]any) {
	provider = strings.TrimSpace(strings.ToLower(provider))
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.entries[provider]
	if !ok {
		entry = defaultEntry{id: uuid.New()}
	}
	entry.payload = payload
	d.entries[provider] = entry
}

// SystemDefault returns the payload for a provider, if configured.
func (d *SystemDefaults) SystemDefault(provider string, env domain.Environment) (map[string]any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.entries[strings.TrimSpace(strings.ToLower(provider))]
	if !ok {
		return nil, false
	}
	return entry.payload, true
}

// BreakerID returns the synthetic credential id used to track breaker state
// for a provider's system default.
func (d *SystemDefaults) BreakerID(provider string) (uuid.UUID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.entries[strings.TrimSpace(strings.ToLower(provider))]
	if !ok {
		return uuid.Nil, false
	}
	return entry.id, true
}
