package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Probe is one request/response contract in a provider's health-check list.
// URL segments of the form {{field}} are expanded from the decrypted payload
// before the request is issued.
type Probe struct {
	Name         string
	Method       string
	URL          string
	ExpectStatus []int
	Timeout      time.Duration
	// Required probes determine overall pass/fail. Optional probes only
	// degrade the health score when they fail.
	Required bool
	// CheckBody optionally validates the response shape.
	CheckBody func(body []byte) error
}

// ExpandURL substitutes {{field}} placeholders with payload values.
func (p Probe) ExpandURL(payload map[string]any) string {
	url := p.URL
	for key, value := range payload {
		placeholder := "{{" + key + "}}"
		if strings.Contains(url, placeholder) {
			url = strings.ReplaceAll(url, placeholder, fmt.Sprint(value))
		}
	}
	return url
}

// AuthBuilder constructs the authentication headers for a provider's scheme
// from a decrypted payload.
type AuthBuilder func(payload map[string]any) (http.Header, error)

// Definition declares everything the vault needs to know about one provider
// type: the payload schema, capability defaults, the auth-header rule, the
// probe list, and the environment variables the migration boundary scans.
type Definition struct {
	Type         string
	Schema       string
	Capabilities []string
	Auth         AuthBuilder
	Probes       []Probe
	// EnvMapping maps environment variable names to payload fields for the
	// one-shot import, e.g. OPENAI_API_KEY -> apiKey.
	EnvMapping map[string]string
}

type compiledDefinition struct {
	def    Definition
	schema *jsonschema.Schema
}

// Registry resolves provider definitions by type tag. New providers can be
// registered at runtime without touching the core.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*compiledDefinition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*compiledDefinition)}
}

// Register compiles the definition's schema and installs it, replacing any
// previous definition for the same type.
func (r *Registry) Register(def Definition) error {
	def.Type = strings.TrimSpace(strings.ToLower(def.Type))
	if def.Type == "" {
		return fmt.Errorf("providers: type is required")
	}
	if strings.TrimSpace(def.Schema) == "" {
		return fmt.Errorf("providers: %s: schema is required", def.Type)
	}

	url := "https://goliatone.io/schemas/credentials/" + def.Type + ".json"
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(def.Schema))
	if err != nil {
		return fmt.Errorf("providers: %s: parse schema: %w", def.Type, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return fmt.Errorf("providers: %s: add schema: %w", def.Type, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("providers: %s: compile schema: %w", def.Type, err)
	}

	r.mu.Lock()
	r.defs[def.Type] = &compiledDefinition{def: def, schema: schema}
	r.mu.Unlock()
	return nil
}

// Get returns the definition for a provider type.
func (r *Registry) Get(providerType string) (Definition, error) {
	r.mu.RLock()
	entry, ok := r.defs[strings.ToLower(providerType)]
	r.mu.RUnlock()
	if !ok {
		return Definition{}, &ValidationError{Provider: providerType, Detail: "unknown provider type"}
	}
	return entry.def, nil
}

// Types lists the registered provider type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ValidatePayload checks a payload against the provider's schema before
// anything touches encryption.
func (r *Registry) ValidatePayload(providerType string, payload map[string]any) error {
	r.mu.RLock()
	entry, ok := r.defs[strings.ToLower(providerType)]
	r.mu.RUnlock()
	if !ok {
		return &ValidationError{Provider: providerType, Detail: "unknown provider type"}
	}
	if len(payload) == 0 {
		return &ValidationError{Provider: providerType, Detail: "empty payload"}
	}

	// Round-trip through JSON so the schema library sees canonical types.
	raw, err := json.Marshal(payload)
	if err != nil {
		return &ValidationError{Provider: providerType, Detail: "payload is not serializable", Err: err}
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ValidationError{Provider: providerType, Detail: "payload is not valid JSON", Err: err}
	}
	if err := entry.schema.Validate(doc); err != nil {
		return &ValidationError{Provider: providerType, Detail: "payload does not match provider schema", Err: err}
	}
	return nil
}

// AuthHeader runs the provider's header-construction rule.
func (r *Registry) AuthHeader(providerType string, payload map[string]any) (http.Header, error) {
	def, err := r.Get(providerType)
	if err != nil {
		return nil, err
	}
	if def.Auth == nil {
		return http.Header{}, nil
	}
	return def.Auth(payload)
}
