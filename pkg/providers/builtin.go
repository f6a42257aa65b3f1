package providers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

const defaultProbeTimeout = 10 * time.Second

// DefaultRegistry returns a registry with the built-in provider definitions
// installed.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	for _, def := range Builtin() {
		if err := registry.Register(def); err != nil {
			// Builtin schemas are constants; a compile failure is a
			// programming error.
			panic(err)
		}
	}
	return registry
}

// Builtin returns the provider definitions shipped with the vault.
func Builtin() []Definition {
	return []Definition{
		{
			Type: "openai",
			Schema: `{
				"$schema": "https://json-schema.org/draft/2020-12/schema",
				"type": "object",
				"required": ["apiKey"],
				"properties": {
					"apiKey": {"type": "string", "pattern": "^sk-[A-Za-z0-9_-]{10,}$"},
					"organization": {"type": "string"}
				},
				"additionalProperties": false
			}`,
			Capabilities: []string{"chat", "embeddings", "images"},
			Auth:         bearerAuth("apiKey"),
			Probes: []Probe{
				{Name: "list_models", Method: http.MethodGet, URL: "https://api.openai.com/v1/models", ExpectStatus: []int{200}, Timeout: defaultProbeTimeout, Required: true},
			},
			EnvMapping: map[string]string{"OPENAI_API_KEY": "apiKey"},
		},
		{
			Type: "anthropic",
			Schema: `{
				"$schema": "https://json-schema.org/draft/2020-12/schema",
				"type": "object",
				"required": ["apiKey"],
				"properties": {
					"apiKey": {"type": "string", "pattern": "^sk-ant-[A-Za-z0-9_-]{10,}$"}
				},
				"additionalProperties": false
			}`,
			Capabilities: []string{"chat"},
			Auth: func(payload map[string]any) (http.Header, error) {
				key, err := stringField(payload, "apiKey")
				if err != nil {
					return nil, err
				}
				header := http.Header{}
				header.Set("x-api-key", key)
				header.Set("anthropic-version", "2023-06-01")
				return header, nil
			},
			Probes: []Probe{
				{Name: "list_models", Method: http.MethodGet, URL: "https://api.anthropic.com/v1/models", ExpectStatus: []int{200}, Timeout: defaultProbeTimeout, Required: true},
			},
			EnvMapping: map[string]string{"ANTHROPIC_API_KEY": "apiKey"},
		},
		{
			Type: "deepgram",
			Schema: `{
				"$schema": "https://json-schema.org/draft/2020-12/schema",
				"type": "object",
				"required": ["apiKey"],
				"properties": {
					"apiKey": {"type": "string", "minLength": 20}
				},
				"additionalProperties": false
			}`,
			Capabilities: []string{"transcription", "tts"},
			Auth: func(payload map[string]any) (http.Header, error) {
				key, err := stringField(payload, "apiKey")
				if err != nil {
					return nil, err
				}
				header := http.Header{}
				header.Set("Authorization", "Token "+key)
				return header, nil
			},
			Probes: []Probe{
				{Name: "list_projects", Method: http.MethodGet, URL: "https://api.deepgram.com/v1/projects", ExpectStatus: []int{200}, Timeout: defaultProbeTimeout, Required: true},
			},
			EnvMapping: map[string]string{"DEEPGRAM_API_KEY": "apiKey"},
		},
		{
			Type: "twilio",
			Schema: `{
				"$schema": "https://json-schema.org/draft/2020-12/schema",
				"type": "object",
				"required": ["accountSid", "authToken"],
				"properties": {
					"accountSid": {"type": "string", "pattern": "^AC[0-9a-fA-F]{32}$"},
					"authToken": {"type": "string", "minLength": 32}
				},
				"additionalProperties": false
			}`,
			Capabilities: []string{"sms", "voice", "whatsapp"},
			Auth: func(payload map[string]any) (http.Header, error) {
				sid, err := stringField(payload, "accountSid")
				if err != nil {
					return nil, err
				}
				token, err := stringField(payload, "authToken")
				if err != nil {
					return nil, err
				}
				header := http.Header{}
				header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(sid+":"+token)))
				return header, nil
			},
			Probes: []Probe{
				{Name: "fetch_account", Method: http.MethodGet, URL: "https://api.twilio.com/2010-04-01/Accounts/{{accountSid}}.json", ExpectStatus: []int{200}, Timeout: defaultProbeTimeout, Required: true},
			},
			EnvMapping: map[string]string{
				"TWILIO_ACCOUNT_SID": "accountSid",
				"TWILIO_AUTH_TOKEN":  "authToken",
			},
		},
		{
			Type: "sendgrid",
			Schema: `{
				"$schema": "https://json-schema.org/draft/2020-12/schema",
				"type": "object",
				"required": ["apiKey"],
				"properties": {
					"apiKey": {"type": "string", "pattern": "^SG\\.[A-Za-z0-9_.-]{10,}$"}
				},
				"additionalProperties": false
			}`,
			Capabilities: []string{"email"},
			Auth:         bearerAuth("apiKey"),
			Probes: []Probe{
				{Name: "list_scopes", Method: http.MethodGet, URL: "https://api.sendgrid.com/v3/scopes", ExpectStatus: []int{200}, Timeout: defaultProbeTimeout, Required: true},
			},
			EnvMapping: map[string]string{"SENDGRID_API_KEY": "apiKey"},
		},
		{
			Type: "telegram",
			Schema: `{
				"$schema": "https://json-schema.org/draft/2020-12/schema",
				"type": "object",
				"required": ["botToken"],
				"properties": {
					"botToken": {"type": "string", "pattern": "^[0-9]+:[A-Za-z0-9_-]{30,}$"}
				},
				"additionalProperties": false
			}`,
			Capabilities: []string{"chat"},
			// The token travels in the URL path; no auth header needed.
			Auth: func(payload map[string]any) (http.Header, error) {
				return http.Header{}, nil
			},
			Probes: []Probe{
				{Name: "get_me", Method: http.MethodGet, URL: "https://api.telegram.org/bot{{botToken}}/getMe", ExpectStatus: []int{200}, Timeout: defaultProbeTimeout, Required: true},
			},
			EnvMapping: map[string]string{"TELEGRAM_BOT_TOKEN": "botToken"},
		},
	}
}

func bearerAuth(field string) AuthBuilder {
	return func(payload map[string]any) (http.Header, error) {
		value, err := stringField(payload, field)
		if err != nil {
			return nil, err
		}
		header := http.Header{}
		header.Set("Authorization", "Bearer "+value)
		return header, nil
	}
}

func stringField(payload map[string]any, field string) (string, error) {
	raw, ok := payload[field]
	if !ok {
		return "", fmt.Errorf("providers: payload missing %s", field)
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", fmt.Errorf("providers: payload field %s must be a non-empty string", field)
	}
	return value, nil
}
