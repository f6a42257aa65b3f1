package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize   = 32
	saltSize  = 32
	nonceSize = 12

	// DefaultIterations is the PBKDF2 work factor for tenant key derivation.
	DefaultIterations = 100_000
)

// Envelope is the persisted form of an encrypted payload. All fields are
// base64 encoded; the GCM authentication tag is appended to the ciphertext.
type Envelope struct {
	Ciphertext string
	Nonce      string
	Salt       string
}

// Service performs per-tenant authenticated encryption. Each tenant key is
// derived from the master key plus the tenant id, so records never share key
// material across tenants.
type Service struct {
	masterKey  []byte
	iterations int
}

type Option func(*Service)

// WithIterations overrides the PBKDF2 work factor. Values below the default
// are ignored so a misconfigured host cannot weaken derivation.
func WithIterations(n int) Option {
	return func(s *Service) {
		if n >= DefaultIterations {
			s.iterations = n
		}
	}
}

// New builds a Service from a master key in any of the accepted encodings.
// The key must pass the strength checks in ValidateMasterKey.
func New(masterKey string, opts ...Option) (*Service, error) {
	key, err := ParseMasterKey(masterKey)
	if err != nil {
		return nil, err
	}
	svc := &Service{
		masterKey:  key,
		iterations: DefaultIterations,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// DeriveTenantKey stretches masterKey||tenantID into a 256-bit key using
// PBKDF2-HMAC-SHA256 over the supplied salt.
func (s *Service) DeriveTenantKey(tenantID string, salt []byte) []byte {
	secret := make([]byte, 0, len(s.masterKey)+len(tenantID))
	secret = append(secret, s.masterKey...)
	secret = append(secret, tenantID...)
	return pbkdf2.Key(secret, salt, s.iterations, keySize, sha256.New)
}

// Encrypt serializes the payload deterministically and seals it with
// AES-256-GCM under a fresh salt and nonce. Nonces are never reused: both
// salt and nonce are drawn from crypto/rand on every call, so each envelope
// is sealed under its own derived key.
func (s *Service) Encrypt(payload map[string]any, tenantID string) (Envelope, error) {
	if len(payload) == 0 {
		return Envelope{}, fmt.Errorf("crypto: empty payload")
	}
	plaintext, err := json.Marshal(normalizeValue(payload))
	if err != nil {
		return Envelope{}, fmt.Errorf("crypto: serialize payload: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return Envelope{}, fmt.Errorf("crypto: salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("crypto: nonce: %w", err)
	}

	aead, err := s.aead(tenantID, salt)
	if err != nil {
		return Envelope{}, err
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)

	return Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Salt:       base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// Decrypt re-derives the tenant key from the envelope salt and opens the
// ciphertext. Any tag mismatch fails closed with *IntegrityError; partial
// plaintext is never returned.
func (s *Service) Decrypt(env Envelope, tenantID string) (map[string]any, error) {
	sealed, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, &IntegrityError{TenantID: tenantID, Err: fmt.Errorf("decode ciphertext: %w", err)}
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, &IntegrityError{TenantID: tenantID, Err: fmt.Errorf("decode nonce: %w", err)}
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, &IntegrityError{TenantID: tenantID, Err: fmt.Errorf("decode salt: %w", err)}
	}
	if len(nonce) != nonceSize {
		return nil, &IntegrityError{TenantID: tenantID, Err: fmt.Errorf("nonce must be %d bytes", nonceSize)}
	}

	aead, err := s.aead(tenantID, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, &IntegrityError{TenantID: tenantID, Err: err}
	}

	var payload map[string]any
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, &IntegrityError{TenantID: tenantID, Err: fmt.Errorf("decode payload: %w", err)}
	}
	return payload, nil
}

func (s *Service) aead(tenantID string, salt []byte) (cipher.AEAD, error) {
	key := s.DeriveTenantKey(tenantID, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return aead, nil
}
