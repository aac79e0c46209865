package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

const redacted = "[REDACTED]"

// Scheme identifies an authentication scheme.
type Scheme string

const (
	// SchemeHMAC signs with an API key, base64 secret and passphrase.
	SchemeHMAC Scheme = "hmac"

	// SchemeJWT signs ES256 tokens with a CDP key name and EC private key.
	SchemeJWT Scheme = "jwt"
)

// Credentials holds the key material for exactly one scheme.
// Implementations are HMACCredentials and ECCredentials.
type Credentials interface {
	Scheme() Scheme
	// Destroy overwrites the secret bytes. The credentials are unusable afterwards.
	Destroy()

	credentials()
}

// HMACCredentials are Exchange-style API credentials.
type HMACCredentials struct {
	APIKey     string
	Passphrase string

	// mu guards secret against Destroy while a signature is in progress.
	mu sync.RWMutex
	// secret is the base64 text exactly as issued; it is decoded per signature.
	secret    []byte
	destroyed bool
}

// NewHMACCredentials copies the secret into memory owned by the credentials.
func NewHMACCredentials(apiKey, apiSecret, passphrase string) *HMACCredentials {
	return &HMACCredentials{
		APIKey:     apiKey,
		Passphrase: passphrase,
		secret:     []byte(apiSecret),
	}
}

func (c *HMACCredentials) Scheme() Scheme { return SchemeHMAC }

func (c *HMACCredentials) Destroy() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	wipe(c.secret)
	c.secret = nil
	c.destroyed = true
}

var errDestroyed = errors.New("credentials destroyed")

// withSecret runs fn with the raw secret held under the read lock. fn must
// not retain the slice.
func (c *HMACCredentials) withSecret(fn func(secret []byte) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.destroyed {
		return errDestroyed
	}
	return fn(c.secret)
}

func (c *HMACCredentials) credentials() {}

func (c *HMACCredentials) String() string {
	return fmt.Sprintf("HMACCredentials{api_key=%s, secret=%s, passphrase=%s}", maskKey(c.APIKey), redacted, redacted)
}

func (c *HMACCredentials) GoString() string { return c.String() }

// MarshalZerologObject logs the key id only.
func (c *HMACCredentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("scheme", string(SchemeHMAC)).Str("api_key", maskKey(c.APIKey))
}

// MarshalJSON never emits the secret or passphrase.
func (c *HMACCredentials) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"scheme":     string(SchemeHMAC),
		"api_key":    maskKey(c.APIKey),
		"secret":     redacted,
		"passphrase": redacted,
	})
}

// ECCredentials are CDP API credentials: a key name such as
// "organizations/{org}/apiKeys/{key}" and a PEM encoded P-256 private key.
type ECCredentials struct {
	KeyName string

	pem []byte
}

// NewECCredentials copies the PEM block into memory owned by the credentials.
func NewECCredentials(keyName, privateKeyPEM string) *ECCredentials {
	return &ECCredentials{
		KeyName: keyName,
		pem:     []byte(privateKeyPEM),
	}
}

func (c *ECCredentials) Scheme() Scheme { return SchemeJWT }

func (c *ECCredentials) Destroy() {
	if c == nil {
		return
	}
	wipe(c.pem)
	c.pem = nil
}

func (c *ECCredentials) credentials() {}

func (c *ECCredentials) String() string {
	return fmt.Sprintf("ECCredentials{key_name=%s, private_key=%s}", c.KeyName, redacted)
}

func (c *ECCredentials) GoString() string { return c.String() }

func (c *ECCredentials) MarshalZerologObject(e *zerolog.Event) {
	e.Str("scheme", string(SchemeJWT)).Str("key_name", c.KeyName)
}

func (c *ECCredentials) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"scheme":      string(SchemeJWT),
		"key_name":    c.KeyName,
		"private_key": redacted,
	})
}

// maskKey keeps the first four characters of an API key for correlation.
func maskKey(key string) string {
	if len(key) <= 4 {
		return redacted
	}
	return key[:4] + "…"
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
