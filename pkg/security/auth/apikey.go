package auth

import (
	"crypto/sha256"
	"errors"
	"net/http"
	"strings"
	"sync"

	"mercator-hq/saturn/pkg/config"
)

// KeyHeader carries an API key.
const KeyHeader = "X-API-Key"

// keyScheme is the Authorization scheme accepted for API keys.
const keyScheme = "ApiKey "

var (
	// ErrInvalidKey is returned for unknown keys.
	ErrInvalidKey = errors.New("invalid API key")
	// ErrKeyDisabled is returned for keys switched off in configuration.
	ErrKeyDisabled = errors.New("API key disabled")
)

type keyInfo struct {
	user    string
	enabled bool
}

// KeyValidator resolves API keys to users. Keys are held as SHA-256
// digests only.
type KeyValidator struct {
	mu   sync.RWMutex
	keys map[[sha256.Size]byte]keyInfo
}

// NewKeyValidator creates a validator for the configured keys.
func NewKeyValidator(keys []config.APIKeyConfig) *KeyValidator {
	v := &KeyValidator{keys: make(map[[sha256.Size]byte]keyInfo, len(keys))}
	for _, k := range keys {
		v.Add(k)
	}
	return v
}

// Add registers or replaces a key.
func (v *KeyValidator) Add(k config.APIKeyConfig) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[sha256.Sum256([]byte(k.Key))] = keyInfo{user: k.User, enabled: !k.Disabled}
}

// Remove forgets a key.
func (v *KeyValidator) Remove(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.keys, sha256.Sum256([]byte(key)))
}

// Len returns the number of registered keys.
func (v *KeyValidator) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.keys)
}

// Validate returns the user a key acts as.
func (v *KeyValidator) Validate(key string) (string, error) {
	v.mu.RLock()
	info, ok := v.keys[sha256.Sum256([]byte(key))]
	v.mu.RUnlock()

	switch {
	case !ok:
		return "", ErrInvalidKey
	case !info.enabled:
		return "", ErrKeyDisabled
	}
	return info.user, nil
}

// KeyFromRequest extracts an API key from the X-API-Key header or an
// "Authorization: ApiKey <key>" header.
func KeyFromRequest(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get(KeyHeader)); key != "" {
		return key, true
	}
	if key, ok := strings.CutPrefix(r.Header.Get("Authorization"), keyScheme); ok {
		if key = strings.TrimSpace(key); key != "" {
			return key, true
		}
	}
	return "", false
}
