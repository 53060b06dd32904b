// Package secret provides the default SecretProvider implementation: an
// in-memory store seeded from environment variables, "insecure" in the
// sense that nothing is encrypted at rest. Production deployments are
// expected to supply their own interfaces.SecretProvider backed by a real
// secret store; this implementation exists so the service can run
// standalone and so tests have something concrete to inject.
package secret

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
)

// EnvPrefix is prepended to "SECRETNAME_KEY" when looking up a secret value
// from the environment, so secret data doesn't collide with ordinary
// configuration variables.
const EnvPrefix = "APPFUNCTIONS_SECRET_"

// InsecureProvider stores secrets in memory, seeded from the environment.
// It is safe for concurrent use.
type InsecureProvider struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

var _ interfaces.SecretProvider = (*InsecureProvider)(nil)

// NewInsecureProvider creates an empty InsecureProvider.
func NewInsecureProvider() *InsecureProvider {
	return &InsecureProvider{secrets: make(map[string]map[string]string)}
}

// LoadFromEnviron seeds the provider by scanning os.Environ() for variables
// named APPFUNCTIONS_SECRET_<NAME>_<KEY>.
func (p *InsecureProvider) LoadFromEnviron() {
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, EnvPrefix)
		secretName, secretKey, ok := strings.Cut(rest, "_")
		if !ok {
			continue
		}
		p.StoreSecret(strings.ToLower(secretName), strings.ToLower(secretKey), value)
	}
}

// StoreSecret sets a single key within a named secret, creating the secret
// if it doesn't yet exist.
func (p *InsecureProvider) StoreSecret(secretName, key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.secrets[secretName] == nil {
		p.secrets[secretName] = make(map[string]string)
	}
	p.secrets[secretName][key] = value
}

// GetSecret implements interfaces.SecretProvider: returns every requested
// key for secretName, or an error naming the first missing key.
func (p *InsecureProvider) GetSecret(secretName string, keys ...string) (map[string]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stored, ok := p.secrets[secretName]
	if !ok {
		return nil, fmt.Errorf("secret %q not found", secretName)
	}

	if len(keys) == 0 {
		out := make(map[string]string, len(stored))
		for k, v := range stored {
			out[k] = v
		}
		return out, nil
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok := stored[k]
		if !ok {
			return nil, fmt.Errorf("secret %q missing key %q", secretName, k)
		}
		out[k] = v
	}
	return out, nil
}
