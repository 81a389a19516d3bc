// Package secrets implements the Secret Store Adapter: a uniform read of
// sector secrets from either a remote secret manager or local
// configuration, with a TTL cache in front of both.
package secrets

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
)

// Backend is the uniform surface both the remote and local implementations
// satisfy.
type Backend interface {
	// Name identifies the backend for logging/diagnostics.
	Name() string
	// FetchAll returns every sector secret the backend knows about.
	FetchAll(ctx context.Context) (map[string][]byte, error)
	// Fetch returns a single sector's secret.
	Fetch(ctx context.Context, sector string) ([]byte, error)
}

// Adapter is the process-wide Secret Store Adapter. It tries the remote
// backend at construction time; on an unauthenticated/unreachable remote it
// falls back to the local backend. Reads are cached with a configurable TTL
// and the cache can be invalidated explicitly on Reload.
type Adapter struct {
	mu      sync.RWMutex
	active  Backend
	remote  Backend
	local   Backend
	cache   *lru.LRU[string, []byte]
	ttl     time.Duration
}

// Config configures the Adapter.
type Config struct {
	Remote Backend // may be nil to skip the remote backend entirely
	Local  Backend
	TTL    time.Duration // default 5 minutes
}

// New builds the Adapter, probing the remote backend (if configured) and
// degrading to the local backend on failure. A remote auth failure at
// startup is degraded, not fatal.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Local == nil {
		return nil, internalerrors.Configuration("secrets: local backend is required as the ultimate fallback", nil)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	a := &Adapter{
		remote: cfg.Remote,
		local:  cfg.Local,
		ttl:    ttl,
		cache:  lru.NewLRU[string, []byte](256, nil, ttl),
	}

	if cfg.Remote != nil {
		if _, err := cfg.Remote.FetchAll(ctx); err == nil {
			a.active = cfg.Remote
			return a, nil
		}
		// Degrade silently to local; this is not a ConfigurationError.
	}
	a.active = cfg.Local
	return a, nil
}

// ActiveBackend reports which backend is currently serving reads.
func (a *Adapter) ActiveBackend() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active.Name()
}

// normalizeSector lower-cases and trims a sector name so lookups are
// consistent regardless of caller casing/whitespace.
func normalizeSector(sector string) string {
	return strings.ToLower(strings.TrimSpace(sector))
}

// Get returns the secret for sector, consulting the cache first.
func (a *Adapter) Get(ctx context.Context, sector string) ([]byte, error) {
	key := normalizeSector(sector)
	if key == "" {
		return nil, internalerrors.Validation("sector", "sector name must not be empty")
	}

	if cached, ok := a.cache.Get(key); ok {
		return cached, nil
	}

	a.mu.RLock()
	backend := a.active
	a.mu.RUnlock()

	secret, err := backend.Fetch(ctx, key)
	if err != nil {
		return nil, internalerrors.SecretMissing(key)
	}
	if len(secret) == 0 {
		return nil, internalerrors.SecretMissing(key)
	}
	a.cache.Add(key, secret)
	return secret, nil
}

// GetSectorSecrets returns every configured sector secret, bypassing the
// per-key cache (callers that need the whole map are expected to do so
// rarely, e.g. at startup or reload).
func (a *Adapter) GetSectorSecrets(ctx context.Context) (map[string][]byte, error) {
	a.mu.RLock()
	backend := a.active
	a.mu.RUnlock()

	all, err := backend.FetchAll(ctx)
	if err != nil {
		return nil, internalerrors.Storage("secrets.fetch_all", err)
	}
	return all, nil
}

// Reload re-probes the remote backend (if configured) and invalidates the
// cache, atomically swapping the active backend reference.
func (a *Adapter) Reload(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.remote != nil {
		if _, err := a.remote.FetchAll(ctx); err == nil {
			a.active = a.remote
		} else {
			a.active = a.local
		}
	} else {
		a.active = a.local
	}
	a.cache.Purge()
	return nil
}

// InvalidateCache clears all cached secret values without re-probing the backend.
func (a *Adapter) InvalidateCache() {
	a.cache.Purge()
}
