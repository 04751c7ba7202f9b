package session

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/stockroom-labs/inventory-gate/storage"
	"go.uber.org/zap"
)

const (
	defaultMaxSessions = 1000
	defaultSessionTTL  = 30 * time.Minute
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Backend      Backend
	MaxSessions  int
	SessionTTL   time.Duration
	FetchTimeout time.Duration
	Logger       *zap.Logger
}

// Registry keeps one Store per bearer token for a server that fronts many
// browser sessions. Each token gets exactly one store, so the one-fetch-per-
// token rule holds across concurrent requests. Idle entries expire.
type Registry struct {
	stores       *expirable.LRU[string, *Store]
	backend      Backend
	fetchTimeout time.Duration
	logger       *zap.Logger

	// serializes get-or-create so two requests never build two stores
	mu sync.Mutex
}

// NewRegistry creates a registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := &Registry{
		backend:      cfg.Backend,
		fetchTimeout: cfg.FetchTimeout,
		logger:       cfg.Logger,
	}
	r.stores = expirable.NewLRU[string, *Store](cfg.MaxSessions, func(_ string, _ *Store) {
		r.logger.Debug("Session evicted from registry")
	}, cfg.SessionTTL)
	return r
}

// Store returns the store for token, creating it on first use. An empty
// token yields a fresh logged-out store that is not registered.
func (r *Registry) Store(token string) *Store {
	if token == "" {
		return r.newStore("")
	}
	if s, ok := r.stores.Get(token); ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores.Get(token); ok {
		return s
	}
	s := r.newStore(token)
	r.stores.Add(token, s)
	return s
}

// Adopt registers a store that already holds a token, typically right after
// a login through that store.
func (r *Registry) Adopt(s *Store) {
	if token := s.Token(); token != "" {
		r.stores.Add(token, s)
	}
}

// Forget drops the store for token.
func (r *Registry) Forget(token string) {
	if token != "" {
		r.stores.Remove(token)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.stores.Len()
}

func (r *Registry) newStore(token string) *Store {
	var st storage.Storage = storage.NewMemory()
	if token != "" {
		st = storage.NewMemoryWith(TokenKey, token)
	}
	s := NewStore(Config{
		Storage:      st,
		Backend:      r.backend,
		FetchTimeout: r.fetchTimeout,
		Logger:       r.logger,
	})
	s.mu.Lock()
	s.replaceTokenLocked(token)
	s.mu.Unlock()
	return s
}
