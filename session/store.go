package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stockroom-labs/inventory-gate/auth"
	"github.com/stockroom-labs/inventory-gate/storage"
	"go.uber.org/zap"
)

// TokenKey is the durable storage key holding the bearer token.
const TokenKey = "access_token"

// DefaultFetchTimeout bounds a single current-user request.
const DefaultFetchTimeout = 15 * time.Second

// Backend is the remote side of the session: credential exchange and the
// current-user profile.
type Backend interface {
	Login(ctx context.Context, username, password string) (string, error)
	CurrentUser(ctx context.Context, token string) (*auth.User, error)
}

// Config holds the dependencies of a Store.
type Config struct {
	Storage      storage.Storage
	Backend      Backend
	FetchTimeout time.Duration
	Logger       *zap.Logger
}

// UserState is the consumer view of the current-user fetch.
type UserState struct {
	Data      *auth.User `json:"data"`
	IsLoading bool       `json:"isLoading"`
	IsError   bool       `json:"isError"`
	Err       error      `json:"-"`
}

// Store is the single source of truth for the token and the user record.
// All reads and writes of either go through its methods.
type Store struct {
	storage      storage.Storage
	backend      Backend
	fetchTimeout time.Duration
	logger       *zap.Logger

	mu         sync.Mutex
	token      string
	user       *auth.User
	loading    bool
	loaded     bool
	err        error
	settled    chan struct{} // closed when the in-flight fetch finishes
	generation uint64        // bumped on every token replacement
}

// NewStore creates an empty store. Call Init to pick up a persisted token.
func NewStore(cfg Config) *Store {
	if cfg.Storage == nil {
		cfg.Storage = storage.NewMemory()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Store{
		storage:      cfg.Storage,
		backend:      cfg.Backend,
		fetchTimeout: cfg.FetchTimeout,
		logger:       cfg.Logger,
	}
}

// Init loads the token from durable storage.
func (s *Store) Init(ctx context.Context) error {
	token, ok, err := s.storage.GetItem(ctx, TokenKey)
	if err != nil {
		return fmt.Errorf("failed to read persisted token: %w", err)
	}
	if !ok {
		token = ""
	}

	s.mu.Lock()
	s.replaceTokenLocked(token)
	s.mu.Unlock()

	s.logger.Debug("Session store initialized", zap.Bool("has_token", token != ""))
	return nil
}

// SetToken persists token, or clears it when token is empty, and resets the
// in-memory state for the new token.
func (s *Store) SetToken(ctx context.Context, token string) error {
	var err error
	if token == "" {
		err = s.storage.RemoveItem(ctx, TokenKey)
	} else {
		err = s.storage.SetItem(ctx, TokenKey, token)
	}
	if err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}

	s.mu.Lock()
	s.replaceTokenLocked(token)
	s.mu.Unlock()
	return nil
}

// replaceTokenLocked swaps the token wholesale. Results of a fetch started
// for the previous token are dropped when they arrive.
func (s *Store) replaceTokenLocked(token string) {
	s.token = token
	s.user = nil
	s.loaded = false
	s.err = nil
	s.generation++
	if s.loading {
		s.loading = false
		close(s.settled)
		s.settled = nil
	}
}

// Login stores token and fetches the user record for it. It returns once the
// fetch has settled, with the fetch error if any.
func (s *Store) Login(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := s.SetToken(ctx, token); err != nil {
		return err
	}
	return s.FetchCurrentUser(ctx)
}

// SignIn exchanges credentials for a token and then behaves like Login.
func (s *Store) SignIn(ctx context.Context, username, password string) error {
	if s.backend == nil {
		return errors.New("no backend configured")
	}
	token, err := s.backend.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return s.Login(ctx, token)
}

// Logout clears durable storage, the token and the user record. It is safe
// to call repeatedly.
func (s *Store) Logout(ctx context.Context) error {
	err := s.storage.RemoveItem(ctx, TokenKey)

	s.mu.Lock()
	s.replaceTokenLocked("")
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to clear persisted token: %w", err)
	}
	s.logger.Debug("Session cleared")
	return nil
}

// FetchCurrentUser loads the user record for the current token. It does
// nothing when there is no token, when a fetch is already in flight, or when
// the record is already loaded.
//
// The request runs on its own context bounded by the fetch timeout; ctx only
// bounds how long this caller waits. A caller that gives up gets ctx.Err()
// and the store still records the outcome.
func (s *Store) FetchCurrentUser(ctx context.Context) error {
	return s.fetch(ctx, false)
}

// Refresh forces a new fetch even when the record is loaded, for example
// after the record was edited.
func (s *Store) Refresh(ctx context.Context) error {
	return s.fetch(ctx, true)
}

func (s *Store) fetch(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.token == "" || s.loading || (s.loaded && !force) {
		s.mu.Unlock()
		return nil
	}
	if s.backend == nil {
		s.mu.Unlock()
		return errors.New("no backend configured")
	}

	token := s.token
	gen := s.generation
	settled := make(chan struct{})
	s.loading = true
	s.loaded = false
	s.err = nil
	s.settled = settled
	s.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		fetchCtx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
		defer cancel()

		user, err := s.backend.CurrentUser(fetchCtx, token)
		if err == nil && user == nil {
			err = auth.ErrUnauthorized
		}
		result <- s.finishFetch(gen, user, err)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finishFetch records the outcome of the fetch started at generation gen.
func (s *Store) finishFetch(gen uint64, user *auth.User, err error) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("Discarding user fetch for replaced token")
		if err != nil {
			return err
		}
		return errors.New("token changed during fetch")
	}

	var clearStorage bool
	if err != nil {
		s.user = nil
		s.loaded = false
		s.err = err
		if errors.Is(err, auth.ErrUnauthorized) {
			// A rejected token ends the session.
			s.token = ""
			s.generation++
			clearStorage = true
		}
	} else {
		s.user = user
		s.loaded = true
		s.err = nil
	}
	s.loading = false
	close(s.settled)
	s.settled = nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Failed to fetch current user", zap.Error(err))
	} else {
		s.logger.Debug("Current user loaded", zap.String("username", user.Username))
	}

	if clearStorage {
		if rmErr := s.storage.RemoveItem(context.Background(), TokenKey); rmErr != nil {
			s.logger.Warn("Failed to clear rejected token", zap.Error(rmErr))
		}
	}
	return err
}

// Wait blocks until no fetch is in flight or ctx is done.
func (s *Store) Wait(ctx context.Context) error {
	s.mu.Lock()
	settled := s.settled
	s.mu.Unlock()
	if settled == nil {
		return nil
	}
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Token returns the current token, empty when logged out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns the loaded record, nil until a fetch succeeded.
func (s *Store) User() *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Err returns the error of the last failed fetch for the current token.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Loaded reports whether the record was fetched for the current token.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Snapshot returns the current fetch state. Without a token the state is
// empty, not an error.
func (s *Store) Snapshot() UserState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return UserState{
		Data:      s.user,
		IsLoading: s.loading,
		IsError:   s.err != nil,
		Err:       s.err,
	}
}

var _ auth.Session = (*Store)(nil)
