package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stockroom-labs/inventory-gate/auth"
	"github.com/stockroom-labs/inventory-gate/storage"
)

// fakeBackend serves user records by token. When release is non-nil every
// CurrentUser call blocks until it is closed.
type fakeBackend struct {
	users   map[string]*auth.User
	errs    map[string]error
	release chan struct{}
	fetches atomic.Int32
}

func (b *fakeBackend) Login(ctx context.Context, username, password string) (string, error) {
	if password != "secret" {
		return "", errors.New("invalid credentials")
	}
	return "tok-" + username, nil
}

func (b *fakeBackend) CurrentUser(ctx context.Context, token string) (*auth.User, error) {
	b.fetches.Add(1)
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := b.errs[token]; err != nil {
		return nil, err
	}
	u, ok := b.users[token]
	if !ok {
		return nil, fmt.Errorf("current user: %w", auth.ErrUnauthorized)
	}
	return u.Clone(), nil
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users: map[string]*auth.User{
			"tok-clerk": {ID: 2, Username: "clerk", Flags: map[auth.Flag]bool{auth.FlagItemsEdit: true}},
			"tok-admin": {ID: 1, Username: "admin", Flags: map[auth.Flag]bool{}},
		},
		errs: map[string]error{},
	}
}

func setupTestStore(t *testing.T, b *fakeBackend) (*Store, *storage.Memory) {
	st := storage.NewMemory()
	s := NewStore(Config{Storage: st, Backend: b, FetchTimeout: 5 * time.Second})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s, st
}

func TestStore_LoginAndLogout(t *testing.T) {
	b := newFakeBackend()
	s, st := setupTestStore(t, b)
	ctx := context.Background()

	if err := s.Login(ctx, "tok-clerk"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if s.Token() != "tok-clerk" || s.User() == nil || s.User().Username != "clerk" {
		t.Errorf("Unexpected state after login: token=%q user=%+v", s.Token(), s.User())
	}
	if v, ok, _ := st.GetItem(ctx, TokenKey); !ok || v != "tok-clerk" {
		t.Errorf("Expected token persisted, got %q %v", v, ok)
	}
	if !s.Loaded() || s.Loading() {
		t.Errorf("Expected loaded and idle, loaded=%v loading=%v", s.Loaded(), s.Loading())
	}

	for i := 0; i < 2; i++ {
		if err := s.Logout(ctx); err != nil {
			t.Fatalf("Logout #%d failed: %v", i+1, err)
		}
	}
	if s.Token() != "" || s.User() != nil {
		t.Errorf("Expected empty session after logout")
	}
	if _, ok, _ := st.GetItem(ctx, TokenKey); ok {
		t.Error("Expected token removed from storage")
	}

	fetched := b.fetches.Load()
	if err := s.FetchCurrentUser(ctx); err != nil {
		t.Errorf("FetchCurrentUser after logout failed: %v", err)
	}
	if n := b.fetches.Load(); n != fetched {
		t.Errorf("Expected no backend fetch after logout, got %d more", n-fetched)
	}
	if s.User() != nil || s.Loading() {
		t.Errorf("Expected logged-out idle store, user=%+v loading=%v", s.User(), s.Loading())
	}
}

func TestStore_LoginEmptyToken(t *testing.T) {
	s, _ := setupTestStore(t, newFakeBackend())
	if err := s.Login(context.Background(), ""); err == nil {
		t.Error("Expected error for empty token")
	}
}

func TestStore_SignIn(t *testing.T) {
	b := newFakeBackend()
	s, _ := setupTestStore(t, b)

	if err := s.SignIn(context.Background(), "clerk", "wrong"); err == nil {
		t.Error("Expected error for wrong password")
	}
	if s.Token() != "" {
		t.Error("Failed sign-in must not store a token")
	}

	if err := s.SignIn(context.Background(), "clerk", "secret"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if s.User() == nil || s.User().ID != 2 {
		t.Errorf("Expected clerk record, got %+v", s.User())
	}
}

func TestStore_InitFromStorage(t *testing.T) {
	b := newFakeBackend()
	st := storage.NewMemoryWith(TokenKey, "tok-admin")
	s := NewStore(Config{Storage: st, Backend: b})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if s.Token() != "tok-admin" {
		t.Errorf("Expected persisted token, got %q", s.Token())
	}
	if s.User() != nil || b.fetches.Load() != 0 {
		t.Error("Init must not fetch the user record")
	}
}

func TestStore_FetchWithoutToken(t *testing.T) {
	b := newFakeBackend()
	s, _ := setupTestStore(t, b)

	if err := s.FetchCurrentUser(context.Background()); err != nil {
		t.Errorf("Fetch without token should be a no-op, got %v", err)
	}
	if b.fetches.Load() != 0 {
		t.Errorf("Expected no backend call, got %d", b.fetches.Load())
	}
	if snap := s.Snapshot(); snap.Data != nil || snap.IsLoading || snap.IsError {
		t.Errorf("Expected empty snapshot, got %+v", snap)
	}
}

func TestStore_SingleFetchUnderConcurrency(t *testing.T) {
	b := newFakeBackend()
	b.release = make(chan struct{})
	s, _ := setupTestStore(t, b)
	ctx := context.Background()

	if err := s.SetToken(ctx, "tok-clerk"); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.FetchCurrentUser(ctx)
			s.Wait(ctx)
		}()
	}

	// Let the consumers pile up on the in-flight fetch.
	for !s.Loading() {
		time.Sleep(time.Millisecond)
	}
	close(b.release)
	wg.Wait()

	if n := b.fetches.Load(); n != 1 {
		t.Errorf("Expected exactly 1 fetch, got %d", n)
	}
	if s.User() == nil {
		t.Error("Expected user loaded")
	}

	// Loaded records are not fetched again.
	s.FetchCurrentUser(ctx)
	if n := b.fetches.Load(); n != 1 {
		t.Errorf("Expected no refetch of a loaded record, got %d fetches", n)
	}
}

func TestStore_RejectedTokenClearsSession(t *testing.T) {
	b := newFakeBackend()
	s, st := setupTestStore(t, b)
	ctx := context.Background()

	err := s.Login(ctx, "tok-stale")
	if !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if s.Token() != "" {
		t.Errorf("Expected token cleared, got %q", s.Token())
	}
	if _, ok, _ := st.GetItem(ctx, TokenKey); ok {
		t.Error("Expected rejected token removed from storage")
	}
	if snap := s.Snapshot(); !snap.IsError || snap.Data != nil {
		t.Errorf("Expected error snapshot, got %+v", snap)
	}
}

func TestStore_TransientErrorKeepsToken(t *testing.T) {
	b := newFakeBackend()
	b.errs["tok-clerk"] = errors.New("backend returned status 500")
	s, _ := setupTestStore(t, b)
	ctx := context.Background()

	if err := s.Login(ctx, "tok-clerk"); err == nil {
		t.Fatal("Expected fetch error")
	}
	if s.Token() != "tok-clerk" {
		t.Errorf("Non-auth errors must keep the token, got %q", s.Token())
	}
	if s.Err() == nil || !s.Snapshot().IsError {
		t.Error("Expected the error to be recorded")
	}

	// The error is not terminal: a later fetch retries.
	delete(b.errs, "tok-clerk")
	if err := s.FetchCurrentUser(ctx); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if s.User() == nil || s.Err() != nil {
		t.Errorf("Expected user after retry, err=%v", s.Err())
	}
}

func TestStore_TokenReplacedDuringFetch(t *testing.T) {
	b := newFakeBackend()
	b.release = make(chan struct{})
	s, _ := setupTestStore(t, b)
	ctx := context.Background()

	s.SetToken(ctx, "tok-clerk")
	done := make(chan error, 1)
	go func() { done <- s.FetchCurrentUser(ctx) }()

	for !s.Loading() {
		time.Sleep(time.Millisecond)
	}
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if err := s.Wait(ctx); err != nil {
		t.Errorf("Wait after logout should return immediately, got %v", err)
	}
	close(b.release)

	if err := <-done; err == nil {
		t.Error("Expected the stale fetch to report an error")
	}
	if s.User() != nil || s.Token() != "" {
		t.Errorf("Stale fetch result must be discarded, user=%+v token=%q", s.User(), s.Token())
	}
}

func TestStore_CallerGivesUp(t *testing.T) {
	b := newFakeBackend()
	b.release = make(chan struct{})
	s, _ := setupTestStore(t, b)

	s.SetToken(context.Background(), "tok-clerk")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.FetchCurrentUser(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	// The fetch itself continues and settles for everyone else.
	close(b.release)
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if s.User() == nil {
		t.Error("Expected the abandoned fetch to still record the user")
	}
}

func TestStore_Refresh(t *testing.T) {
	b := newFakeBackend()
	s, _ := setupTestStore(t, b)
	ctx := context.Background()

	if err := s.Login(ctx, "tok-clerk"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	b.users["tok-clerk"].JobName = "Storekeeper"

	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if n := b.fetches.Load(); n != 2 {
		t.Errorf("Expected 2 fetches, got %d", n)
	}
	if s.User().JobName != "Storekeeper" {
		t.Errorf("Expected refreshed record, got %+v", s.User())
	}
}

func TestStore_NoBackend(t *testing.T) {
	s := NewStore(Config{})
	ctx := context.Background()
	if err := s.SignIn(ctx, "a", "b"); err == nil {
		t.Error("Expected error without backend")
	}
	s.SetToken(ctx, "tok")
	if err := s.FetchCurrentUser(ctx); err == nil {
		t.Error("Expected error without backend")
	}
}
