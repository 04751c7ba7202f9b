package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRegistry_StorePerToken(t *testing.T) {
	r := NewRegistry(RegistryConfig{Backend: newFakeBackend()})

	a := r.Store("tok-clerk")
	if a.Token() != "tok-clerk" {
		t.Errorf("Expected store seeded with token, got %q", a.Token())
	}
	if r.Store("tok-clerk") != a {
		t.Error("Expected the same store for the same token")
	}
	if r.Store("tok-admin") == a {
		t.Error("Expected a different store for a different token")
	}
	if r.Len() != 2 {
		t.Errorf("Expected 2 sessions, got %d", r.Len())
	}
}

func TestRegistry_EmptyTokenNotRegistered(t *testing.T) {
	r := NewRegistry(RegistryConfig{Backend: newFakeBackend()})

	s := r.Store("")
	if s.Token() != "" {
		t.Errorf("Expected logged-out store, got token %q", s.Token())
	}
	if r.Len() != 0 {
		t.Errorf("Expected no registered sessions, got %d", r.Len())
	}
	if r.Store("") == s {
		t.Error("Expected a fresh store for every empty token")
	}
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	b := newFakeBackend()
	b.release = make(chan struct{})
	r := NewRegistry(RegistryConfig{Backend: b})
	ctx := context.Background()

	var wg sync.WaitGroup
	stores := make([]*Store, 20)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stores[i] = r.Store("tok-clerk")
			stores[i].FetchCurrentUser(ctx)
		}(i)
	}

	for b.fetches.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(b.release)
	wg.Wait()

	for i, s := range stores {
		if s != stores[0] {
			t.Fatalf("Request %d got a different store", i)
		}
	}
	if n := b.fetches.Load(); n != 1 {
		t.Errorf("Expected a single fetch across requests, got %d", n)
	}
}

func TestRegistry_AdoptAndForget(t *testing.T) {
	r := NewRegistry(RegistryConfig{Backend: newFakeBackend()})
	ctx := context.Background()

	s := r.Store("")
	if err := s.SignIn(ctx, "clerk", "secret"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	r.Adopt(s)

	if r.Store("tok-clerk") != s {
		t.Error("Expected the adopted store to serve its token")
	}

	r.Forget("tok-clerk")
	if r.Len() != 0 {
		t.Errorf("Expected registry empty after forget, got %d", r.Len())
	}
	r.Forget("")
	r.Adopt(r.Store(""))
	if r.Len() != 0 {
		t.Error("Adopting a logged-out store must not register it")
	}
}

func TestRegistry_Capacity(t *testing.T) {
	r := NewRegistry(RegistryConfig{Backend: newFakeBackend(), MaxSessions: 2})

	r.Store("a")
	r.Store("b")
	r.Store("c")

	if r.Len() != 2 {
		t.Errorf("Expected capacity 2, got %d sessions", r.Len())
	}
}

func TestRegistry_Expiry(t *testing.T) {
	r := NewRegistry(RegistryConfig{Backend: newFakeBackend(), SessionTTL: 20 * time.Millisecond})

	first := r.Store("tok-clerk")
	time.Sleep(50 * time.Millisecond)

	if r.Store("tok-clerk") == first {
		t.Error("Expected an idle session to expire")
	}
}
