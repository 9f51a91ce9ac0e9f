package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/yogguru/trainer/internal/domain"
)

type memUsers struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	touched  int
	failWith error
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*domain.User)}
}

func (m *memUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpsertUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.UserID] = &cp
	return nil
}

func (m *memUsers) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched++
	if u, ok := m.users[id]; ok {
		u.LastSeenAt = at
	}
	return nil
}

func serve(t *testing.T, repo UserStore, cookie *http.Cookie) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var seen string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		if UsernameFromContext(r.Context()) != Username(seen) {
			t.Errorf("username not injected")
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddlewareIssuesAndReusesDeviceCookie(t *testing.T) {
	t.Parallel()

	repo := newMemUsers()
	rec, first := serve(t, repo, nil)
	if first == "" {
		t.Fatal("expected a user id in context")
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == DeviceCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != first || !cookie.HttpOnly {
		t.Fatalf("unexpected device cookie %+v", cookie)
	}
	if _, ok := repo.users[first]; !ok {
		t.Fatal("expected user to be created")
	}

	_, second := serve(t, repo, cookie)
	if second != first {
		t.Fatalf("cookie not reused: %s != %s", second, first)
	}
	if repo.touched != 0 {
		t.Fatalf("last seen refreshed too eagerly: %d", repo.touched)
	}
}

func TestMiddlewareReplacesInvalidCookie(t *testing.T) {
	t.Parallel()

	_, id := serve(t, newMemUsers(), &http.Cookie{Name: DeviceCookieName, Value: "../../etc/passwd"})
	if !isValidDeviceID(id) {
		t.Fatalf("expected fresh device id, got %q", id)
	}
}

func TestMiddlewareRefreshesIdleUser(t *testing.T) {
	t.Parallel()

	repo := newMemUsers()
	id := "0b6f3c1e-8a4f-4f0e-9d55-3f1a2b7c9d10"
	old := time.Now().Add(-time.Hour)
	repo.users[id] = &domain.User{UserID: id, LastSeenAt: old, CreatedAt: old, UpdatedAt: old}

	serve(t, repo, &http.Cookie{Name: DeviceCookieName, Value: id})
	if repo.touched != 1 {
		t.Fatalf("expected last seen refresh, touched = %d", repo.touched)
	}
}

func TestMiddlewareStoreFailure(t *testing.T) {
	t.Parallel()

	repo := newMemUsers()
	repo.failWith = errors.New("disk full")
	rec, _ := serve(t, repo, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestUsername(t *testing.T) {
	t.Parallel()

	if got := Username("0b6f3c1e-8a4f-4f0e-9d55-3f1a2b7c9d10"); got != "yogi-7c9d10" {
		t.Fatalf("Username = %q", got)
	}
	if got := Username(""); got != "yogi" {
		t.Fatalf("Username(\"\") = %q", got)
	}
}
