package session

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/apacbi/budgetportal/internal/platform/errors"
	"github.com/apacbi/budgetportal/internal/services/portal/storage"
)

type fakeSessionStore struct {
	sessions map[string]storage.Session
}

func newFakeSessionStore(seedUsers ...string) *fakeSessionStore {
	store := &fakeSessionStore{sessions: map[string]storage.Session{}}
	for _, userID := range seedUsers {
		store.sessions[userID] = storage.Session{UserID: userID}
	}
	return store
}

func (f *fakeSessionStore) GetSession(_ context.Context, userID string) (storage.Session, error) {
	session, ok := f.sessions[userID]
	if !ok {
		return storage.Session{}, storage.ErrNotFound
	}
	return session, nil
}

func (f *fakeSessionStore) UpsertSession(_ context.Context, session storage.Session) error {
	f.sessions[session.UserID] = session
	return nil
}

func newTestGate(t *testing.T, store storage.SessionStore) *Gate {
	t.Helper()
	gate, err := NewGate(store, []byte("test-secret"), DefaultTTL)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	return gate
}

func TestLoginIssuesValidToken(t *testing.T) {
	store := newFakeSessionStore("u1")
	gate := newTestGate(t, store)

	token, err := gate.Login(context.Background(), "u1", "BU-A")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token.Value == "" {
		t.Fatal("expected signed token value")
	}

	identity, err := gate.Validate(context.Background(), token.Value)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if identity.UserID != "u1" || identity.BusinessUnit != "BU-A" {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	gate := newTestGate(t, newFakeSessionStore())

	_, err := gate.Login(context.Background(), "ghost", "BU-A")
	if apperrors.CodeOf(err) != apperrors.CodeUserUnknown {
		t.Fatalf("err = %v, want USER_UNKNOWN", err)
	}
}

func TestLoginRequiresBusinessUnit(t *testing.T) {
	gate := newTestGate(t, newFakeSessionStore("u1"))

	_, err := gate.Login(context.Background(), "u1", "  ")
	if apperrors.CodeOf(err) != apperrors.CodeBusinessUnitRequired {
		t.Fatalf("err = %v, want BUSINESS_UNIT_REQUIRED", err)
	}
}

func TestValidateRejectsRotatedToken(t *testing.T) {
	store := newFakeSessionStore("u1")
	gate := newTestGate(t, store)

	first, err := gate.Login(context.Background(), "u1", "BU-A")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := gate.Login(context.Background(), "u1", "BU-A"); err != nil {
		t.Fatalf("second login: %v", err)
	}

	_, err = gate.Validate(context.Background(), first.Value)
	if apperrors.CodeOf(err) != apperrors.CodeSessionInvalid {
		t.Fatalf("err = %v, want SESSION_INVALID for superseded token", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	store := newFakeSessionStore("u1")
	gate := newTestGate(t, store)

	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return now }

	token, err := gate.Login(context.Background(), "u1", "BU-A")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	gate.now = func() time.Time { return now.Add(DefaultTTL + time.Minute) }
	_, err = gate.Validate(context.Background(), token.Value)
	if apperrors.CodeOf(err) != apperrors.CodeSessionExpired {
		t.Fatalf("err = %v, want SESSION_EXPIRED", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	gate := newTestGate(t, newFakeSessionStore("u1"))

	for _, bearer := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := gate.Validate(context.Background(), bearer)
		if err == nil {
			t.Fatalf("bearer %q: expected error", bearer)
		}
		if code := apperrors.CodeOf(err); code != apperrors.CodeSessionInvalid {
			t.Fatalf("bearer %q: code = %v, want SESSION_INVALID", bearer, code)
		}
	}
}

func TestNewGateValidation(t *testing.T) {
	if _, err := NewGate(nil, []byte("x"), 0); err == nil {
		t.Fatal("expected nil store error")
	}
	if _, err := NewGate(newFakeSessionStore(), nil, 0); err == nil {
		t.Fatal("expected empty secret error")
	}
}
