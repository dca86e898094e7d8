package store

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"
)

func newTestSessionStore(t *testing.T, ttl time.Duration, revoker TokenRevoker) *JWTSessionStore {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewJWTSessionStoreWithKey(key, ttl, revoker)
}

func TestJWTSessionRoundTrip(t *testing.T) {
	s := newTestSessionStore(t, time.Hour, NewMemoryTokenRevoker())
	token, err := s.NewSession("user-42")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok {
		t.Fatalf("validate: ok=%v err=%v", ok, err)
	}
	if userID != "user-42" {
		t.Fatalf("user id = %q", userID)
	}
}

func TestJWTSessionRevokedAfterDelete(t *testing.T) {
	s := newTestSessionStore(t, time.Hour, NewMemoryTokenRevoker())
	token, err := s.NewSession("user-42")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatal("expected revoked token to fail validation")
	}
}

func TestJWTSessionRejectsGarbage(t *testing.T) {
	s := newTestSessionStore(t, time.Hour, nil)
	if _, ok, err := s.GetUserIDByToken("not.a.jwt"); ok || err == nil {
		t.Fatalf("expected failure, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.GetUserIDByToken(""); ok || err == nil {
		t.Fatalf("expected failure for empty token, got ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionRejectsForeignSignature(t *testing.T) {
	a := newTestSessionStore(t, time.Hour, nil)
	b := newTestSessionStore(t, time.Hour, nil)
	token, err := a.NewSession("user-42")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := b.GetUserIDByToken(token); ok {
		t.Fatal("expected token signed by another key to fail")
	}
}
