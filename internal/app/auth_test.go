package app

import (
	"errors"
	"testing"
	"time"

	"echoself/pkg/domain"
	"echoself/pkg/store"
)

func domainTraits(formality, enthusiasm, verbosity, humor int) domain.PersonalityTraits {
	return domain.PersonalityTraits{Formality: formality, Enthusiasm: enthusiasm, Verbosity: verbosity, Humor: humor}
}

func newAuthApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	a, err := New(Config{
		Store:     s,
		Sessions:  newTestSessionStore(t),
		Generator: &stubGenerator{reply: "ok"},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, s
}

func newTestSessionStore(t *testing.T) store.SessionStore {
	t.Helper()
	return &memorySessions{tokens: map[string]string{}}
}

type memorySessions struct {
	tokens map[string]string
	n      int
}

func (m *memorySessions) NewSession(userID string) (string, error) {
	m.n++
	token := userID + "-token-" + time.Now().Format("150405.000000000") + string(rune('a'+m.n%26))
	m.tokens[token] = userID
	return token, nil
}

func (m *memorySessions) GetUserIDByToken(token string) (string, bool, error) {
	id, ok := m.tokens[token]
	return id, ok, nil
}

func (m *memorySessions) DeleteSession(token string) error {
	delete(m.tokens, token)
	return nil
}

func TestRegisterLoginLogout(t *testing.T) {
	a, _ := newAuthApp(t)
	user, token, err := a.Register("Alice@Example.com", "longenough", "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if token == "" {
		t.Fatal("expected session token")
	}
	got, err := a.Authenticate(token)
	if err != nil || got.ID != user.ID {
		t.Fatalf("authenticate: got %+v err %v", got, err)
	}

	_, loginToken, err := a.Login("alice@example.com", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := a.Logout(loginToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := a.Authenticate(loginToken); err == nil {
		t.Fatal("expected revoked session to fail")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	a, _ := newAuthApp(t)
	if _, _, err := a.Register("a@b.c", "longenough", "A"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := a.Register("a@b.c", "otherpassword", "B")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	a, _ := newAuthApp(t)
	if _, _, err := a.Register("a@b.c", "longenough", "A"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := a.Login("a@b.c", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := a.Login("missing@b.c", "whatever12"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestUpdatePersonalityClampsValues(t *testing.T) {
	a, s := newAuthApp(t)
	user, _, err := a.Register("a@b.c", "longenough", "A")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	traits, err := a.UpdatePersonality(user.ID, domainTraits(15, 0, 5, -3))
	if err != nil {
		t.Fatalf("update personality: %v", err)
	}
	if traits.Formality != 10 || traits.Enthusiasm != 1 || traits.Verbosity != 5 || traits.Humor != 1 {
		t.Fatalf("traits not clamped: %+v", traits)
	}
	got, _, _ := s.GetUserByID(user.ID)
	if got.Personality.Formality != 10 {
		t.Fatalf("persisted traits wrong: %+v", got.Personality)
	}
}
