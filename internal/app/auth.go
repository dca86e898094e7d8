package app

import (
	"fmt"
	"strings"
	"time"

	"echoself/internal/util"
	"echoself/pkg/auth"
	"echoself/pkg/domain"
)

// Register creates a user account and returns a session token.
func (a *App) Register(email, password, name string) (domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, "", fmt.Errorf("valid email required")
	}
	if len(password) < 8 {
		return domain.User{}, "", fmt.Errorf("password must be at least 8 characters")
	}
	if name == "" {
		return domain.User{}, "", fmt.Errorf("name required")
	}
	taken, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if taken {
		return domain.User{}, "", ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Personality:  domain.DefaultPersonality(),
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.newSession(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// Login validates credentials and returns a session token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.newSession(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// Logout revokes the session token.
func (a *App) Logout(token string) error {
	if a.sessions == nil {
		return nil
	}
	return a.sessions.DeleteSession(token)
}

// Authenticate resolves a session token to a user.
func (a *App) Authenticate(token string) (domain.User, error) {
	if a.sessions == nil {
		return domain.User{}, fmt.Errorf("sessions not configured")
	}
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// UpdatePersonality replaces the user's trait vector. Values are clamped
// to the 1-10 scale.
func (a *App) UpdatePersonality(userID string, traits domain.PersonalityTraits) (domain.PersonalityTraits, error) {
	traits.Formality = clampTrait(traits.Formality)
	traits.Enthusiasm = clampTrait(traits.Enthusiasm)
	traits.Verbosity = clampTrait(traits.Verbosity)
	traits.Humor = clampTrait(traits.Humor)
	if err := a.store.SetUserPersonality(userID, traits); err != nil {
		return domain.PersonalityTraits{}, fmt.Errorf("save personality: %w", err)
	}
	return traits, nil
}

func clampTrait(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

func (a *App) newSession(userID string) (string, error) {
	if a.sessions == nil {
		return "", fmt.Errorf("sessions not configured")
	}
	token, err := a.sessions.NewSession(userID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}
