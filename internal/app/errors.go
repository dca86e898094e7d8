package app

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrAvatarNotFound       = errors.New("avatar not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrGeneration           = errors.New("text generation failed")
	ErrMediaDisabled        = errors.New("media generation not configured")
)
