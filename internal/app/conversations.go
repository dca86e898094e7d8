package app

import (
	"fmt"
	"strings"
	"time"

	"echoself/internal/util"
	"echoself/pkg/domain"
)

const defaultConversationTitle = "New conversation"

// CreateConversation starts an empty conversation for the user.
func (a *App) CreateConversation(userID, title string) (domain.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultConversationTitle
	}
	conversation := domain.Conversation{
		ID:        util.NewID(),
		UserID:    userID,
		Title:     title,
		StartedAt: time.Now().UTC(),
	}
	if err := a.store.CreateConversation(conversation); err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conversation, nil
}

// ListConversations lists the user's recent conversations.
func (a *App) ListConversations(userID string, limit int) ([]domain.Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	items, err := a.store.ListConversationsByUser(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return items, nil
}

// GetConversation returns a conversation with its messages.
func (a *App) GetConversation(userID, conversationID string, messageLimit int) (domain.Conversation, []domain.Message, error) {
	conversation, ok, err := a.store.GetConversation(conversationID)
	if err != nil {
		return domain.Conversation{}, nil, fmt.Errorf("load conversation: %w", err)
	}
	if !ok || conversation.UserID != userID {
		return domain.Conversation{}, nil, ErrConversationNotFound
	}
	messages, err := a.store.ListMessages(conversationID, messageLimit)
	if err != nil {
		return domain.Conversation{}, nil, fmt.Errorf("load messages: %w", err)
	}
	return conversation, messages, nil
}

// DeleteConversation removes a conversation owned by the user.
func (a *App) DeleteConversation(userID, conversationID string) error {
	conversation, ok, err := a.store.GetConversation(conversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if !ok || conversation.UserID != userID {
		return ErrConversationNotFound
	}
	if err := a.store.DeleteConversation(conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}
