package store

import (
	"echoself/pkg/domain"
)

// Store defines persistence operations for users, avatars, conversations,
// and the knowledge base.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	SetUserAvatar(id, avatarID string) error
	SetUserVoice(id, voiceID string) error
	SetUserPersonality(id string, traits domain.PersonalityTraits) error

	// avatars
	SaveAvatar(domain.Avatar) error
	GetAvatar(id string) (domain.Avatar, bool, error)
	ListAvatarsByOwner(ownerID string) ([]domain.Avatar, error)
	DeleteAvatar(id string) error

	// conversations
	CreateConversation(domain.Conversation) error
	GetConversation(id string) (domain.Conversation, bool, error)
	ListConversationsByUser(userID string, limit int) ([]domain.Conversation, error)
	DeleteConversation(id string) error

	// messages. AppendMessage is atomic per conversation: the message row
	// and the conversation counters move together or not at all.
	AppendMessage(conversationID string, msg domain.Message) error
	ListMessages(conversationID string, limit int) ([]domain.Message, error)
	GetMessage(id string) (domain.Message, bool, error)
	SetMessageMedia(id string, audioURL, videoURL string) error

	// knowledge
	SaveKnowledgeDocs(docs []domain.KnowledgeDoc, embeddings [][]float32) error
	SearchKnowledge(ownerID string, embedding []float32, limit int) ([]domain.KnowledgeHit, error)
	ListKnowledgeByOwner(ownerID string, limit int) ([]domain.KnowledgeDoc, error)
	DeleteKnowledgeDoc(ownerID, id string) error
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
