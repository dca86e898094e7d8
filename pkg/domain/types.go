package domain

import "time"

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

// PersonalityTraits tunes how the persona speaks. Each scale runs 1-10
// with 5 as the neutral midpoint.
type PersonalityTraits struct {
	Formality  int      `json:"formality"`
	Enthusiasm int      `json:"enthusiasm"`
	Verbosity  int      `json:"verbosity"`
	Humor      int      `json:"humor"`
	Traits     []string `json:"traits,omitempty"`
}

// DefaultPersonality returns the neutral trait vector.
func DefaultPersonality() PersonalityTraits {
	return PersonalityTraits{Formality: 5, Enthusiasm: 5, Verbosity: 5, Humor: 5}
}

type User struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	Name         string            `json:"name"`
	PasswordHash string            `json:"-"`
	AvatarID     string            `json:"avatarId,omitempty"`
	VoiceID      string            `json:"voiceId,omitempty"`
	Personality  PersonalityTraits `json:"personality"`
	Status       UserStatus        `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

type AvatarStatus string

const (
	AvatarPending AvatarStatus = "pending"
	AvatarReady   AvatarStatus = "ready"
	AvatarFailed  AvatarStatus = "failed"
)

// Avatar is the still persona image animated by the video synthesizer,
// plus the optional voice sample used for voice cloning.
type Avatar struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"ownerId"`
	Name           string       `json:"name"`
	ImageURL       string       `json:"imageUrl"`
	ImageKey       string       `json:"-"`
	VoiceSampleURL string       `json:"voiceSampleUrl,omitempty"`
	VoiceSampleKey string       `json:"-"`
	Status         AvatarStatus `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

type Conversation struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Title         string     `json:"title"`
	MessageCount  int        `json:"messageCount"`
	StartedAt     time.Time  `json:"startedAt"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

// Message is append-only: after creation only the media references may be
// filled in once the async pipeline completes.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	AudioURL       string    `json:"audioUrl,omitempty"`
	VideoURL       string    `json:"videoUrl,omitempty"`
	ResponseTimeMS int       `json:"responseTimeMs,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// KnowledgeDoc is one embedded snippet in a user's knowledge base.
type KnowledgeDoc struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"ownerId"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// KnowledgeHit is a retrieval result with its similarity score.
type KnowledgeHit struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}
