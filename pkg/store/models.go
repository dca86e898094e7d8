package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	AvatarID     string
	VoiceID      string
	Personality  datatypes.JSON `gorm:"type:jsonb"`
	Status       string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type AvatarModel struct {
	ID             string `gorm:"primaryKey"`
	OwnerID        string `gorm:"not null;index"`
	Name           string
	ImageURL       string    `gorm:"not null"`
	ImageKey       string
	VoiceSampleURL string
	VoiceSampleKey string
	Status         string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

type ConversationModel struct {
	ID            string `gorm:"primaryKey"`
	UserID        string `gorm:"not null;index"`
	Title         string
	MessageCount  int       `gorm:"not null;default:0"`
	StartedAt     time.Time `gorm:"not null"`
	LastMessageAt *time.Time
}

type MessageModel struct {
	ID             string    `gorm:"primaryKey"`
	ConversationID string    `gorm:"not null;index"`
	Role           string    `gorm:"not null"`
	Content        string    `gorm:"type:text;not null"`
	AudioURL       string
	VideoURL       string
	ResponseTimeMS int
	CreatedAt      time.Time `gorm:"not null;index"`
}

type KnowledgeModel struct {
	ID        string           `gorm:"primaryKey"`
	OwnerID   string           `gorm:"not null;index"`
	Content   string           `gorm:"type:text;not null"`
	Metadata  datatypes.JSON   `gorm:"type:jsonb"`
	Embedding *pgvector.Vector `gorm:"type:vector(384)"`
	CreatedAt time.Time        `gorm:"not null;index"`
}
