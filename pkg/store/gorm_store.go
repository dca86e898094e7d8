package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"echoself/pkg/domain"
)

const migrateLockID int64 = 58215821

const (
	defaultEmbeddingDim      = 384
	canonicalEmbeddingDimEnv = "ECHOSELF_EMBEDDING_DIM"
)

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the canonical embedding dimension used by storage.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim, err := resolveEmbeddingDim(opts.EmbeddingDim)
	if err != nil {
		return nil, err
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&UserModel{}, &AvatarModel{}, &ConversationModel{}, &MessageModel{}, &KnowledgeModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'knowledge_models' AND column_name = 'embedding'
			) THEN
				ALTER TABLE knowledge_models ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter knowledge embedding type: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM message_models m
				WHERE NOT EXISTS (SELECT 1 FROM conversation_models c WHERE c.id = m.conversation_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'message_models'
					AND constraint_name = 'message_models_conversation_id_fkey'
				) THEN
					ALTER TABLE message_models
					ADD CONSTRAINT message_models_conversation_id_fkey
					FOREIGN KEY (conversation_id) REFERENCES conversation_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure message foreign key: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

func resolveEmbeddingDim(configValue int) (int, error) {
	if configValue > 0 {
		return configValue, nil
	}
	raw := strings.TrimSpace(os.Getenv(canonicalEmbeddingDimEnv))
	if raw == "" {
		return defaultEmbeddingDim, nil
	}
	dim, err := strconv.Atoi(raw)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", canonicalEmbeddingDimEnv, raw)
	}
	return dim, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "password_hash", "avatar_id", "voice_id", "personality", "status", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SetUserAvatar points the user at a persona avatar.
func (s *GormStore) SetUserAvatar(id, avatarID string) error {
	return s.updateUserFields(id, map[string]any{"avatar_id": avatarID})
}

// SetUserVoice records the trained voice-clone id.
func (s *GormStore) SetUserVoice(id, voiceID string) error {
	return s.updateUserFields(id, map[string]any{"voice_id": voiceID})
}

// SetUserPersonality replaces the trait vector.
func (s *GormStore) SetUserPersonality(id string, traits domain.PersonalityTraits) error {
	raw, err := json.Marshal(traits)
	if err != nil {
		return err
	}
	return s.updateUserFields(id, map[string]any{"personality": raw})
}

func (s *GormStore) updateUserFields(id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := s.db.Model(&UserModel{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SaveAvatar stores or updates an avatar.
func (s *GormStore) SaveAvatar(a domain.Avatar) error {
	model := avatarToModel(a)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "image_url", "image_key", "voice_sample_url", "voice_sample_key", "status", "updated_at"}),
	}).Create(&model).Error
}

// GetAvatar retrieves an avatar.
func (s *GormStore) GetAvatar(id string) (domain.Avatar, bool, error) {
	var model AvatarModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Avatar{}, false, nil
		}
		return domain.Avatar{}, false, err
	}
	return avatarFromModel(model), true, nil
}

// ListAvatarsByOwner returns avatars owned by a user.
func (s *GormStore) ListAvatarsByOwner(ownerID string) ([]domain.Avatar, error) {
	var models []AvatarModel
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Avatar, 0, len(models))
	for _, m := range models {
		res = append(res, avatarFromModel(m))
	}
	return res, nil
}

// DeleteAvatar removes an avatar record.
func (s *GormStore) DeleteAvatar(id string) error {
	return s.db.Delete(&AvatarModel{}, "id = ?", id).Error
}

// CreateConversation creates a new conversation record.
func (s *GormStore) CreateConversation(conversation domain.Conversation) error {
	model := conversationToModel(conversation)
	return s.db.Create(&model).Error
}

// GetConversation returns one conversation by ID.
func (s *GormStore) GetConversation(id string) (domain.Conversation, bool, error) {
	var model ConversationModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	return conversationFromModel(model), true, nil
}

// ListConversationsByUser returns latest conversations of a user.
func (s *GormStore) ListConversationsByUser(userID string, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []ConversationModel
	if err := s.db.Where("user_id = ?", userID).
		Order("last_message_at DESC NULLS LAST").
		Order("started_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Conversation, 0, len(models))
	for _, model := range models {
		items = append(items, conversationFromModel(model))
	}
	return items, nil
}

// DeleteConversation removes the conversation and its messages via FK cascade.
func (s *GormStore) DeleteConversation(id string) error {
	return s.db.Delete(&ConversationModel{}, "id = ?", id).Error
}

// AppendMessage records a message and bumps the conversation counters in
// the same transaction.
func (s *GormStore) AppendMessage(conversationID string, msg domain.Message) error {
	model := messageToModel(msg)
	model.ConversationID = conversationID
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		res := tx.Model(&ConversationModel{}).Where("id = ?", conversationID).
			Updates(map[string]any{
				"message_count":   gorm.Expr("message_count + 1"),
				"last_message_at": msg.CreatedAt.UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListMessages returns the last N messages in chronological order.
func (s *GormStore) ListMessages(conversationID string, limit int) ([]domain.Message, error) {
	query := s.db.Where("conversation_id = ?", conversationID)
	if limit > 0 {
		query = query.Order("created_at DESC").Limit(limit)
		var models []MessageModel
		if err := query.Find(&models).Error; err != nil {
			return nil, err
		}
		msgs := make([]domain.Message, 0, len(models))
		for i := len(models) - 1; i >= 0; i-- {
			msgs = append(msgs, messageFromModel(models[i]))
		}
		return msgs, nil
	}
	var models []MessageModel
	if err := query.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for _, model := range models {
		msgs = append(msgs, messageFromModel(model))
	}
	return msgs, nil
}

// GetMessage returns one message by ID.
func (s *GormStore) GetMessage(id string) (domain.Message, bool, error) {
	var model MessageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	return messageFromModel(model), true, nil
}

// SetMessageMedia fills in the media references once async jobs complete.
// Content and role stay immutable.
func (s *GormStore) SetMessageMedia(id string, audioURL, videoURL string) error {
	updates := map[string]any{}
	if strings.TrimSpace(audioURL) != "" {
		updates["audio_url"] = audioURL
	}
	if strings.TrimSpace(videoURL) != "" {
		updates["video_url"] = videoURL
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.Model(&MessageModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SaveKnowledgeDocs stores documents with their embeddings.
func (s *GormStore) SaveKnowledgeDocs(docs []domain.KnowledgeDoc, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("got %d docs but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}
	models := make([]KnowledgeModel, 0, len(docs))
	for i, doc := range docs {
		if err := s.validateEmbeddingDim(embeddings[i]); err != nil {
			return err
		}
		model := knowledgeToModel(doc)
		vec := pgvector.NewVector(embeddings[i])
		model.Embedding = &vec
		models = append(models, model)
	}
	return s.db.CreateInBatches(&models, 200).Error
}

// SearchKnowledge finds the closest snippets by cosine distance.
func (s *GormStore) SearchKnowledge(ownerID string, embedding []float32, limit int) ([]domain.KnowledgeHit, error) {
	if limit <= 0 {
		return []domain.KnowledgeHit{}, nil
	}
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)
	var rows []struct {
		KnowledgeModel
		Distance float64
	}
	if err := s.db.Model(&KnowledgeModel{}).
		Select("*, embedding <=> ? AS distance", vec).
		Where("owner_id = ? AND embedding IS NOT NULL", ownerID).
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	hits := make([]domain.KnowledgeHit, 0, len(rows))
	for _, row := range rows {
		doc := knowledgeFromModel(row.KnowledgeModel)
		hits = append(hits, domain.KnowledgeHit{
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Score:    1 - row.Distance,
		})
	}
	return hits, nil
}

// ListKnowledgeByOwner returns a user's documents, newest first.
func (s *GormStore) ListKnowledgeByOwner(ownerID string, limit int) ([]domain.KnowledgeDoc, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []KnowledgeModel
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	docs := make([]domain.KnowledgeDoc, 0, len(models))
	for _, model := range models {
		docs = append(docs, knowledgeFromModel(model))
	}
	return docs, nil
}

// DeleteKnowledgeDoc removes one document owned by the user.
func (s *GormStore) DeleteKnowledgeDoc(ownerID, id string) error {
	return s.db.Delete(&KnowledgeModel{}, "id = ? AND owner_id = ?", id, ownerID).Error
}

func (s *GormStore) validateEmbeddingDim(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	if s.embeddingDim > 0 && len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.embeddingDim)
	}
	return nil
}

func userToModel(u domain.User) UserModel {
	personality, _ := json.Marshal(u.Personality)
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		AvatarID:     u.AvatarID,
		VoiceID:      u.VoiceID,
		Personality:  personality,
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	personality := domain.DefaultPersonality()
	if len(m.Personality) > 0 {
		_ = json.Unmarshal(m.Personality, &personality)
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		AvatarID:     m.AvatarID,
		VoiceID:      m.VoiceID,
		Personality:  personality,
		Status:       status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func avatarToModel(a domain.Avatar) AvatarModel {
	return AvatarModel{
		ID:             a.ID,
		OwnerID:        a.OwnerID,
		Name:           a.Name,
		ImageURL:       a.ImageURL,
		ImageKey:       a.ImageKey,
		VoiceSampleURL: a.VoiceSampleURL,
		VoiceSampleKey: a.VoiceSampleKey,
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func avatarFromModel(m AvatarModel) domain.Avatar {
	return domain.Avatar{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		Name:           m.Name,
		ImageURL:       m.ImageURL,
		ImageKey:       m.ImageKey,
		VoiceSampleURL: m.VoiceSampleURL,
		VoiceSampleKey: m.VoiceSampleKey,
		Status:         domain.AvatarStatus(m.Status),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func conversationToModel(c domain.Conversation) ConversationModel {
	return ConversationModel{
		ID:            c.ID,
		UserID:        c.UserID,
		Title:         c.Title,
		MessageCount:  c.MessageCount,
		StartedAt:     c.StartedAt,
		LastMessageAt: c.LastMessageAt,
	}
}

func conversationFromModel(m ConversationModel) domain.Conversation {
	return domain.Conversation{
		ID:            m.ID,
		UserID:        m.UserID,
		Title:         m.Title,
		MessageCount:  m.MessageCount,
		StartedAt:     m.StartedAt,
		LastMessageAt: m.LastMessageAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		AudioURL:       msg.AudioURL,
		VideoURL:       msg.VideoURL,
		ResponseTimeMS: msg.ResponseTimeMS,
		CreatedAt:      msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		AudioURL:       m.AudioURL,
		VideoURL:       m.VideoURL,
		ResponseTimeMS: m.ResponseTimeMS,
		CreatedAt:      m.CreatedAt,
	}
}

func knowledgeToModel(doc domain.KnowledgeDoc) KnowledgeModel {
	meta, _ := json.Marshal(doc.Metadata)
	return KnowledgeModel{
		ID:        doc.ID,
		OwnerID:   doc.OwnerID,
		Content:   doc.Content,
		Metadata:  meta,
		CreatedAt: doc.CreatedAt,
	}
}

func knowledgeFromModel(model KnowledgeModel) domain.KnowledgeDoc {
	var meta map[string]string
	if len(model.Metadata) > 0 {
		_ = json.Unmarshal(model.Metadata, &meta)
	}
	return domain.KnowledgeDoc{
		ID:        model.ID,
		OwnerID:   model.OwnerID,
		Content:   model.Content,
		Metadata:  meta,
		CreatedAt: model.CreatedAt,
	}
}
