package store

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"echoself/pkg/domain"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	emails        map[string]string
	avatars       map[string]domain.Avatar
	conversations map[string]domain.Conversation
	messages      map[string][]domain.Message
	byMessageID   map[string]string
	knowledge     map[string]domain.KnowledgeDoc
	embeddings    map[string][]float32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         map[string]domain.User{},
		emails:        map[string]string{},
		avatars:       map[string]domain.Avatar{},
		conversations: map[string]domain.Conversation{},
		messages:      map[string][]domain.Message{},
		byMessageID:   map[string]string{},
		knowledge:     map[string]domain.KnowledgeDoc{},
		embeddings:    map[string][]float32{},
	}
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.users[u.ID]; ok && prev.Email != u.Email {
		delete(s.emails, prev.Email)
	}
	s.users[u.ID] = u
	s.emails[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.emails[email]
	return ok, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) SetUserAvatar(id, avatarID string) error {
	return s.mutateUser(id, func(u *domain.User) { u.AvatarID = avatarID })
}

func (s *MemoryStore) SetUserVoice(id, voiceID string) error {
	return s.mutateUser(id, func(u *domain.User) { u.VoiceID = voiceID })
}

func (s *MemoryStore) SetUserPersonality(id string, traits domain.PersonalityTraits) error {
	return s.mutateUser(id, func(u *domain.User) { u.Personality = traits })
}

func (s *MemoryStore) mutateUser(id string, fn func(*domain.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func (s *MemoryStore) SaveAvatar(a domain.Avatar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avatars[a.ID] = a
	return nil
}

func (s *MemoryStore) GetAvatar(id string) (domain.Avatar, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.avatars[id]
	return a, ok, nil
}

func (s *MemoryStore) ListAvatarsByOwner(ownerID string) ([]domain.Avatar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []domain.Avatar
	for _, a := range s.avatars {
		if a.OwnerID == ownerID {
			items = append(items, a)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (s *MemoryStore) DeleteAvatar(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.avatars, id)
	return nil
}

func (s *MemoryStore) CreateConversation(c domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; ok {
		return fmt.Errorf("conversation %s already exists", c.ID)
	}
	s.conversations[c.ID] = c
	return nil
}

func (s *MemoryStore) GetConversation(id string) (domain.Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	return c, ok, nil
}

func (s *MemoryStore) ListConversationsByUser(userID string, limit int) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []domain.Conversation
	for _, c := range s.conversations {
		if c.UserID == userID {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		ti, tj := items[i].StartedAt, items[j].StartedAt
		if items[i].LastMessageAt != nil {
			ti = *items[i].LastMessageAt
		}
		if items[j].LastMessageAt != nil {
			tj = *items[j].LastMessageAt
		}
		return ti.After(tj)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	for _, msg := range s.messages[id] {
		delete(s.byMessageID, msg.ID)
	}
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) AppendMessage(conversationID string, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s not found", conversationID)
	}
	msg.ConversationID = conversationID
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	s.byMessageID[msg.ID] = conversationID
	c.MessageCount++
	at := msg.CreatedAt
	c.LastMessageAt = &at
	s.conversations[conversationID] = c
	return nil
}

func (s *MemoryStore) ListMessages(conversationID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) GetMessage(id string) (domain.Message, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	convID, ok := s.byMessageID[id]
	if !ok {
		return domain.Message{}, false, nil
	}
	for _, msg := range s.messages[convID] {
		if msg.ID == id {
			return msg, true, nil
		}
	}
	return domain.Message{}, false, nil
}

func (s *MemoryStore) SetMessageMedia(id string, audioURL, videoURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	convID, ok := s.byMessageID[id]
	if !ok {
		return fmt.Errorf("message %s not found", id)
	}
	msgs := s.messages[convID]
	for i := range msgs {
		if msgs[i].ID != id {
			continue
		}
		if strings.TrimSpace(audioURL) != "" {
			msgs[i].AudioURL = audioURL
		}
		if strings.TrimSpace(videoURL) != "" {
			msgs[i].VideoURL = videoURL
		}
		return nil
	}
	return fmt.Errorf("message %s not found", id)
}

func (s *MemoryStore) SaveKnowledgeDocs(docs []domain.KnowledgeDoc, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("got %d docs but %d embeddings", len(docs), len(embeddings))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		s.knowledge[doc.ID] = doc
		vec := make([]float32, len(embeddings[i]))
		copy(vec, embeddings[i])
		s.embeddings[doc.ID] = vec
	}
	return nil
}

func (s *MemoryStore) SearchKnowledge(ownerID string, embedding []float32, limit int) ([]domain.KnowledgeHit, error) {
	if limit <= 0 {
		return []domain.KnowledgeHit{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []domain.KnowledgeHit
	for id, doc := range s.knowledge {
		if doc.OwnerID != ownerID {
			continue
		}
		vec, ok := s.embeddings[id]
		if !ok || len(vec) != len(embedding) {
			continue
		}
		hits = append(hits, domain.KnowledgeHit{
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Score:    cosineSimilarity(embedding, vec),
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) ListKnowledgeByOwner(ownerID string, limit int) ([]domain.KnowledgeDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []domain.KnowledgeDoc
	for _, doc := range s.knowledge {
		if doc.OwnerID == ownerID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *MemoryStore) DeleteKnowledgeDoc(ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.knowledge[id]
	if !ok || doc.OwnerID != ownerID {
		return nil
	}
	delete(s.knowledge, id)
	delete(s.embeddings, id)
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
