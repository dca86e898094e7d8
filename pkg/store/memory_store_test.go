package store

import (
	"testing"
	"time"

	"echoself/pkg/domain"
)

func TestMemoryStoreAppendMessageUpdatesCounters(t *testing.T) {
	s := NewMemoryStore()
	started := time.Now().UTC()
	if err := s.CreateConversation(domain.Conversation{ID: "c1", UserID: "u1", StartedAt: started}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	first := domain.Message{ID: "m1", Role: "user", Content: "hello", CreatedAt: started.Add(time.Second)}
	second := domain.Message{ID: "m2", Role: "assistant", Content: "hi there", CreatedAt: started.Add(2 * time.Second)}
	if err := s.AppendMessage("c1", first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := s.AppendMessage("c1", second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	conv, ok, err := s.GetConversation("c1")
	if err != nil || !ok {
		t.Fatalf("get conversation: ok=%v err=%v", ok, err)
	}
	if conv.MessageCount != 2 {
		t.Fatalf("message count = %d, want 2", conv.MessageCount)
	}
	if conv.LastMessageAt == nil || !conv.LastMessageAt.Equal(second.CreatedAt) {
		t.Fatalf("last message at = %v, want %v", conv.LastMessageAt, second.CreatedAt)
	}

	msgs, err := s.ListMessages("c1", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("unexpected order: %+v", msgs)
	}
}

func TestMemoryStoreAppendMessageMissingConversation(t *testing.T) {
	s := NewMemoryStore()
	if err := s.AppendMessage("nope", domain.Message{ID: "m1"}); err == nil {
		t.Fatal("expected error for missing conversation")
	}
}

func TestMemoryStoreListMessagesTail(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateConversation(domain.Conversation{ID: "c1", UserID: "u1", StartedAt: time.Now()}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for i := 0; i < 15; i++ {
		msg := domain.Message{ID: string(rune('a' + i)), Role: "user", Content: "x", CreatedAt: time.Now()}
		if err := s.AppendMessage("c1", msg); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	msgs, err := s.ListMessages("c1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 10 {
		t.Fatalf("len = %d, want 10", len(msgs))
	}
	if msgs[0].ID != "f" {
		t.Fatalf("expected tail to start at the sixth message, got %q", msgs[0].ID)
	}
}

func TestMemoryStoreSetMessageMediaPreservesExisting(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateConversation(domain.Conversation{ID: "c1", UserID: "u1", StartedAt: time.Now()}); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if err := s.AppendMessage("c1", domain.Message{ID: "m1", Role: "assistant", Content: "hi", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.SetMessageMedia("m1", "https://cdn/audio.mp3", ""); err != nil {
		t.Fatalf("set audio: %v", err)
	}
	if err := s.SetMessageMedia("m1", "", "https://cdn/video.mp4"); err != nil {
		t.Fatalf("set video: %v", err)
	}
	msg, ok, err := s.GetMessage("m1")
	if err != nil || !ok {
		t.Fatalf("get message: ok=%v err=%v", ok, err)
	}
	if msg.AudioURL != "https://cdn/audio.mp3" || msg.VideoURL != "https://cdn/video.mp4" {
		t.Fatalf("media = %q / %q", msg.AudioURL, msg.VideoURL)
	}
}

func TestMemoryStoreSearchKnowledgeRanksByScore(t *testing.T) {
	s := NewMemoryStore()
	docs := []domain.KnowledgeDoc{
		{ID: "d1", OwnerID: "u1", Content: "close match"},
		{ID: "d2", OwnerID: "u1", Content: "far match"},
		{ID: "d3", OwnerID: "other", Content: "foreign"},
	}
	embeddings := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{1, 0, 0},
	}
	if err := s.SaveKnowledgeDocs(docs, embeddings); err != nil {
		t.Fatalf("save docs: %v", err)
	}
	hits, err := s.SearchKnowledge("u1", []float32{1, 0.1, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2 (owner scoped)", len(hits))
	}
	if hits[0].Content != "close match" {
		t.Fatalf("top hit = %q", hits[0].Content)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("scores not descending: %v then %v", hits[0].Score, hits[1].Score)
	}
}

func TestMemoryStoreEmailLookup(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	u := domain.User{ID: "u1", Email: "a@b.c", Name: "A", Personality: domain.DefaultPersonality(), Status: domain.StatusActive, CreatedAt: now}
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("save: %v", err)
	}
	exists, err := s.HasUserEmail("a@b.c")
	if err != nil || !exists {
		t.Fatalf("has email: exists=%v err=%v", exists, err)
	}
	got, ok, err := s.GetUserByEmail("a@b.c")
	if err != nil || !ok || got.ID != "u1" {
		t.Fatalf("get by email: ok=%v err=%v got=%+v", ok, err, got)
	}
	if _, ok, _ := s.GetUserByEmail("missing@b.c"); ok {
		t.Fatal("expected miss for unknown email")
	}
}
