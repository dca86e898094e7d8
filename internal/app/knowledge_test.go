package app

import (
	"context"
	"strings"
	"testing"

	"echoself/pkg/storage"
	"echoself/pkg/store"
)

type batchStubEmbedder struct {
	batches int
}

func (e *batchStubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

func (e *batchStubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0}
	}
	return out, nil
}

func TestUploadKnowledgeStoresChunks(t *testing.T) {
	s := store.NewMemoryStore()
	embedder := &batchStubEmbedder{}
	a, err := New(Config{
		Store:     s,
		Generator: &stubGenerator{reply: "ok"},
		Embedder:  embedder,
		ChunkSize: 20,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	text := strings.Repeat("persona fact. ", 20)
	n, err := a.UploadKnowledge(context.Background(), "u1", "facts.txt", strings.NewReader(text))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if n < 2 {
		t.Fatalf("expected multiple chunks, got %d", n)
	}
	docs, err := a.ListKnowledge("u1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != n {
		t.Fatalf("stored %d docs, want %d", len(docs), n)
	}
	hits, err := a.SearchKnowledge(context.Background(), "u1", "persona", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected retrieval hits after upload")
	}
}

func TestUploadKnowledgeRejectsEmptyDocument(t *testing.T) {
	a, err := New(Config{
		Store:     store.NewMemoryStore(),
		Generator: &stubGenerator{reply: "ok"},
		Embedder:  &batchStubEmbedder{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := a.UploadKnowledge(context.Background(), "u1", "empty.txt", strings.NewReader("   ")); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestCreateAndSelectAvatar(t *testing.T) {
	s := store.NewMemoryStore()
	a, err := New(Config{
		Store:     s,
		Generator: &stubGenerator{reply: "ok"},
		Objects:   storage.NewMemoryObjectStore(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	user, _ := seedUserAndConversation(t, s, false)

	avatar, err := a.CreateAvatar(context.Background(), user.ID, "Work persona", "face.png", strings.NewReader("img-bytes"), 9, "image/png")
	if err != nil {
		t.Fatalf("create avatar: %v", err)
	}
	if avatar.ImageURL == "" || avatar.ImageKey == "" {
		t.Fatalf("avatar missing image refs: %+v", avatar)
	}
	if err := a.SelectAvatar(user.ID, avatar.ID); err != nil {
		t.Fatalf("select avatar: %v", err)
	}
	got, _, _ := s.GetUserByID(user.ID)
	if got.AvatarID != avatar.ID {
		t.Fatalf("avatar not selected: %+v", got)
	}

	if err := a.SelectAvatar("someone-else", avatar.ID); err == nil {
		t.Fatal("expected ownership check to reject foreign user")
	}

	if err := a.DeleteAvatar(context.Background(), user.ID, avatar.ID); err != nil {
		t.Fatalf("delete avatar: %v", err)
	}
	got, _, _ = s.GetUserByID(user.ID)
	if got.AvatarID != "" {
		t.Fatalf("active avatar should be cleared after delete, got %q", got.AvatarID)
	}
}
