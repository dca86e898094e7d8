package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"echoself/internal/util"
	"echoself/pkg/ai"
	"echoself/pkg/domain"
)

const (
	embedBatchSize   = 32
	embedConcurrency = 4
)

// UploadKnowledge parses a document, embeds its chunks, and stores them
// in the user's knowledge base. Returns the number of stored chunks.
func (a *App) UploadKnowledge(ctx context.Context, userID, filename string, r io.Reader) (int, error) {
	if a.embedder == nil {
		return 0, fmt.Errorf("embedder not configured")
	}
	chunks, err := a.parser.Parse(filename, r)
	if err != nil {
		return 0, fmt.Errorf("parse document: %w", err)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document contains no text")
	}

	now := time.Now().UTC()
	docs := make([]domain.KnowledgeDoc, len(chunks))
	for i, chunk := range chunks {
		docs[i] = domain.KnowledgeDoc{
			ID:        util.NewID(),
			OwnerID:   userID,
			Content:   chunk.Content,
			Metadata:  chunk.Metadata,
			CreatedAt: now,
		}
	}

	embeddings := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(docs); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		start, end := start, end
		g.Go(func() error {
			return a.embedBatch(gctx, docs[start:end], embeddings[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	if err := a.store.SaveKnowledgeDocs(docs, embeddings); err != nil {
		return 0, fmt.Errorf("save knowledge: %w", err)
	}
	return len(docs), nil
}

func (a *App) embedBatch(ctx context.Context, docs []domain.KnowledgeDoc, out [][]float32) error {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	if batcher, ok := a.embedder.(ai.BatchEmbedder); ok && len(texts) > 1 {
		embeddings, err := batcher.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(embeddings) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(embeddings), len(texts))
		}
		copy(out, embeddings)
		return nil
	}
	for i, text := range texts {
		embedding, err := a.embedder.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		out[i] = embedding
	}
	return nil
}

// SearchKnowledge runs a nearest-neighbor search over the user's base.
func (a *App) SearchKnowledge(ctx context.Context, userID, query string, topK int) ([]domain.KnowledgeHit, error) {
	if a.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	if topK <= 0 {
		topK = a.topK
	}
	embedding, err := a.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := a.store.SearchKnowledge(userID, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	return hits, nil
}

// ListKnowledge returns the user's stored documents, newest first.
func (a *App) ListKnowledge(userID string, limit int) ([]domain.KnowledgeDoc, error) {
	docs, err := a.store.ListKnowledgeByOwner(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	return docs, nil
}

// DeleteKnowledge removes one document owned by the user.
func (a *App) DeleteKnowledge(userID, docID string) error {
	if err := a.store.DeleteKnowledgeDoc(userID, docID); err != nil {
		return fmt.Errorf("delete knowledge: %w", err)
	}
	return nil
}
