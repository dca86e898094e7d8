package ai

import "context"

// ChatMessage is one turn of conversation history passed to the model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextGenerator produces a single non-streaming completion from a system
// prompt and ordered message history.
type TextGenerator interface {
	Complete(ctx context.Context, systemPrompt string, messages []ChatMessage) (string, error)
}

// Embedder provides embeddings for text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder optionally supports embedding multiple texts at once.
type BatchEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
