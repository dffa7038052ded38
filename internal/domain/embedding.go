package domain

import (
	"context"
	"fmt"
)

// KeyPrefix namespaces every key this service writes to the shared store.
// Overridden once at startup from storage.key_prefix.
var KeyPrefix = "syncdex:"

// Modality selects which embedding capability a vector field uses.
type Modality string

// Embedding modalities.
const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "multimodal"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple inputs in a single API call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// BatchFallback calls Embed once per input for providers without native batching.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	var totalPrompt, totalTokens int

	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		embeddings[i] = res.Embedding
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	return BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// EmbedAll vectorizes inputs through BatchEmbed when supported, else one by one.
func EmbedAll(ctx context.Context, e Embedder, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	var (
		res BatchEmbeddingResult
		err error
	)
	if be, ok := e.(BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, inputs)
	} else {
		res, err = BatchFallback(ctx, e, inputs)
	}
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d: %w",
			len(res.Embeddings), len(inputs), ErrEmbeddingProviderError)
	}
	return res.Embeddings, nil
}

// Embedders holds one embedder per modality. Image may be nil when no multimodal model is configured.
type Embedders struct {
	Text  Embedder
	Image Embedder
}

// For returns the embedder for a modality, or an error if it is not configured.
func (e Embedders) For(m Modality) (Embedder, error) {
	switch m {
	case ModalityText:
		if e.Text != nil {
			return e.Text, nil
		}
	case ModalityImage:
		if e.Image != nil {
			return e.Image, nil
		}
	}
	return nil, fmt.Errorf("no %s embedder configured: %w", m, ErrEmbeddingProviderError)
}
