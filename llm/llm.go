package llm

import (
	"context"
	"fmt"
)

// Embedder maps text to a fixed-length dense vector. Implementations must be
// deterministic for a fixed input and must report a stable backend identity:
// an index built with one embedder cannot be queried with another.
type Embedder interface {
	// EmbedQuery embeds a retrieval query.
	EmbedQuery(ctx context.Context, text string) ([]float64, error)

	// EmbedDocuments embeds corpus chunks for indexing.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)

	// BackendID identifies the embedding model/deployment.
	BackendID() string

	// Dimensions is the fixed vector length this backend produces.
	Dimensions() int
}

// Completer is a single-round-trip text-generation backend.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

// UpstreamError wraps a transport/auth/quota failure reported by a generation
// or embedding backend. The judgment engine converts these into diagnostic
// text responses instead of propagating them.
type UpstreamError struct {
	Backend string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s backend error: %v", e.Backend, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
