package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	geminiEmbeddingModel  = "text-embedding-004"
	geminiGenerationModel = "gemini-1.5-pro"
	geminiEmbeddingDims   = 768
)

// GeminiClient is the Google Gemini backend. It implements both Embedder and
// Completer through the generative-ai-go SDK.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient initializes a Gemini client from an API key.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// NewGeminiClientFromEnv builds a client from the GEMINI_API_KEY variable.
func NewGeminiClientFromEnv(ctx context.Context) (*GeminiClient, error) {
	return NewGeminiClient(ctx, os.Getenv("GEMINI_API_KEY"))
}

// Close releases the underlying gRPC connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// BackendID identifies the embedding model plus its dimensionality.
func (c *GeminiClient) BackendID() string {
	return fmt.Sprintf("gemini/%s/%d", geminiEmbeddingModel, geminiEmbeddingDims)
}

// Dimensions returns the fixed embedding vector length.
func (c *GeminiClient) Dimensions() int {
	return geminiEmbeddingDims
}

// EmbedQuery embeds a single retrieval query.
func (c *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	em := c.client.EmbeddingModel(geminiEmbeddingModel)
	em.TaskType = genai.TaskTypeRetrievalQuery
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, &UpstreamError{Backend: "gemini-embedding", Err: err}
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, &UpstreamError{Backend: "gemini-embedding", Err: errors.New("empty embedding in response")}
	}
	return toFloat64(res.Embedding.Values), nil
}

// EmbedDocuments embeds corpus chunks in one batch request.
func (c *GeminiClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := c.client.EmbeddingModel(geminiEmbeddingModel)
	em.TaskType = genai.TaskTypeRetrievalDocument

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, &UpstreamError{Backend: "gemini-embedding", Err: err}
	}
	if len(res.Embeddings) != len(texts) {
		return nil, &UpstreamError{
			Backend: "gemini-embedding",
			Err:     fmt.Errorf("got %d embeddings for %d inputs", len(res.Embeddings), len(texts)),
		}
	}

	vecs := make([][]float64, len(texts))
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, &UpstreamError{
				Backend: "gemini-embedding",
				Err:     fmt.Errorf("chunk %d has empty embedding", i),
			}
		}
		vecs[i] = toFloat64(e.Values)
	}
	return vecs, nil
}

// Complete performs one generation round trip.
func (c *GeminiClient) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	model := c.client.GenerativeModel(geminiGenerationModel)
	model.SetTemperature(float32(temperature))
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", &UpstreamError{Backend: "gemini", Err: err}
	}
	if len(resp.Candidates) == 0 {
		return "", &UpstreamError{Backend: "gemini", Err: errors.New("API returned no candidates")}
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	result := b.String()
	if result == "" {
		return "", &UpstreamError{Backend: "gemini", Err: errors.New("API returned empty content")}
	}
	return result, nil
}

func toFloat64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
