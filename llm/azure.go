package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIVersion   = "2024-02-15-preview"
	maxRetries          = 3
	initialBackoff      = time.Second
	embedRequestTimeout = 60 * time.Second
	chatRequestTimeout  = 120 * time.Second
)

// AzureOpenAIConfig holds connection settings for an Azure OpenAI resource.
type AzureOpenAIConfig struct {
	APIKey              string
	Endpoint            string
	Deployment          string // chat deployment
	EmbeddingDeployment string
	APIVersion          string
	EmbeddingDimensions int
}

// AzureOpenAIClient talks to Azure OpenAI chat-completions and embeddings
// endpoints directly over HTTP. It implements both Embedder and Completer.
type AzureOpenAIClient struct {
	cfg         AzureOpenAIConfig
	embedClient *http.Client
	chatClient  *http.Client
}

// NewAzureOpenAIClient validates the configuration and returns a client.
func NewAzureOpenAIClient(cfg AzureOpenAIConfig) (*AzureOpenAIClient, error) {
	if cfg.APIKey == "" || cfg.Endpoint == "" || cfg.Deployment == "" {
		return nil, errors.New("AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_DEPLOYMENT are required")
	}
	if cfg.EmbeddingDeployment == "" {
		cfg.EmbeddingDeployment = cfg.Deployment
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = 3072 // text-embedding-3-large
	}
	return &AzureOpenAIClient{
		cfg:         cfg,
		embedClient: &http.Client{Timeout: embedRequestTimeout},
		chatClient:  &http.Client{Timeout: chatRequestTimeout},
	}, nil
}

// NewAzureOpenAIClientFromEnv builds a client from environment variables.
func NewAzureOpenAIClientFromEnv() (*AzureOpenAIClient, error) {
	cfg := AzureOpenAIConfig{
		APIKey:              os.Getenv("AZURE_OPENAI_API_KEY"),
		Endpoint:            os.Getenv("AZURE_OPENAI_ENDPOINT"),
		Deployment:          os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
		EmbeddingDeployment: os.Getenv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT"),
		APIVersion:          os.Getenv("AZURE_OPENAI_API_VERSION"),
	}
	if dims := os.Getenv("AZURE_OPENAI_EMBEDDING_DIMENSIONS"); dims != "" {
		n, err := strconv.Atoi(dims)
		if err != nil {
			return nil, fmt.Errorf("invalid AZURE_OPENAI_EMBEDDING_DIMENSIONS: %w", err)
		}
		cfg.EmbeddingDimensions = n
	}
	return NewAzureOpenAIClient(cfg)
}

// BackendID identifies the embedding deployment plus its dimensionality.
func (c *AzureOpenAIClient) BackendID() string {
	return fmt.Sprintf("azure-openai/%s/%d", c.cfg.EmbeddingDeployment, c.cfg.EmbeddingDimensions)
}

// Dimensions returns the fixed embedding vector length.
func (c *AzureOpenAIClient) Dimensions() int {
	return c.cfg.EmbeddingDimensions
}

func (c *AzureOpenAIClient) endpointURL(path string) string {
	base := strings.TrimSuffix(c.cfg.Endpoint, "/")
	return base + path + "?api-version=" + url.QueryEscape(c.cfg.APIVersion)
}

type embeddingRequest struct {
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// EmbedQuery embeds a single retrieval query.
func (c *AzureOpenAIClient) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments embeds a batch of texts in one request, preserving order.
func (c *AzureOpenAIClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	jsonData, err := json.Marshal(embeddingRequest{Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	apiURL := c.endpointURL("/openai/deployments/" + url.PathEscape(c.cfg.EmbeddingDeployment) + "/embeddings")

	var body []byte
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("api-key", c.cfg.APIKey)

		resp, err := c.embedClient.Do(req)
		if err != nil {
			if attempt == maxRetries-1 {
				return nil, &UpstreamError{Backend: "azure-openai-embedding", Err: err}
			}
			continue
		}

		b, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if attempt == maxRetries-1 {
				return nil, &UpstreamError{Backend: "azure-openai-embedding", Err: readErr}
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			body = b
			break
		}

		// Auth and request errors will not improve on retry.
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return nil, &UpstreamError{
				Backend: "azure-openai-embedding",
				Err:     fmt.Errorf("API error: %d - %s", resp.StatusCode, string(b)),
			}
		}

		if attempt == maxRetries-1 {
			return nil, &UpstreamError{
				Backend: "azure-openai-embedding",
				Err:     fmt.Errorf("API error after %d attempts: %d - %s", maxRetries, resp.StatusCode, string(b)),
			}
		}
	}

	var apiResp embeddingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &UpstreamError{Backend: "azure-openai-embedding", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if apiResp.Error != nil {
		return nil, &UpstreamError{
			Backend: "azure-openai-embedding",
			Err:     fmt.Errorf("API error: %s (%s)", apiResp.Error.Message, apiResp.Error.Code),
		}
	}
	if len(apiResp.Data) != len(texts) {
		return nil, &UpstreamError{
			Backend: "azure-openai-embedding",
			Err:     fmt.Errorf("got %d embeddings for %d inputs", len(apiResp.Data), len(texts)),
		}
	}

	vecs := make([][]float64, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, &UpstreamError{
				Backend: "azure-openai-embedding",
				Err:     fmt.Errorf("embedding index %d out of range", d.Index),
			}
		}
		if len(d.Embedding) != c.cfg.EmbeddingDimensions {
			return nil, &UpstreamError{
				Backend: "azure-openai-embedding",
				Err:     fmt.Errorf("embedding has %d dimensions, expected %d", len(d.Embedding), c.cfg.EmbeddingDimensions),
			}
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// Complete performs one chat-completions round trip.
func (c *AzureOpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	reqBody := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	apiURL := c.endpointURL("/openai/deployments/" + url.PathEscape(c.cfg.Deployment) + "/chat/completions")

	var body []byte
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("api-key", c.cfg.APIKey)

		resp, err := c.chatClient.Do(req)
		if err != nil {
			if attempt == maxRetries-1 {
				return "", &UpstreamError{Backend: "azure-openai", Err: err}
			}
			continue
		}

		b, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if attempt == maxRetries-1 {
				return "", &UpstreamError{Backend: "azure-openai", Err: readErr}
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			body = b
			break
		}

		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return "", &UpstreamError{
				Backend: "azure-openai",
				Err:     fmt.Errorf("API error: %d - %s", resp.StatusCode, string(b)),
			}
		}

		if attempt == maxRetries-1 {
			return "", &UpstreamError{
				Backend: "azure-openai",
				Err:     fmt.Errorf("API error after %d attempts: %d - %s", maxRetries, resp.StatusCode, string(b)),
			}
		}
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		log.Printf("Failed to decode chat response. Body: %s", string(body))
		return "", &UpstreamError{Backend: "azure-openai", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if apiResp.Error != nil {
		return "", &UpstreamError{
			Backend: "azure-openai",
			Err:     fmt.Errorf("API error: %s (%s)", apiResp.Error.Message, apiResp.Error.Code),
		}
	}
	if len(apiResp.Choices) == 0 {
		return "", &UpstreamError{Backend: "azure-openai", Err: errors.New("API returned no choices")}
	}

	content := apiResp.Choices[0].Message.Content
	if content == "" {
		return "", &UpstreamError{Backend: "azure-openai", Err: errors.New("API returned empty content")}
	}
	return content, nil
}
