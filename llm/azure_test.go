package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *AzureOpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewAzureOpenAIClient(AzureOpenAIConfig{
		APIKey:              "test-key",
		Endpoint:            srv.URL,
		Deployment:          "gpt-4o",
		EmbeddingDeployment: "text-embedding-3-large",
		EmbeddingDimensions: 3,
	})
	require.NoError(t, err)
	return client
}

func TestClientTimeoutsConfiguredOnce(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())
	require.NotNil(t, client.embedClient)
	require.NotNil(t, client.chatClient)
	assert.Equal(t, embedRequestTimeout, client.embedClient.Timeout)
	assert.Equal(t, chatRequestTimeout, client.chatClient.Timeout)
}

func TestCompleteRoundTrip(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("api-key"))
		assert.Contains(t, r.URL.Path, "/openai/deployments/gpt-4o/chat/completions")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "判断結果です。"}},
			},
		})
	}))

	resp, err := client.Complete(context.Background(), "system", "user", 0.2, 2048)
	require.NoError(t, err)
	assert.Equal(t, "判断結果です。", resp)
}

func TestEmbedDocumentsRoundTrip(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/openai/deployments/text-embedding-3-large/embeddings")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float64{0, 1, 0}},
				{"index": 0, "embedding": []float64{1, 0, 0}},
			},
		})
	}))

	vecs, err := client.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	// Responses are reordered by index.
	assert.Equal(t, []float64{1, 0, 0}, vecs[0])
	assert.Equal(t, []float64{0, 1, 0}, vecs[1])
}

func TestCompleteNoRetryOnAuthError(t *testing.T) {
	var calls int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Complete(context.Background(), "system", "user", 0.2, 2048)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 1, calls)
}
