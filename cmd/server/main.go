package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"

	"keiri-backend/corpus"
	"keiri-backend/handlers"
	"keiri-backend/index"
	"keiri-backend/llm"
	"keiri-backend/service"
	"keiri-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from project root (relative to cmd/server/)
	// Try current directory first, then project root
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	// Initialize the corpus document store
	corpusStore, err := storage.NewStorageFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Println("Corpus storage initialized")

	loader := corpus.NewLoader(corpusStore)

	// Initialize the LLM backend
	backend, closeBackend, err := initBackend()
	if err != nil {
		log.Fatal("Failed to initialize LLM backend:", err)
	}
	if closeBackend != nil {
		defer closeBackend()
	}

	// Initialize the judgment service
	judgmentService := service.NewJudgmentService(
		service.WithCompleter(backend),
		service.WithEmbedder(backend),
		service.WithCorpusLoader(loader),
		service.WithIndexDir(envOr("INDEX_DIR", "storage")),
		service.WithTopK(envInt("RETRIEVAL_TOP_K", 2)),
		service.WithChunking(envInt("CHUNK_SIZE", 1000), envInt("CHUNK_OVERLAP", 200)),
	)

	// A missing index is not fatal: extraction and refinement work without
	// it, and POST /api/index/rebuild brings it up.
	if err := judgmentService.LoadIndex(); err != nil {
		if errors.Is(err, index.ErrIndexNotFound) {
			log.Printf("Warning: no vector index found, judgment and chat are unavailable until a rebuild")
		} else {
			log.Fatalf("Failed to load vector index: %v", err)
		}
	}

	// Initialize handlers
	judgmentHandler := handlers.NewJudgmentHandler(judgmentService)
	indexHandler := handlers.NewIndexHandler(judgmentService, loader)

	// Setup Gin router
	r := gin.Default()
	r.Use(requestID())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		// Pipeline endpoints
		api.POST("/extract", judgmentHandler.ExtractItems)
		api.POST("/judge", judgmentHandler.JudgeAssets)
		api.POST("/refine", judgmentHandler.Refine)
		api.POST("/chat", judgmentHandler.Chat)
		api.POST("/useful-life", judgmentHandler.ExtractUsefulLife)

		// Index lifecycle endpoints
		api.POST("/index/rebuild", indexHandler.Rebuild)
		api.GET("/index/status", indexHandler.Status)
		api.POST("/corpus/documents", indexHandler.UploadDocument)
	}

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// llmBackend is the combined interface both clients satisfy.
type llmBackend interface {
	llm.Embedder
	llm.Completer
}

// initBackend selects the generation/embedding backend from LLM_BACKEND:
// "azure" (default) or "gemini".
func initBackend() (llmBackend, func() error, error) {
	switch envOr("LLM_BACKEND", "azure") {
	case "gemini":
		client, err := llm.NewGeminiClientFromEnv(context.Background())
		if err != nil {
			return nil, nil, err
		}
		log.Println("Gemini backend initialized")
		return client, client.Close, nil
	case "azure":
		client, err := llm.NewAzureOpenAIClientFromEnv()
		if err != nil {
			return nil, nil, err
		}
		log.Println("Azure OpenAI backend initialized")
		return client, nil, nil
	default:
		return nil, nil, errors.New("LLM_BACKEND must be \"azure\" or \"gemini\"")
	}
}

// requestID tags every request with an id so pipeline log lines can be tied
// back to the call that produced them.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("Invalid %s: %v", key, err)
	}
	return n
}
