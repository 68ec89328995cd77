// Command build-index rebuilds the vector index from the corpus store in one
// shot. It is the out-of-process twin of POST /api/index/rebuild, useful for
// seeding an index before the server first starts.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"keiri-backend/corpus"
	"keiri-backend/index"
	"keiri-backend/llm"
	"keiri-backend/storage"

	"github.com/joho/godotenv"
)

func main() {
	indexDir := flag.String("index-dir", "storage", "directory the index is written to")
	chunkSize := flag.Int("chunk-size", 1000, "chunk size in characters")
	chunkOverlap := flag.Int("chunk-overlap", 200, "overlap between consecutive chunks")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	corpusStore, err := storage.NewStorageFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	loader := corpus.NewLoader(corpusStore)

	embedder, cleanup, err := initEmbedder()
	if err != nil {
		log.Fatal("Failed to initialize embedding backend:", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	ctx := context.Background()
	docs, err := loader.LoadIndexDocuments(ctx)
	if err != nil {
		log.Fatalf("Failed to load index documents: %v", err)
	}
	if len(docs) == 0 {
		log.Fatalf("No index documents found under %s", corpus.IndexDocsDir)
	}

	srcs := make([]index.Document, 0, len(docs))
	for _, d := range docs {
		srcs = append(srcs, index.Document{ID: d.ID, Text: d.Text})
	}

	idx, err := index.Build(ctx, srcs, index.BuildOptions{
		ChunkSize:    *chunkSize,
		ChunkOverlap: *chunkOverlap,
		Dir:          *indexDir,
	}, embedder)
	if err != nil {
		log.Fatalf("Failed to build index: %v", err)
	}

	meta := idx.Meta()
	log.Printf("Index built: %d chunks from %d documents, backend %s, written to %s",
		meta.ChunkCount, len(docs), meta.BackendID, *indexDir)
}

func initEmbedder() (llm.Embedder, func() error, error) {
	backend := os.Getenv("LLM_BACKEND")
	if backend == "" {
		backend = "azure"
	}
	if backend == "gemini" {
		client, err := llm.NewGeminiClientFromEnv(context.Background())
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
	client, err := llm.NewAzureOpenAIClientFromEnv()
	if err != nil {
		return nil, nil, err
	}
	return client, nil, nil
}
