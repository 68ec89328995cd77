package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"keiri-backend/llm"
	"keiri-backend/models"
)

const (
	chunksFile = "chunks.json"
	metaFile   = "meta.json"

	embedBatchSize = 64
)

// Document is one raw corpus unit handed to Build.
type Document struct {
	ID   string
	Text string
}

// Metadata is the sidecar record persisted next to the chunks. The backend
// identity recorded here gates every subsequent Load.
type Metadata struct {
	BackendID    string    `json:"backend_id"`
	Dimensions   int       `json:"dimensions"`
	ChunkCount   int       `json:"chunk_count"`
	ChunkSize    int       `json:"chunk_size"`
	ChunkOverlap int       `json:"chunk_overlap"`
	BuiltAt      time.Time `json:"built_at"`
}

// Index is an in-memory set of embedded chunks over a small corpus, backed by
// a directory on disk. It is a disposable cache: rebuilds replace it wholesale,
// there is no upsert.
type Index struct {
	chunks []models.DocumentChunk
	meta   Metadata
}

// BuildOptions configures an index rebuild.
type BuildOptions struct {
	ChunkSize    int
	ChunkOverlap int
	Dir          string // persistence directory, swapped atomically on success
}

// Build chunks and embeds the corpus, writes the result to opts.Dir, and
// returns the index. The write is all-or-nothing: everything goes to a
// temporary directory first and is renamed into place only after every
// document has been embedded, so a mid-build failure never leaves a
// partially-written index behind.
func Build(ctx context.Context, corpus []Document, opts BuildOptions, embedder llm.Embedder) (*Index, error) {
	var chunks []models.DocumentChunk
	var texts []string
	for _, doc := range corpus {
		parts, err := SplitText(doc.Text, opts.ChunkSize, opts.ChunkOverlap)
		if err != nil {
			return nil, err
		}
		for i, part := range parts {
			chunks = append(chunks, models.DocumentChunk{
				SourceID:      doc.ID,
				SequenceIndex: i,
				Text:          part,
			})
			texts = append(texts, part)
		}
	}
	if len(chunks) == 0 {
		return nil, ErrEmptyCorpus
	}

	log.Printf("Embedding %d chunks from %d documents with %s", len(chunks), len(corpus), embedder.BackendID())

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		for i, vec := range vecs {
			if len(vec) != embedder.Dimensions() {
				return nil, fmt.Errorf("chunk %d: embedding has %d dimensions, backend reports %d",
					start+i, len(vec), embedder.Dimensions())
			}
			normalize(vec)
			chunks[start+i].Embedding = vec
		}
	}

	idx := &Index{
		chunks: chunks,
		meta: Metadata{
			BackendID:    embedder.BackendID(),
			Dimensions:   embedder.Dimensions(),
			ChunkCount:   len(chunks),
			ChunkSize:    opts.ChunkSize,
			ChunkOverlap: opts.ChunkOverlap,
			BuiltAt:      time.Now().UTC(),
		},
	}

	if err := idx.save(opts.Dir); err != nil {
		return nil, err
	}
	return idx, nil
}

// save writes the index to a temporary sibling directory and swaps it into
// place with renames.
func (idx *Index) save(dir string) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create index parent directory: %w", err)
	}

	tmp := dir + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("failed to clear temp index directory: %w", err)
	}
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return fmt.Errorf("failed to create temp index directory: %w", err)
	}

	chunkData, err := json.Marshal(idx.chunks)
	if err != nil {
		return fmt.Errorf("failed to marshal chunks: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, chunksFile), chunkData, 0644); err != nil {
		return fmt.Errorf("failed to write chunks file: %w", err)
	}

	metaData, err := json.Marshal(idx.meta)
	if err != nil {
		return fmt.Errorf("failed to marshal index metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, metaFile), metaData, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	old := dir + ".old"
	if _, err := os.Stat(dir); err == nil {
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("failed to clear previous index backup: %w", err)
		}
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("failed to move previous index aside: %w", err)
		}
	}
	if err := os.Rename(tmp, dir); err != nil {
		return fmt.Errorf("failed to swap index into place: %w", err)
	}
	if err := os.RemoveAll(old); err != nil {
		log.Printf("Warning: failed to remove previous index at %s: %v", old, err)
	}
	return nil
}

// Load reads an index from dir and verifies it was built with the same
// embedding backend that will serve queries.
func Load(dir string, embedder llm.Embedder) (*Index, error) {
	metaData, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, dir)
		}
		return nil, fmt.Errorf("failed to read index metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode index metadata: %w", err)
	}

	if meta.BackendID != embedder.BackendID() || meta.Dimensions != embedder.Dimensions() {
		return nil, &IncompatibleBackendError{
			BuiltWith:   meta.BackendID,
			Loading:     embedder.BackendID(),
			BuiltDims:   meta.Dimensions,
			LoadingDims: embedder.Dimensions(),
		}
	}

	chunkData, err := os.ReadFile(filepath.Join(dir, chunksFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, dir)
		}
		return nil, fmt.Errorf("failed to read chunks file: %w", err)
	}

	var chunks []models.DocumentChunk
	if err := json.Unmarshal(chunkData, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode chunks: %w", err)
	}

	return &Index{chunks: chunks, meta: meta}, nil
}

// Meta returns the build metadata recorded with the index.
func (idx *Index) Meta() Metadata {
	return idx.meta
}

// Len returns the number of chunks in the index.
func (idx *Index) Len() int {
	return len(idx.chunks)
}

// Query embeds text with the index's backend and returns the k nearest chunks
// by cosine similarity, highest first. Ordering is deterministic: ties break
// on (source id, sequence index).
func (idx *Index) Query(ctx context.Context, embedder llm.Embedder, text string, k int) ([]models.RetrievedChunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}
	if len(idx.chunks) == 0 {
		return nil, ErrEmptyIndex
	}
	if embedder.BackendID() != idx.meta.BackendID || embedder.Dimensions() != idx.meta.Dimensions {
		return nil, &IncompatibleBackendError{
			BuiltWith:   idx.meta.BackendID,
			Loading:     embedder.BackendID(),
			BuiltDims:   idx.meta.Dimensions,
			LoadingDims: embedder.Dimensions(),
		}
	}

	queryVec, err := embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	normalize(queryVec)

	results := make([]models.RetrievedChunk, 0, len(idx.chunks))
	for _, chunk := range idx.chunks {
		results = append(results, models.RetrievedChunk{
			Chunk: chunk,
			Score: dot(queryVec, chunk.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.SourceID != results[j].Chunk.SourceID {
			return results[i].Chunk.SourceID < results[j].Chunk.SourceID
		}
		return results[i].Chunk.SequenceIndex < results[j].Chunk.SequenceIndex
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// dot is cosine similarity here because both vectors are L2-normalized.
func dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func normalize(vec []float64) {
	var sumSq float64
	for _, v := range vec {
		sumSq += v * v
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] /= norm
	}
}
