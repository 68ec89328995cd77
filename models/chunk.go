package models

// DocumentChunk is one embedded window of a source document in the vector index.
// Chunks are immutable once created; they are replaced wholesale on index rebuild.
type DocumentChunk struct {
	SourceID      string    `json:"source_id"`
	SequenceIndex int       `json:"sequence_index"`
	Text          string    `json:"text"`
	Embedding     []float64 `json:"embedding"`
}

// RetrievedChunk is a chunk paired with its similarity score from a query.
type RetrievedChunk struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float64       `json:"score"` // cosine similarity, higher is closer
}
