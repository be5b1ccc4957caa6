package domain

import "time"

// ExternalContentPlaceholder replaces inline ciphertext when a chunk's
// payload lives in external blob storage.
const ExternalContentPlaceholder = "[external]"

// Chunk is the ephemeral output of the chunker: bounded plaintext plus the
// metadata needed to deduplicate and embed it. It is never persisted as-is.
type Chunk struct {
	ID      string
	Content string
	// Size is the chunk's length in runes, the unit the chunker bounds by.
	Size       int
	TokenCount int
	Checksum   string
	// DocumentID tags chunks from the same logical document so a re-upload
	// can replace them. Empty when the caller does not track documents.
	DocumentID string
	Metadata   map[string]string
}

// KnowledgeChunk is the persisted form of an ingested chunk. Content holds
// ciphertext for managed storage or ExternalContentPlaceholder when the
// ciphertext lives behind StorageKey. Rows are immutable except for deletion
// during replace-on-reingest and retention purge.
type KnowledgeChunk struct {
	ID                 string
	SourceID           string
	TenantID           string
	DocumentID         string
	Content            string
	Checksum           string
	ChunkSize          int
	TokenCount         int
	Embedding          []float32
	EmbeddingModel     string
	StorageKey         string
	RetentionExpiresAt *time.Time
	CreatedAt          time.Time
}

// HasEmbedding reports whether the chunk carries a non-empty vector.
func (c *KnowledgeChunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// IngestionSummary is returned to the caller after a successful ingestion
// call. It is never persisted.
type IngestionSummary struct {
	SourceID        string
	SourceName      string
	ChunkCount      int
	CreatedEntryIDs []string
	TotalTokens     int
	SkippedChunks   int
}
