package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/tessera-ai/tessera/internal/domain"
)

// ChunkRepository handles persistence of encrypted knowledge chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// InsertBatch inserts all chunks. Callers run this inside a transaction so a
// partial batch never commits.
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []*domain.KnowledgeChunk) error {
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		// The vector column is written in the same statement as the row
		// so the embedding never outlives its chunk.
		var embedding any
		if c.HasEmbedding() {
			embedding = pgvector.NewVector(c.Embedding)
		}

		_, err := r.db.Exec(ctx,
			`INSERT INTO knowledge_chunks
				(id, source_id, tenant_id, document_id, content, checksum, chunk_size, token_count, embedding, embedding_model, storage_key, retention_expires_at, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			c.ID,
			c.SourceID,
			nullableString(c.TenantID),
			nullableString(c.DocumentID),
			c.Content,
			c.Checksum,
			c.ChunkSize,
			c.TokenCount,
			embedding,
			nullableString(c.EmbeddingModel),
			nullableString(c.StorageKey),
			c.RetentionExpiresAt,
			createdAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ExistingChecksums returns which of the given checksums are already
// persisted for the source. Dedup is scoped per source only.
func (r *ChunkRepository) ExistingChecksums(ctx context.Context, sourceID string, checksums []string) (map[string]bool, error) {
	if len(checksums) == 0 {
		return map[string]bool{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT checksum FROM knowledge_chunks WHERE source_id = $1 AND checksum = ANY($2)`,
		sourceID, checksums,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var checksum string
		if err := rows.Scan(&checksum); err != nil {
			return nil, err
		}
		existing[checksum] = true
	}
	return existing, rows.Err()
}

// DeleteByDocument removes all chunks for a source tagged with the given
// logical document id (replace-on-reingest).
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, sourceID, documentID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_chunks WHERE source_id = $1 AND document_id = $2`,
		sourceID, documentID,
	)
	return err
}

// DeleteExpired removes chunks whose retention expiry has passed.
func (r *ChunkRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_chunks WHERE retention_expires_at IS NOT NULL AND retention_expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ChunkRepository) CountBySource(ctx context.Context, sourceID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_chunks WHERE source_id = $1`,
		sourceID,
	).Scan(&count)
	return count, err
}

// ListBySource returns a source's chunks in insertion order. Embeddings are
// not loaded; callers that need vectors query them explicitly.
func (r *ChunkRepository) ListBySource(ctx context.Context, sourceID string) ([]*domain.KnowledgeChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, source_id, tenant_id, document_id, content, checksum, chunk_size, token_count, embedding_model, storage_key, retention_expires_at, created_at
		 FROM knowledge_chunks WHERE source_id = $1 ORDER BY created_at, id`,
		sourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*domain.KnowledgeChunk
	for rows.Next() {
		var c domain.KnowledgeChunk
		var tenantID, documentID, embeddingModel, storageKey *string
		err := rows.Scan(
			&c.ID, &c.SourceID, &tenantID, &documentID, &c.Content, &c.Checksum,
			&c.ChunkSize, &c.TokenCount, &embeddingModel, &storageKey,
			&c.RetentionExpiresAt, &c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if tenantID != nil {
			c.TenantID = *tenantID
		}
		if documentID != nil {
			c.DocumentID = *documentID
		}
		if embeddingModel != nil {
			c.EmbeddingModel = *embeddingModel
		}
		if storageKey != nil {
			c.StorageKey = *storageKey
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// HasEmbedding reports whether a persisted chunk row carries a vector.
func (r *ChunkRepository) HasEmbedding(ctx context.Context, chunkID string) (bool, error) {
	var present bool
	err := r.db.QueryRow(ctx,
		`SELECT embedding IS NOT NULL FROM knowledge_chunks WHERE id = $1`,
		chunkID,
	).Scan(&present)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.ErrChunkNotFound
	}
	return present, err
}
