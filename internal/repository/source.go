package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-ai/tessera/internal/domain"
)

// SourceRepository handles persistence of knowledge sources.
type SourceRepository struct {
	db dbtx
}

func NewSourceRepository(pool *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{db: pool}
}

func NewSourceRepositoryWithTx(tx pgx.Tx) *SourceRepository {
	return &SourceRepository{db: tx}
}

func (r *SourceRepository) Create(ctx context.Context, s *domain.KnowledgeSource) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_sources
			(id, tenant_id, name, type, provider, status, storage_strategy, retention_policy, configuration, last_synced_at, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, nullableString(s.TenantID), s.Name, s.Type, s.Provider, s.Status,
		s.StorageStrategy, s.RetentionPolicy, s.Configuration,
		s.LastSyncedAt, nullableString(s.LastError), s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *SourceRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeSource, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		sourceSelect+` WHERE id = $1`,
		id,
	))
}

// GetByTenantAndName looks a source up by its identity pair. An empty tenant
// id selects shared (tenant-agnostic) sources.
func (r *SourceRepository) GetByTenantAndName(ctx context.Context, tenantID, name string) (*domain.KnowledgeSource, error) {
	if tenantID == "" {
		return r.scanOne(r.db.QueryRow(ctx,
			sourceSelect+` WHERE tenant_id IS NULL AND name = $1`,
			name,
		))
	}
	return r.scanOne(r.db.QueryRow(ctx,
		sourceSelect+` WHERE tenant_id = $1 AND name = $2`,
		tenantID, name,
	))
}

func (r *SourceRepository) Update(ctx context.Context, s *domain.KnowledgeSource) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE knowledge_sources
		 SET provider = $1, status = $2, storage_strategy = $3, retention_policy = $4,
		     configuration = $5, last_synced_at = $6, last_error = $7, updated_at = $8
		 WHERE id = $9`,
		s.Provider, s.Status, s.StorageStrategy, s.RetentionPolicy,
		s.Configuration, s.LastSyncedAt, nullableString(s.LastError), s.UpdatedAt, s.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSourceNotFound
	}
	return nil
}

// List returns a tenant's sources plus the shared ones, newest first.
func (r *SourceRepository) List(ctx context.Context, tenantID string) ([]*domain.KnowledgeSource, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if tenantID == "" {
		rows, err = r.db.Query(ctx, sourceSelect+` WHERE tenant_id IS NULL ORDER BY updated_at DESC`)
	} else {
		rows, err = r.db.Query(ctx,
			sourceSelect+` WHERE tenant_id = $1 OR tenant_id IS NULL ORDER BY updated_at DESC`,
			tenantID,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*domain.KnowledgeSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

const sourceSelect = `SELECT id, tenant_id, name, type, provider, status, storage_strategy, retention_policy, configuration, last_synced_at, last_error, created_at, updated_at
	 FROM knowledge_sources`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SourceRepository) scanOne(row pgx.Row) (*domain.KnowledgeSource, error) {
	s, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSourceNotFound
		}
		return nil, err
	}
	return s, nil
}

func scanSource(row rowScanner) (*domain.KnowledgeSource, error) {
	var s domain.KnowledgeSource
	var tenantID, lastError *string
	err := row.Scan(
		&s.ID, &tenantID, &s.Name, &s.Type, &s.Provider, &s.Status,
		&s.StorageStrategy, &s.RetentionPolicy, &s.Configuration,
		&s.LastSyncedAt, &lastError, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tenantID != nil {
		s.TenantID = *tenantID
	}
	if lastError != nil {
		s.LastError = *lastError
	}
	return &s, nil
}
