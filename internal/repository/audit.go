package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-ai/tessera/internal/domain"
)

// AuditRepository appends to the ingestion audit trail.
type AuditRepository struct {
	db dbtx
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: pool}
}

func NewAuditRepositoryWithTx(tx pgx.Tx) *AuditRepository {
	return &AuditRepository{db: tx}
}

func (r *AuditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_events (id, source_id, source_name, actor_id, event, summary, entry_count, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.SourceID, event.SourceName, nullableString(event.ActorID),
		event.Event, event.Summary, event.EntryCount, event.Metadata, event.CreatedAt,
	)
	return err
}

// ListBySource returns a source's audit trail, newest first.
func (r *AuditRepository) ListBySource(ctx context.Context, sourceID string, limit int) ([]*domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, source_id, source_name, actor_id, event, summary, entry_count, metadata, created_at
		 FROM audit_events WHERE source_id = $1 ORDER BY created_at DESC LIMIT $2`,
		sourceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var actorID *string
		err := rows.Scan(&e.ID, &e.SourceID, &e.SourceName, &actorID, &e.Event,
			&e.Summary, &e.EntryCount, &e.Metadata, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		if actorID != nil {
			e.ActorID = *actorID
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
