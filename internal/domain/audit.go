package domain

import "time"

// Audit event names emitted by the ingestion pipeline.
const (
	AuditEventIngested = "source.ingested"
	AuditEventPurged   = "source.chunks_purged"
)

// AuditEvent is an append-only record of a pipeline action against a source.
type AuditEvent struct {
	ID         string
	SourceID   string
	SourceName string
	ActorID    string
	Event      string
	Summary    string
	EntryCount int
	Metadata   map[string]string
	CreatedAt  time.Time
}
