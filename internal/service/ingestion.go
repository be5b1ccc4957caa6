package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tessera-ai/tessera/internal/crypto"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

// maxStoredErrorLen bounds the error message persisted on a failed source.
const maxStoredErrorLen = 500

// SourceRepositoryInterface defines the repository interface for knowledge
// source persistence
type SourceRepositoryInterface interface {
	Create(ctx context.Context, s *domain.KnowledgeSource) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeSource, error)
	GetByTenantAndName(ctx context.Context, tenantID, name string) (*domain.KnowledgeSource, error)
	Update(ctx context.Context, s *domain.KnowledgeSource) error
	List(ctx context.Context, tenantID string) ([]*domain.KnowledgeSource, error)
}

// ChunkRepositoryInterface defines the repository interface for knowledge
// chunk persistence
type ChunkRepositoryInterface interface {
	InsertBatch(ctx context.Context, chunks []*domain.KnowledgeChunk) error
	ExistingChecksums(ctx context.Context, sourceID string, checksums []string) (map[string]bool, error)
	DeleteByDocument(ctx context.Context, sourceID, documentID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditRepositoryInterface defines the repository interface for the audit
// trail
type AuditRepositoryInterface interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
}

// EmbeddingClient generates one vector per input text in a single batched
// call.
type EmbeddingClient interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingResult is the explicit outcome of the embedding boundary call. The
// orchestrator inspects Err to decide degrade-vs-propagate instead of letting
// the failure unwind through the pipeline.
type EmbeddingResult struct {
	Vectors [][]float32
	Err     error
}

// Extractor turns raw bytes plus a declared media type into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mediaType string) (string, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// IngestionService turns raw tenant text into deduplicated, per-tenant
// encrypted, embedded chunks, driving the source status state machine.
type IngestionService struct {
	sources        SourceRepositoryInterface
	chunks         ChunkRepositoryInterface
	audit          AuditRepositoryInterface
	txRunner       TxRunner
	cipher         *crypto.Cipher
	embedder       EmbeddingClient
	embeddingModel string
	resolver       *StorageResolver
	extractor      Extractor
	uuidGen        UUIDGenerator
	chunkCfg       ChunkConfig
	now            func() time.Time
}

// IngestionConfig wires the orchestrator's collaborators.
type IngestionConfig struct {
	Sources        SourceRepositoryInterface
	Chunks         ChunkRepositoryInterface
	Audit          AuditRepositoryInterface
	TxRunner       TxRunner
	Cipher         *crypto.Cipher
	Embedder       EmbeddingClient
	EmbeddingModel string
	Resolver       *StorageResolver
	Extractor      Extractor
	UUIDGen        UUIDGenerator
	ChunkConfig    ChunkConfig
}

// NewIngestionService creates a new IngestionService instance
func NewIngestionService(cfg IngestionConfig) *IngestionService {
	uuidGen := cfg.UUIDGen
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	chunkCfg := cfg.ChunkConfig
	if chunkCfg.ChunkSize == 0 {
		chunkCfg = DefaultChunkConfig()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewStorageResolver(nil, nil)
	}
	return &IngestionService{
		sources:        cfg.Sources,
		chunks:         cfg.Chunks,
		audit:          cfg.Audit,
		txRunner:       cfg.TxRunner,
		cipher:         cfg.Cipher,
		embedder:       cfg.Embedder,
		embeddingModel: cfg.EmbeddingModel,
		resolver:       resolver,
		extractor:      cfg.Extractor,
		uuidGen:        uuidGen,
		chunkCfg:       chunkCfg,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// InvalidateAdapter drops the cached storage adapter for a source. Exposed so
// out-of-band configuration changes can force a rebuild.
func (s *IngestionService) InvalidateAdapter(sourceID string) {
	s.resolver.Invalidate(sourceID)
}

// EnsureSourceInput identifies or describes a knowledge source.
type EnsureSourceInput struct {
	TenantID        string
	Name            string
	Type            domain.SourceType
	Provider        string
	StorageStrategy domain.StorageStrategy
	RetentionPolicy domain.RetentionPolicy
	Configuration   map[string]string
}

// EnsureSource looks up a source by (tenant, name), creating it in pending
// state when absent. When present, mutable fields that differ from the
// request are updated and any cached storage adapter is invalidated.
func (s *IngestionService) EnsureSource(ctx context.Context, input EnsureSourceInput) (*domain.KnowledgeSource, error) {
	if input.Name == "" {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "source name", domain.ErrMissingRequiredField)
	}

	existing, err := s.sources.GetByTenantAndName(ctx, input.TenantID, input.Name)
	if err == nil {
		return s.reconcileSource(ctx, existing, input)
	}
	if !isNotFound(err) {
		return nil, err
	}

	now := s.now()
	source := &domain.KnowledgeSource{
		ID:              s.uuidGen.NewString(),
		TenantID:        input.TenantID,
		Name:            input.Name,
		Type:            input.Type,
		Provider:        input.Provider,
		Status:          domain.SourceStatusPending,
		StorageStrategy: input.StorageStrategy,
		RetentionPolicy: input.RetentionPolicy,
		Configuration:   input.Configuration,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if source.StorageStrategy == "" {
		source.StorageStrategy = domain.StorageManaged
	}
	if source.RetentionPolicy == "" {
		source.RetentionPolicy = domain.RetentionIndefinite
	}

	if err := domain.ValidateSource(source); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid source", err)
	}

	if err := s.sources.Create(ctx, source); err != nil {
		return nil, err
	}
	return source, nil
}

// reconcileSource applies changed mutable fields from the request onto an
// existing source.
func (s *IngestionService) reconcileSource(ctx context.Context, source *domain.KnowledgeSource, input EnsureSourceInput) (*domain.KnowledgeSource, error) {
	changed := false

	if input.Provider != "" && input.Provider != source.Provider {
		source.Provider = input.Provider
		changed = true
	}
	if input.StorageStrategy != "" && input.StorageStrategy != source.StorageStrategy {
		if !domain.IsValidStorageStrategy(input.StorageStrategy) {
			return nil, domain.ErrInvalidStorageStrategy
		}
		source.StorageStrategy = input.StorageStrategy
		changed = true
	}
	if input.RetentionPolicy != "" && input.RetentionPolicy != source.RetentionPolicy {
		if !domain.IsValidRetentionPolicy(input.RetentionPolicy) {
			return nil, domain.ErrInvalidRetentionPolicy
		}
		source.RetentionPolicy = input.RetentionPolicy
		changed = true
	}
	if input.Configuration != nil && !equalConfig(source.Configuration, input.Configuration) {
		source.Configuration = input.Configuration
		changed = true
	}

	if !changed {
		return source, nil
	}

	source.UpdatedAt = s.now()
	if err := s.sources.Update(ctx, source); err != nil {
		return nil, err
	}
	s.resolver.Invalidate(source.ID)
	return source, nil
}

// Document is one logical unit of ingested text. DocumentID, when set,
// enables replace-on-reingest: existing chunks tagged with the same id are
// deleted before the new ones are inserted.
type Document struct {
	DocumentID string
	Content    string
	Metadata   map[string]string
}

// NoteInput describes a manual note ingestion.
type NoteInput struct {
	TenantID        string
	SourceName      string
	ActorID         string
	Content         string
	DocumentID      string
	StorageStrategy domain.StorageStrategy
	RetentionPolicy domain.RetentionPolicy
}

// IngestNote ingests a manual note through the shared pipeline.
func (s *IngestionService) IngestNote(ctx context.Context, input NoteInput) (*domain.IngestionSummary, error) {
	source, err := s.EnsureSource(ctx, EnsureSourceInput{
		TenantID:        input.TenantID,
		Name:            input.SourceName,
		Type:            domain.SourceTypeNote,
		Provider:        "manual",
		StorageStrategy: input.StorageStrategy,
		RetentionPolicy: input.RetentionPolicy,
	})
	if err != nil {
		return nil, err
	}

	return s.ingest(ctx, source, input.ActorID, []Document{{
		DocumentID: input.DocumentID,
		Content:    input.Content,
	}})
}

// FileInput describes an uploaded file ingestion.
type FileInput struct {
	TenantID        string
	SourceName      string
	ActorID         string
	Filename        string
	Data            []byte
	MediaType       string
	DocumentID      string
	StorageStrategy domain.StorageStrategy
	RetentionPolicy domain.RetentionPolicy
}

// IngestFile extracts text from the uploaded bytes and ingests it. Extraction
// failures (unsupported media type) abort the call before the source leaves
// its previous state.
func (s *IngestionService) IngestFile(ctx context.Context, input FileInput) (*domain.IngestionSummary, error) {
	text, err := s.extractor.Extract(ctx, input.Data, input.MediaType)
	if err != nil {
		return nil, err
	}

	source, err := s.EnsureSource(ctx, EnsureSourceInput{
		TenantID:        input.TenantID,
		Name:            input.SourceName,
		Type:            domain.SourceTypeFile,
		Provider:        "upload",
		StorageStrategy: input.StorageStrategy,
		RetentionPolicy: input.RetentionPolicy,
	})
	if err != nil {
		return nil, err
	}

	docID := input.DocumentID
	if docID == "" {
		docID = input.Filename
	}

	return s.ingest(ctx, source, input.ActorID, []Document{{
		DocumentID: docID,
		Content:    text,
		Metadata:   map[string]string{"filename": input.Filename},
	}})
}

// BatchInput describes a connector-synced batch of documents.
type BatchInput struct {
	TenantID        string
	SourceName      string
	Provider        string
	ActorID         string
	Documents       []Document
	StorageStrategy domain.StorageStrategy
	RetentionPolicy domain.RetentionPolicy
	Configuration   map[string]string
}

// IngestBatch ingests a connector batch. Each document is chunked
// independently and its metadata attached to every resulting chunk.
func (s *IngestionService) IngestBatch(ctx context.Context, input BatchInput) (*domain.IngestionSummary, error) {
	source, err := s.EnsureSource(ctx, EnsureSourceInput{
		TenantID:        input.TenantID,
		Name:            input.SourceName,
		Type:            domain.SourceTypeConnector,
		Provider:        input.Provider,
		StorageStrategy: input.StorageStrategy,
		RetentionPolicy: input.RetentionPolicy,
		Configuration:   input.Configuration,
	})
	if err != nil {
		return nil, err
	}

	return s.ingest(ctx, source, input.ActorID, input.Documents)
}

// ingest runs the shared pipeline: chunk, embed (degrading on failure),
// encrypt, store, dedup, and persist atomically, then settle the source's
// terminal status. The error-state transition is unconditional: it happens
// even when the failure originates inside the persistence transaction.
func (s *IngestionService) ingest(ctx context.Context, source *domain.KnowledgeSource, actorID string, docs []Document) (summary *domain.IngestionSummary, retErr error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		TenantID:  source.TenantID,
		SourceID:  source.ID,
		Operation: "ingest",
	})
	defer span.End()

	if !hasUsableText(docs) {
		return nil, domain.ErrEmptyIngestionInput
	}

	if err := s.transition(ctx, source, domain.SourceStatusSyncing); err != nil {
		return nil, err
	}

	defer func() {
		if retErr == nil {
			return
		}
		span.SetError(retErr)
		if err := s.markError(ctx, source, retErr); err != nil {
			log.Printf("ingestion: failed to record error state for source %s: %v", source.ID, err)
		}
	}()

	// Chunk every document independently, tagging chunks with their
	// document id and metadata.
	var candidates []domain.Chunk
	for _, doc := range docs {
		pieces := ChunkContent(doc.Content, s.chunkCfg, s.uuidGen)
		for i := range pieces {
			pieces[i].DocumentID = doc.DocumentID
			pieces[i].Metadata = doc.Metadata
		}
		candidates = append(candidates, pieces...)
	}

	now := s.now()
	expiresAt := source.RetentionExpiry(now)
	vectors := s.embedBatch(ctx, source, candidates)

	entries := make([]*domain.KnowledgeChunk, 0, len(candidates))
	adapter, err := s.resolver.Resolve(source)
	if err != nil {
		return nil, err
	}

	for i, chunk := range candidates {
		entry, err := s.sealChunk(ctx, adapter, source, chunk, vectors[i], expiresAt, now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	replacedDocs := replacedDocumentIDs(docs)

	var created []string
	var totalTokens, skipped int

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		for _, docID := range replacedDocs {
			if err := repos.Chunks().DeleteByDocument(ctx, source.ID, docID); err != nil {
				return err
			}
		}

		survivors, skippedCount, err := dedupChunks(ctx, repos.Chunks(), source.ID, entries)
		if err != nil {
			return err
		}
		skipped = skippedCount

		if len(survivors) > 0 {
			if err := repos.Chunks().InsertBatch(ctx, survivors); err != nil {
				return err
			}
		}

		created = created[:0]
		totalTokens = 0
		for _, e := range survivors {
			created = append(created, e.ID)
			totalTokens += e.TokenCount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	syncedAt := s.now()
	source.Status = domain.SourceStatusReady
	source.LastSyncedAt = &syncedAt
	source.LastError = ""
	source.UpdatedAt = syncedAt
	if err := s.sources.Update(ctx, source); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, source, actorID, len(created), skipped, totalTokens)

	return &domain.IngestionSummary{
		SourceID:        source.ID,
		SourceName:      source.Name,
		ChunkCount:      len(candidates),
		CreatedEntryIDs: created,
		TotalTokens:     totalTokens,
		SkippedChunks:   skipped,
	}, nil
}

// embedBatch performs the single batched embedding call and degrades to nil
// vectors on failure so ingestion completes without embeddings.
func (s *IngestionService) embedBatch(ctx context.Context, source *domain.KnowledgeSource, chunks []domain.Chunk) [][]float32 {
	vectors := make([][]float32, len(chunks))
	if len(chunks) == 0 || s.embedder == nil {
		return vectors
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	result := EmbeddingResult{}
	result.Vectors, result.Err = s.embedder.EmbedBatch(ctx, texts)

	if result.Err != nil {
		log.Printf("ingestion: embedding batch failed for source %s, persisting without vectors: %v", source.ID, result.Err)
		telemetry.CaptureError(ctx, result.Err)
		return vectors
	}
	if len(result.Vectors) != len(chunks) {
		log.Printf("ingestion: embedding batch returned %d vectors for %d chunks, persisting without vectors", len(result.Vectors), len(chunks))
		return vectors
	}
	return result.Vectors
}

// sealChunk encrypts one chunk and routes the ciphertext through the storage
// adapter, applying the inline fallback when external storage declines.
func (s *IngestionService) sealChunk(ctx context.Context, adapter ChunkStore, source *domain.KnowledgeSource, chunk domain.Chunk, vector []float32, expiresAt *time.Time, now time.Time) (*domain.KnowledgeChunk, error) {
	tenant := source.EncryptionTenant()

	envelope, err := s.cipher.EncryptForTenant(chunk.Content, tenant, crypto.IngestionContext)
	if err != nil {
		return nil, err
	}

	content := envelope
	storageKey, err := adapter.StoreChunk(ctx, StoreChunkInput{
		TenantID:   tenant,
		SourceID:   source.ID,
		ChunkID:    chunk.ID,
		Ciphertext: envelope,
	})
	if err != nil {
		// Non-fatal: external storage being down must not fail ingestion.
		log.Printf("ingestion: storage adapter declined chunk %s, falling back to inline: %v", chunk.ID, err)
		storageKey = ""
	}
	if storageKey != "" {
		content = domain.ExternalContentPlaceholder
	}

	return &domain.KnowledgeChunk{
		ID:                 chunk.ID,
		SourceID:           source.ID,
		TenantID:           source.TenantID,
		DocumentID:         chunk.DocumentID,
		Content:            content,
		Checksum:           chunk.Checksum,
		ChunkSize:          chunk.Size,
		TokenCount:         chunk.TokenCount,
		Embedding:          vector,
		EmbeddingModel:     s.embeddingModel,
		StorageKey:         storageKey,
		RetentionExpiresAt: expiresAt,
		CreatedAt:          now,
	}, nil
}

// PurgeExpired deletes chunks whose retention expiry has passed. Returns the
// number of rows removed.
func (s *IngestionService) PurgeExpired(ctx context.Context) (int64, error) {
	purged, err := s.chunks.DeleteExpired(ctx, s.now())
	if err != nil || purged == 0 {
		return purged, err
	}

	event := &domain.AuditEvent{
		ID:         s.uuidGen.NewString(),
		SourceID:   "system",
		SourceName: "retention-sweep",
		Event:      domain.AuditEventPurged,
		Summary:    fmt.Sprintf("purged %d expired chunks", purged),
		EntryCount: int(purged),
		CreatedAt:  s.now(),
	}
	if err := s.audit.Append(ctx, event); err != nil {
		log.Printf("retention: failed to append purge audit event: %v", err)
	}
	return purged, nil
}

// ListSources returns all sources visible to a tenant.
func (s *IngestionService) ListSources(ctx context.Context, tenantID string) ([]*domain.KnowledgeSource, error) {
	return s.sources.List(ctx, tenantID)
}

func (s *IngestionService) transition(ctx context.Context, source *domain.KnowledgeSource, status domain.SourceStatus) error {
	source.Status = status
	source.UpdatedAt = s.now()
	return s.sources.Update(ctx, source)
}

func (s *IngestionService) markError(ctx context.Context, source *domain.KnowledgeSource, cause error) error {
	source.Status = domain.SourceStatusError
	source.LastError = truncateError(cause)
	source.UpdatedAt = s.now()
	return s.sources.Update(ctx, source)
}

func (s *IngestionService) appendAudit(ctx context.Context, source *domain.KnowledgeSource, actorID string, created, skipped, totalTokens int) {
	event := &domain.AuditEvent{
		ID:         s.uuidGen.NewString(),
		SourceID:   source.ID,
		SourceName: source.Name,
		ActorID:    actorID,
		Event:      domain.AuditEventIngested,
		Summary: fmt.Sprintf("ingested %d chunks (%d duplicates skipped, %d tokens)",
			created, skipped, totalTokens),
		EntryCount: created,
		Metadata: map[string]string{
			"skipped": fmt.Sprintf("%d", skipped),
			"tokens":  fmt.Sprintf("%d", totalTokens),
		},
		CreatedAt: s.now(),
	}
	if err := s.audit.Append(ctx, event); err != nil {
		// The audit trail is best effort; a sink failure does not undo a
		// committed ingestion.
		log.Printf("ingestion: failed to append audit event for source %s: %v", source.ID, err)
	}
}

// dedupChunks filters out candidates whose checksum already exists among the
// source's persisted chunks, plus in-batch repeats.
func dedupChunks(ctx context.Context, chunks ChunkRepositoryInterface, sourceID string, entries []*domain.KnowledgeChunk) ([]*domain.KnowledgeChunk, int, error) {
	if len(entries) == 0 {
		return nil, 0, nil
	}

	checksums := make([]string, 0, len(entries))
	for _, e := range entries {
		checksums = append(checksums, e.Checksum)
	}

	existing, err := chunks.ExistingChecksums(ctx, sourceID, checksums)
	if err != nil {
		return nil, 0, err
	}

	survivors := make([]*domain.KnowledgeChunk, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	skipped := 0
	for _, e := range entries {
		if existing[e.Checksum] || seen[e.Checksum] {
			skipped++
			continue
		}
		seen[e.Checksum] = true
		survivors = append(survivors, e)
	}
	return survivors, skipped, nil
}

func hasUsableText(docs []Document) bool {
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			return true
		}
	}
	return false
}

func replacedDocumentIDs(docs []Document) []string {
	seen := make(map[string]bool, len(docs))
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.DocumentID == "" || seen[d.DocumentID] {
			continue
		}
		seen[d.DocumentID] = true
		ids = append(ids, d.DocumentID)
	}
	return ids
}

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxStoredErrorLen {
		msg = msg[:maxStoredErrorLen]
	}
	return msg
}

func isNotFound(err error) bool {
	var derr *domain.DomainError
	if errors.As(err, &derr) {
		return derr.Code == domain.ErrCodeNotFound
	}
	return false
}

func equalConfig(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
