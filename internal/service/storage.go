package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/tessera-ai/tessera/internal/domain"
)

// StoreChunkInput carries one chunk's ciphertext to a storage backend.
type StoreChunkInput struct {
	TenantID   string
	SourceID   string
	ChunkID    string
	Ciphertext string
}

// ChunkStore is the closed storage-adapter contract: store ciphertext,
// return an optional reference key. Managed backends return "" and the
// ciphertext stays inline in the chunk row.
type ChunkStore interface {
	StoreChunk(ctx context.Context, input StoreChunkInput) (string, error)
}

// AdapterFactory builds a ChunkStore for a source. Injected by callers who
// want full control over adapter selection (tests, embedded deployments).
type AdapterFactory func(source *domain.KnowledgeSource) (ChunkStore, error)

// ExternalAdapterBuilder builds a ChunkStore from a source's configuration
// when the source uses the external storage strategy.
type ExternalAdapterBuilder func(config map[string]string) (ChunkStore, error)

// managedChunkStore stores nothing out of process; ciphertext remains inline.
type managedChunkStore struct{}

func (managedChunkStore) StoreChunk(ctx context.Context, input StoreChunkInput) (string, error) {
	return "", nil
}

// BlobStore is the out-of-process blob backend consumed by the external
// adapter. Implemented by storage.S3Client.
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte) error
}

// NewExternalChunkStore wraps a blob backend as a ChunkStore. Object keys are
// namespaced per tenant and source so cross-tenant listing is impossible.
func NewExternalChunkStore(blobs BlobStore) ChunkStore {
	return &externalChunkStore{blobs: blobs}
}

type externalChunkStore struct {
	blobs BlobStore
}

func (s *externalChunkStore) StoreChunk(ctx context.Context, input StoreChunkInput) (string, error) {
	key := fmt.Sprintf("tenants/%s/sources/%s/chunks/%s", input.TenantID, input.SourceID, input.ChunkID)
	if err := s.blobs.PutObject(ctx, key, []byte(input.Ciphertext)); err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeStorageAdapter,
			fmt.Sprintf("put chunk object %s", key), err)
	}
	return key, nil
}

// maxCachedAdapters bounds the per-source adapter cache.
const maxCachedAdapters = 256

// StorageResolver resolves the ChunkStore for a source with the precedence:
// injected factory, managed singleton, cached external adapter built from the
// source's configuration. The cache is the only long-lived shared mutable
// state in the pipeline; entries are rebuildable from persisted source
// configuration, so last-writer-wins under concurrent invalidation is fine.
type StorageResolver struct {
	factory  AdapterFactory
	external ExternalAdapterBuilder
	managed  ChunkStore

	mu    sync.Mutex
	cache map[string]ChunkStore
}

// NewStorageResolver creates a resolver. factory may be nil; external must be
// non-nil unless every source uses managed storage or an injected factory.
func NewStorageResolver(factory AdapterFactory, external ExternalAdapterBuilder) *StorageResolver {
	return &StorageResolver{
		factory:  factory,
		external: external,
		managed:  managedChunkStore{},
		cache:    make(map[string]ChunkStore),
	}
}

// Resolve returns the adapter for a source per the documented precedence.
func (r *StorageResolver) Resolve(source *domain.KnowledgeSource) (ChunkStore, error) {
	if r.factory != nil {
		return r.factory(source)
	}

	if source.StorageStrategy == domain.StorageManaged {
		return r.managed, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.cache[source.ID]; ok {
		return adapter, nil
	}

	if r.external == nil {
		return nil, domain.NewDomainError(domain.ErrCodeStorageAdapter,
			"no external adapter builder configured for external storage strategy")
	}

	adapter, err := r.external(source.Configuration)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStorageAdapter,
			fmt.Sprintf("build external adapter for source %s", source.ID), err)
	}

	if len(r.cache) >= maxCachedAdapters {
		// Evict one arbitrary entry; entries are cheap to rebuild.
		for id := range r.cache {
			delete(r.cache, id)
			break
		}
	}
	r.cache[source.ID] = adapter

	return adapter, nil
}

// Invalidate drops the cached adapter for a source. Called whenever the
// source's configuration or storage strategy changes.
func (r *StorageResolver) Invalidate(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, sourceID)
}

// CachedAdapterCount reports the number of cached adapters.
func (r *StorageResolver) CachedAdapterCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
