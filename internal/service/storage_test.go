package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/domain"
)

type recordingBlobStore struct {
	puts map[string][]byte
	err  error
}

func (r *recordingBlobStore) PutObject(ctx context.Context, key string, data []byte) error {
	if r.err != nil {
		return r.err
	}
	if r.puts == nil {
		r.puts = make(map[string][]byte)
	}
	r.puts[key] = data
	return nil
}

func TestExternalChunkStore(t *testing.T) {
	ctx := context.Background()

	t.Run("namespaces object keys per tenant and source", func(t *testing.T) {
		blobs := &recordingBlobStore{}
		store := NewExternalChunkStore(blobs)

		key, err := store.StoreChunk(ctx, StoreChunkInput{
			TenantID:   "tenant-a",
			SourceID:   "source-1",
			ChunkID:    "chunk-1",
			Ciphertext: "sealed-bytes",
		})

		require.NoError(t, err)
		assert.Equal(t, "tenants/tenant-a/sources/source-1/chunks/chunk-1", key)
		assert.Equal(t, []byte("sealed-bytes"), blobs.puts[key])
	})

	t.Run("wraps backend failures as storage adapter errors", func(t *testing.T) {
		blobs := &recordingBlobStore{err: errors.New("connection refused")}
		store := NewExternalChunkStore(blobs)

		_, err := store.StoreChunk(ctx, StoreChunkInput{TenantID: "t", SourceID: "s", ChunkID: "c"})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStorageAdapterFailed)
	})
}

func TestStorageResolver(t *testing.T) {
	managedSource := &domain.KnowledgeSource{
		ID:              "source-m",
		StorageStrategy: domain.StorageManaged,
	}
	externalSource := &domain.KnowledgeSource{
		ID:              "source-x",
		StorageStrategy: domain.StorageExternal,
		Configuration:   map[string]string{"s3_bucket": "bucket-x"},
	}

	t.Run("injected factory wins over everything", func(t *testing.T) {
		injected := &fakeChunkStore{}
		resolver := NewStorageResolver(func(source *domain.KnowledgeSource) (ChunkStore, error) {
			return injected, nil
		}, func(config map[string]string) (ChunkStore, error) {
			t.Fatal("external builder must not run when a factory is injected")
			return nil, nil
		})

		adapter, err := resolver.Resolve(managedSource)
		require.NoError(t, err)
		assert.Same(t, ChunkStore(injected), adapter)

		adapter, err = resolver.Resolve(externalSource)
		require.NoError(t, err)
		assert.Same(t, ChunkStore(injected), adapter)
	})

	t.Run("managed strategy returns the inline store", func(t *testing.T) {
		resolver := NewStorageResolver(nil, nil)

		adapter, err := resolver.Resolve(managedSource)
		require.NoError(t, err)

		key, err := adapter.StoreChunk(context.Background(), StoreChunkInput{ChunkID: "c"})
		require.NoError(t, err)
		assert.Empty(t, key)
		assert.Zero(t, resolver.CachedAdapterCount())
	})

	t.Run("external adapters are built once and cached per source", func(t *testing.T) {
		builds := 0
		resolver := NewStorageResolver(nil, func(config map[string]string) (ChunkStore, error) {
			builds++
			assert.Equal(t, "bucket-x", config["s3_bucket"])
			return &fakeChunkStore{}, nil
		})

		first, err := resolver.Resolve(externalSource)
		require.NoError(t, err)
		second, err := resolver.Resolve(externalSource)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, builds)
		assert.Equal(t, 1, resolver.CachedAdapterCount())
	})

	t.Run("invalidate forces a rebuild", func(t *testing.T) {
		builds := 0
		resolver := NewStorageResolver(nil, func(config map[string]string) (ChunkStore, error) {
			builds++
			return &fakeChunkStore{}, nil
		})

		_, err := resolver.Resolve(externalSource)
		require.NoError(t, err)
		resolver.Invalidate(externalSource.ID)
		assert.Zero(t, resolver.CachedAdapterCount())

		_, err = resolver.Resolve(externalSource)
		require.NoError(t, err)
		assert.Equal(t, 2, builds)
	})

	t.Run("missing builder for external strategy is an error", func(t *testing.T) {
		resolver := NewStorageResolver(nil, nil)

		_, err := resolver.Resolve(externalSource)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStorageAdapterFailed)
	})

	t.Run("builder failure surfaces as storage adapter error", func(t *testing.T) {
		resolver := NewStorageResolver(nil, func(config map[string]string) (ChunkStore, error) {
			return nil, errors.New("bad credentials")
		})

		_, err := resolver.Resolve(externalSource)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStorageAdapterFailed)
		assert.Zero(t, resolver.CachedAdapterCount())
	})

	t.Run("cache stays bounded under many sources", func(t *testing.T) {
		resolver := NewStorageResolver(nil, func(config map[string]string) (ChunkStore, error) {
			return &fakeChunkStore{}, nil
		})

		for i := 0; i < maxCachedAdapters+50; i++ {
			src := &domain.KnowledgeSource{
				ID:              fmt.Sprintf("source-%d", i),
				StorageStrategy: domain.StorageExternal,
			}
			_, err := resolver.Resolve(src)
			require.NoError(t, err)
		}

		assert.LessOrEqual(t, resolver.CachedAdapterCount(), maxCachedAdapters)
	})
}
