package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-ai/tessera/internal/config"
	"github.com/tessera-ai/tessera/internal/crypto"
	"github.com/tessera-ai/tessera/internal/extract"
	"github.com/tessera-ai/tessera/internal/openai"
	"github.com/tessera-ai/tessera/internal/repository"
	"github.com/tessera-ai/tessera/internal/service"
	"github.com/tessera-ai/tessera/internal/storage"
)

// buildIngestion wires the full ingestion pipeline from configuration. The
// embedding client is optional; without it every chunk persists unembedded.
func buildIngestion(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*service.IngestionService, error) {
	krCfg, err := cfg.KeyringConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to parse master key config: %w", err)
	}
	keyring, err := crypto.NewKeyringWithRotation(krCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build keyring: %w", err)
	}

	var embedder service.EmbeddingClient
	var embeddingModel string
	if cfg.HasOpenAI() {
		client := openai.NewClient(cfg.OpenAIAPIKey)
		embedder = client
		embeddingModel = client.Model()
	}

	resolver := service.NewStorageResolver(nil, externalAdapterBuilder(ctx, cfg))

	return service.NewIngestionService(service.IngestionConfig{
		Sources:        repository.NewSourceRepository(pool),
		Chunks:         repository.NewChunkRepository(pool),
		Audit:          repository.NewAuditRepository(pool),
		TxRunner:       repository.NewTxRunner(pool),
		Cipher:         crypto.NewCipher(keyring),
		Embedder:       embedder,
		EmbeddingModel: embeddingModel,
		Resolver:       resolver,
		Extractor:      extract.NewPlainTextExtractor(),
	}), nil
}

// externalAdapterBuilder builds S3-backed chunk stores from a source's
// configuration, falling back to the process-level S3 settings for any value
// the source does not override.
func externalAdapterBuilder(ctx context.Context, cfg *config.Config) service.ExternalAdapterBuilder {
	return func(sourceCfg map[string]string) (service.ChunkStore, error) {
		pick := func(key, fallback string) string {
			if v, ok := sourceCfg[key]; ok && v != "" {
				return v
			}
			return fallback
		}

		s3Cfg := storage.S3ClientConfig{
			Endpoint:        pick("s3_endpoint", cfg.S3Endpoint),
			Region:          pick("s3_region", cfg.S3Region),
			AccessKeyID:     pick("s3_access_key", cfg.S3AccessKey),
			SecretAccessKey: pick("s3_secret_key", cfg.S3SecretKey),
			Bucket:          pick("s3_bucket", cfg.S3Bucket),
			UsePathStyle:    true,
		}
		if s3Cfg.Endpoint == "" || s3Cfg.AccessKeyID == "" || s3Cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("external storage requested but no S3 settings configured")
		}

		client, err := storage.NewS3Client(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		return service.NewExternalChunkStore(client), nil
	}
}
