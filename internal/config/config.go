package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/tessera-ai/tessera/internal/crypto"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Master key material for per-tenant encryption. PreviousMasterKeys
	// holds retired keys as comma-separated "version:key" pairs so old
	// ciphertext stays decryptable after rotation.
	MasterKey          string `envconfig:"MASTER_KEY" required:"true"`
	MasterKeyVersion   int    `envconfig:"MASTER_KEY_VERSION" default:"1"`
	PreviousMasterKeys string `envconfig:"PREVIOUS_MASTER_KEYS"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"tessera-chunks"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// RetentionPollMinutes is how often the retention worker purges
	// expired chunks.
	RetentionPollMinutes int `envconfig:"RETENTION_POLL_MINUTES" default:"60"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("TESSERA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// KeyringConfig assembles the crypto keyring configuration, parsing the
// previous-keys list. Key strength validation happens in the keyring itself.
func (c *Config) KeyringConfig() (crypto.KeyringConfig, error) {
	previous, err := parsePreviousKeys(c.PreviousMasterKeys)
	if err != nil {
		return crypto.KeyringConfig{}, err
	}
	return crypto.KeyringConfig{
		CurrentKey:     c.MasterKey,
		CurrentVersion: c.MasterKeyVersion,
		PreviousKeys:   previous,
	}, nil
}

// parsePreviousKeys parses "1:keymaterial,2:keymaterial" into a version map.
func parsePreviousKeys(raw string) (map[int]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	keys := make(map[int]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, ":")
		if idx <= 0 || idx == len(pair)-1 {
			return nil, fmt.Errorf("previous master key entry %q is not in version:key form", redactKeyEntry(pair))
		}
		version, err := strconv.Atoi(pair[:idx])
		if err != nil {
			return nil, fmt.Errorf("previous master key version %q is not an integer", pair[:idx])
		}
		keys[version] = pair[idx+1:]
	}
	return keys, nil
}

// redactKeyEntry keeps key material out of error messages.
func redactKeyEntry(pair string) string {
	if idx := strings.Index(pair, ":"); idx > 0 {
		return pair[:idx] + ":***"
	}
	return "***"
}
