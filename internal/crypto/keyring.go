// Package crypto implements per-tenant envelope encryption for ingested
// knowledge: a versioned master keyring, HKDF-style key derivation, and an
// AES-256-GCM tenant cipher with key-version tagging for rotation.
package crypto

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tessera-ai/tessera/internal/domain"
)

const minMasterKeyLen = 32

// weakKeySubstrings rejects master keys built from trivially guessable
// material regardless of length.
var weakKeySubstrings = []string{
	"password",
	"secret",
	"changeme",
	"default",
	"12345678",
	"qwerty",
}

// Keyring holds versioned master keys and a current-version pointer. It is an
// explicit value constructed once at startup and passed to every component
// that needs key access; there is no process-wide registry.
type Keyring struct {
	keys    map[int]string
	current int
}

// KeyringConfig describes the keys to install. PreviousKeys maps retired
// version numbers to their material so old ciphertext stays decryptable.
type KeyringConfig struct {
	CurrentKey     string
	CurrentVersion int
	PreviousKeys   map[int]string
}

// NewKeyring validates and installs a single current key at version 1.
func NewKeyring(masterKey string) (*Keyring, error) {
	return NewKeyringWithRotation(KeyringConfig{
		CurrentKey:     masterKey,
		CurrentVersion: 1,
	})
}

// NewKeyringWithRotation validates and installs the full rotation config.
// Any validation failure leaves no partial state behind.
func NewKeyringWithRotation(cfg KeyringConfig) (*Keyring, error) {
	if cfg.CurrentKey == "" {
		return nil, domain.NewDomainError(domain.ErrCodeConfiguration, "current master key is required")
	}
	if cfg.CurrentVersion <= 0 {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			fmt.Sprintf("current key version %d", cfg.CurrentVersion), domain.ErrInvalidKeyVersion)
	}

	keys := make(map[int]string, len(cfg.PreviousKeys)+1)
	if err := validateMasterKey(cfg.CurrentKey); err != nil {
		return nil, err
	}
	keys[cfg.CurrentVersion] = cfg.CurrentKey

	for version, key := range cfg.PreviousKeys {
		if version <= 0 {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
				fmt.Sprintf("previous key version %d", version), domain.ErrInvalidKeyVersion)
		}
		if _, exists := keys[version]; exists {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
				fmt.Sprintf("key version %d registered twice", version), domain.ErrDuplicateKeyVersion)
		}
		if err := validateMasterKey(key); err != nil {
			return nil, err
		}
		keys[version] = key
	}

	return &Keyring{keys: keys, current: cfg.CurrentVersion}, nil
}

// CurrentVersion returns the version new encryptions are tagged with.
func (k *Keyring) CurrentVersion() int {
	return k.current
}

// Versions returns all registered key versions in ascending order.
func (k *Keyring) Versions() []int {
	versions := make([]int, 0, len(k.keys))
	for v := range k.keys {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

// MasterKey returns the key material for the requested version. Version 0
// selects the current version.
func (k *Keyring) MasterKey(version int) (string, error) {
	if version == 0 {
		version = k.current
	}
	key, ok := k.keys[version]
	if !ok {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeKeyNotFound,
			fmt.Sprintf("key version %d", version), domain.ErrKeyVersionNotFound)
	}
	return key, nil
}

func validateMasterKey(key string) error {
	if len(key) < minMasterKeyLen {
		return domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			fmt.Sprintf("master key shorter than %d bytes", minMasterKeyLen), domain.ErrWeakMasterKey)
	}
	lower := strings.ToLower(key)
	for _, weak := range weakKeySubstrings {
		if strings.Contains(lower, weak) {
			return domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
				"master key contains a denylisted substring", domain.ErrWeakMasterKey)
		}
	}
	return nil
}
