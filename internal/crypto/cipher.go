package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/tessera-ai/tessera/internal/domain"
)

const (
	nonceLen   = 12
	tagLen     = 16
	versionLen = 4

	// minEnvelopeLen rejects envelopes too short to even carry an empty
	// authenticated payload, before any key derivation happens.
	minEnvelopeLen = versionLen + nonceLen + tagLen
)

// IngestionContext is the derivation context used for all chunk encryption.
// One context for the whole pipeline; see DESIGN.md for the trade-off against
// per-source-type contexts.
const IngestionContext = "knowledge-ingestion"

// Cipher provides authenticated per-tenant encryption backed by a Keyring.
// Envelopes are self-describing: base64(version || iv || tag || ciphertext).
type Cipher struct {
	keyring *Keyring
}

// NewCipher creates a Cipher over the given keyring.
func NewCipher(keyring *Keyring) *Cipher {
	return &Cipher{keyring: keyring}
}

// EncryptForTenant encrypts plaintext under the key derived for
// (tenantID, keyContext) at the keyring's current version. A fresh IV is
// generated per call, so two encryptions of the same plaintext differ.
func (c *Cipher) EncryptForTenant(plaintext, tenantID, keyContext string) (string, error) {
	version := c.keyring.CurrentVersion()
	masterKey, err := c.keyring.MasterKey(version)
	if err != nil {
		return "", err
	}

	key, err := DeriveKey(masterKey, tenantID, keyContext)
	if err != nil {
		return "", err
	}
	defer Wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, nonceLen)
	if _, err := rand.Read(iv); err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate IV", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	// Seal appends the tag; split it off so the envelope layout is fixed.
	ciphertext := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	envelope := make([]byte, 0, versionLen+nonceLen+tagLen+len(ciphertext))
	envelope = binary.BigEndian.AppendUint32(envelope, uint32(version))
	envelope = append(envelope, iv...)
	envelope = append(envelope, tag...)
	envelope = append(envelope, ciphertext...)

	return base64.StdEncoding.EncodeToString(envelope), nil
}

// DecryptForTenant decrypts an envelope using the key version tagged inside
// it.
func (c *Cipher) DecryptForTenant(envelope, tenantID, keyContext string) (string, error) {
	return c.DecryptForTenantWithVersion(envelope, tenantID, keyContext, 0)
}

// DecryptForTenantWithVersion decrypts an envelope, deriving the key for the
// explicitly requested version. Version 0 means "use the envelope's tag",
// which is the rotation-safe default.
func (c *Cipher) DecryptForTenantWithVersion(envelope, tenantID, keyContext string, version int) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInvalidCipher, "envelope is not valid base64", err)
	}
	if len(raw) < minEnvelopeLen {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInvalidCipher,
			fmt.Sprintf("envelope length %d below minimum %d", len(raw), minEnvelopeLen), domain.ErrInvalidCiphertext)
	}

	taggedVersion := int(binary.BigEndian.Uint32(raw[:versionLen]))
	fromEnvelope := version == 0
	if fromEnvelope {
		version = taggedVersion
	}
	if version <= 0 {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInvalidCipher,
			fmt.Sprintf("envelope tagged with invalid key version %d", taggedVersion), domain.ErrInvalidCiphertext)
	}

	masterKey, err := c.keyring.MasterKey(version)
	if err != nil {
		if fromEnvelope {
			// A version tag pointing at an unregistered key means the
			// envelope itself is corrupt, not that the caller asked for a
			// missing key.
			return "", domain.NewDomainErrorWithCause(domain.ErrCodeInvalidCipher,
				fmt.Sprintf("envelope tagged with unregistered key version %d", taggedVersion), domain.ErrInvalidCiphertext)
		}
		return "", err
	}

	key, err := DeriveKey(masterKey, tenantID, keyContext)
	if err != nil {
		return "", err
	}
	defer Wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	iv := raw[versionLen : versionLen+nonceLen]
	tag := raw[versionLen+nonceLen : versionLen+nonceLen+tagLen]
	ciphertext := raw[versionLen+nonceLen+tagLen:]

	sealed := make([]byte, 0, len(ciphertext)+tagLen)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		// Wrong tenant, wrong context, tampering, or rotated-away key
		// material all surface here as a tag mismatch.
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeAuthentication,
			"decryption failed", domain.ErrAuthenticationFailed)
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "new cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "new gcm", err)
	}
	return gcm, nil
}
