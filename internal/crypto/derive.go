package crypto

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/tessera-ai/tessera/internal/domain"
)

// derivedKeyLen is the AES-256 key size produced by DeriveKey.
const derivedKeyLen = 32

// hkdfSalt is the fixed extract salt. Changing it invalidates every derived
// key, so it is part of the on-disk format.
var hkdfSalt = []byte("tessera.tenant-key.v1")

// DeriveKey derives a per-(tenant, context) 256-bit key from master key
// material using an HKDF-style extract-then-expand construction over
// HMAC-SHA256. The result is deterministic for identical inputs. Callers own
// the returned buffer and must Wipe it after use.
func DeriveKey(masterKey, tenantID, keyContext string) ([]byte, error) {
	if masterKey == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "master key is required for derivation")
	}
	if tenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant id is required for derivation")
	}
	if keyContext == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "context is required for derivation")
	}

	// Extract: PRK = HMAC(salt, masterKey)
	extract := hmac.New(sha256.New, hkdfSalt)
	extract.Write([]byte(masterKey))
	prk := extract.Sum(nil)
	defer Wipe(prk)

	// Expand: OKM = HMAC(PRK, info || 0x01), one block is exactly 32 bytes.
	expand := hmac.New(sha256.New, prk)
	expand.Write([]byte(tenantID))
	expand.Write([]byte(":"))
	expand.Write([]byte(keyContext))
	expand.Write([]byte{0x01})
	okm := expand.Sum(nil)

	return okm[:derivedKeyLen], nil
}

// Wipe overwrites the buffer with zeroes in place. Every consumer of a
// derived key calls this in a defer so the key never outlives its use.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
