package crypto

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/domain"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	kr, err := NewKeyring(testMasterKey)
	require.NoError(t, err)
	return NewCipher(kr)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "simple", plaintext: "hello world"},
		{name: "empty", plaintext: ""},
		{name: "unicode", plaintext: "héllo wörld ☃ 日本語"},
		{name: "multiline", plaintext: "Paragraph one.\n\nParagraph two."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope, err := c.EncryptForTenant(tt.plaintext, "tenant-a", "data")
			require.NoError(t, err)

			got, err := c.DecryptForTenant(envelope, "tenant-a", "data")
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	c := newTestCipher(t)

	first, err := c.EncryptForTenant("same plaintext", "tenant-a", "data")
	require.NoError(t, err)
	second, err := c.EncryptForTenant("same plaintext", "tenant-a", "data")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	p1, err := c.DecryptForTenant(first, "tenant-a", "data")
	require.NoError(t, err)
	p2, err := c.DecryptForTenant(second, "tenant-a", "data")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestDecrypt_TenantIsolation(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.EncryptForTenant("tenant a's data", "tenant-a", "data")
	require.NoError(t, err)

	_, err = c.DecryptForTenant(envelope, "tenant-b", "data")
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}

func TestDecrypt_ContextIsolation(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.EncryptForTenant("context-bound data", "tenant-a", "tokens")
	require.NoError(t, err)

	_, err = c.DecryptForTenant(envelope, "tenant-a", "data")
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}

func TestDecrypt_Rotation(t *testing.T) {
	oldKey := "aa11bb22cc33dd44ee55ff6677889900aabbccdd"

	oldRing, err := NewKeyringWithRotation(KeyringConfig{CurrentKey: oldKey, CurrentVersion: 1})
	require.NoError(t, err)
	oldCipher := NewCipher(oldRing)

	envelope, err := oldCipher.EncryptForTenant("pre-rotation data", "tenant-a", "data")
	require.NoError(t, err)

	rotated, err := NewKeyringWithRotation(KeyringConfig{
		CurrentKey:     testMasterKey,
		CurrentVersion: 2,
		PreviousKeys:   map[int]string{1: oldKey},
	})
	require.NoError(t, err)
	c := NewCipher(rotated)

	// Old ciphertext still decrypts: the envelope carries version 1.
	got, err := c.DecryptForTenant(envelope, "tenant-a", "data")
	require.NoError(t, err)
	assert.Equal(t, "pre-rotation data", got)

	// Explicitly requesting the retired version also works.
	got, err = c.DecryptForTenantWithVersion(envelope, "tenant-a", "data", 1)
	require.NoError(t, err)
	assert.Equal(t, "pre-rotation data", got)

	// New encryptions tag the new current version without caller action.
	fresh, err := c.EncryptForTenant("post-rotation data", "tenant-a", "data")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(fresh)
	require.NoError(t, err)
	assert.Equal(t, byte(2), raw[3])

	// Forcing the retired version against new ciphertext must not authenticate.
	_, err = c.DecryptForTenantWithVersion(fresh, "tenant-a", "data", 1)
	assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}

func TestDecrypt_TamperDetection(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.EncryptForTenant("tamper target", "tenant-a", "data")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(envelope)
	require.NoError(t, err)

	// Flipping any single byte, version header included, must surface as an
	// authentication or malformed-envelope failure.
	for idx := range raw {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[idx] ^= 0x01

		_, err := c.DecryptForTenant(base64.StdEncoding.EncodeToString(mutated), "tenant-a", "data")
		require.Error(t, err, "byte %d", idx)
		if !errors.Is(err, domain.ErrAuthenticationFailed) {
			var derr *domain.DomainError
			require.ErrorAs(t, err, &derr, "byte %d", idx)
			assert.Equal(t, domain.ErrCodeInvalidCipher, derr.Code, "byte %d", idx)
		}
	}
}

func TestDecrypt_TaggedUnregisteredVersion(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.EncryptForTenant("data", "tenant-a", "data")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(envelope)
	require.NoError(t, err)
	raw[0] ^= 0x01

	_, err = c.DecryptForTenant(base64.StdEncoding.EncodeToString(raw), "tenant-a", "data")
	require.Error(t, err)

	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeInvalidCipher, derr.Code)
}

func TestDecrypt_MalformedEnvelope(t *testing.T) {
	c := newTestCipher(t)

	tests := []struct {
		name     string
		envelope string
	}{
		{name: "not base64", envelope: "%%%not-base64%%%"},
		{name: "empty", envelope: ""},
		{name: "below minimum length", envelope: base64.StdEncoding.EncodeToString(make([]byte, minEnvelopeLen-1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecryptForTenant(tt.envelope, "tenant-a", "data")
			require.Error(t, err)

			var derr *domain.DomainError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, domain.ErrCodeInvalidCipher, derr.Code)
		})
	}
}

func TestDecrypt_UnknownVersion(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.EncryptForTenant("data", "tenant-a", "data")
	require.NoError(t, err)

	_, err = c.DecryptForTenantWithVersion(envelope, "tenant-a", "data", 9)
	assert.ErrorIs(t, err, domain.ErrKeyVersionNotFound)
}
