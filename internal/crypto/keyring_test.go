package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/domain"
)

const testMasterKey = "0f1e2d3c4b5a69788796a5b4c3d2e1f0deadbeefcafe"

func TestNewKeyring(t *testing.T) {
	kr, err := NewKeyring(testMasterKey)
	require.NoError(t, err)

	assert.Equal(t, 1, kr.CurrentVersion())

	key, err := kr.MasterKey(0)
	require.NoError(t, err)
	assert.Equal(t, testMasterKey, key)

	key, err = kr.MasterKey(1)
	require.NoError(t, err)
	assert.Equal(t, testMasterKey, key)
}

func TestNewKeyring_RejectsWeakKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "too short", key: "short-key"},
		{name: "denylisted password", key: "password-" + strings.Repeat("x", 40)},
		{name: "denylisted changeme", key: strings.Repeat("y", 40) + "CHANGEME"},
		{name: "denylisted digits", key: "12345678" + strings.Repeat("z", 40)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKeyring(tt.key)
			require.Error(t, err)

			var derr *domain.DomainError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, domain.ErrCodeConfiguration, derr.Code)
		})
	}
}

func TestNewKeyringWithRotation(t *testing.T) {
	previous := "aa11bb22cc33dd44ee55ff6677889900aabbccdd"

	kr, err := NewKeyringWithRotation(KeyringConfig{
		CurrentKey:     testMasterKey,
		CurrentVersion: 2,
		PreviousKeys:   map[int]string{1: previous},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, kr.CurrentVersion())
	assert.Equal(t, []int{1, 2}, kr.Versions())

	key, err := kr.MasterKey(1)
	require.NoError(t, err)
	assert.Equal(t, previous, key)
}

func TestNewKeyringWithRotation_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  KeyringConfig
	}{
		{
			name: "zero current version",
			cfg:  KeyringConfig{CurrentKey: testMasterKey, CurrentVersion: 0},
		},
		{
			name: "negative current version",
			cfg:  KeyringConfig{CurrentKey: testMasterKey, CurrentVersion: -3},
		},
		{
			name: "duplicate version",
			cfg: KeyringConfig{
				CurrentKey:     testMasterKey,
				CurrentVersion: 2,
				PreviousKeys:   map[int]string{2: "aa11bb22cc33dd44ee55ff6677889900aabbccdd"},
			},
		},
		{
			name: "weak previous key",
			cfg: KeyringConfig{
				CurrentKey:     testMasterKey,
				CurrentVersion: 2,
				PreviousKeys:   map[int]string{1: "tiny"},
			},
		},
		{
			name: "non-positive previous version",
			cfg: KeyringConfig{
				CurrentKey:     testMasterKey,
				CurrentVersion: 2,
				PreviousKeys:   map[int]string{0: "aa11bb22cc33dd44ee55ff6677889900aabbccdd"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKeyringWithRotation(tt.cfg)
			require.Error(t, err)

			var derr *domain.DomainError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, domain.ErrCodeConfiguration, derr.Code)
		})
	}
}

func TestMasterKey_UnknownVersion(t *testing.T) {
	kr, err := NewKeyring(testMasterKey)
	require.NoError(t, err)

	_, err = kr.MasterKey(7)
	assert.ErrorIs(t, err, domain.ErrKeyVersionNotFound)
}

func TestDeriveKey(t *testing.T) {
	key1, err := DeriveKey(testMasterKey, "tenant-a", "data")
	require.NoError(t, err)
	assert.Len(t, key1, 32)

	// Deterministic for identical inputs.
	key2, err := DeriveKey(testMasterKey, "tenant-a", "data")
	require.NoError(t, err)
	assert.Equal(t, key1, key2)

	// Any input change yields a different key.
	otherTenant, err := DeriveKey(testMasterKey, "tenant-b", "data")
	require.NoError(t, err)
	assert.NotEqual(t, key1, otherTenant)

	otherContext, err := DeriveKey(testMasterKey, "tenant-a", "tokens")
	require.NoError(t, err)
	assert.NotEqual(t, key1, otherContext)
}

func TestDeriveKey_EmptyInputs(t *testing.T) {
	_, err := DeriveKey("", "tenant-a", "data")
	assert.Error(t, err)

	_, err = DeriveKey(testMasterKey, "", "data")
	assert.Error(t, err)

	_, err = DeriveKey(testMasterKey, "tenant-a", "")
	assert.Error(t, err)
}

func TestWipe(t *testing.T) {
	key, err := DeriveKey(testMasterKey, "tenant-a", "data")
	require.NoError(t, err)

	Wipe(key)
	for _, b := range key {
		assert.Zero(t, b)
	}
}
