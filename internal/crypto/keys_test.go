package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSalt(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	b, err := GenerateSalt()
	require.NoError(t, err)

	assert.Len(t, a, SaltSize)
	assert.NotEqual(t, a, b)
}

func TestDeriveStoreKey(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	k1, err := DeriveStoreKey("correct horse battery staple", salt)
	require.NoError(t, err)
	assert.Len(t, k1, KeySize)

	k2, err := DeriveStoreKey("correct horse battery staple", salt)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "derivation is deterministic")

	other, err := GenerateSalt()
	require.NoError(t, err)
	k3, err := DeriveStoreKey("correct horse battery staple", other)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestDeriveStoreKey_InvalidInput(t *testing.T) {
	_, err := DeriveStoreKey("", make([]byte, SaltSize))
	assert.Error(t, err)

	_, err = DeriveStoreKey("pass", make([]byte, 8))
	assert.Error(t, err)
}
