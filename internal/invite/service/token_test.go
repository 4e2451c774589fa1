package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenHasher(t *testing.T) {
	h, err := NewTokenHasher("pepper-a")
	require.NoError(t, err)

	token, hash, err := h.Generate()
	require.NoError(t, err)
	assert.Len(t, token, 43)
	assert.Equal(t, hash, h.Hash(token), "hash is deterministic")
	assert.NotContains(t, hash, token)

	other, err := NewTokenHasher("pepper-b")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other.Hash(token), "pepper keys the hash")

	second, _, err := h.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, token, second)

	_, err = NewTokenHasher("")
	assert.Error(t, err)
}
