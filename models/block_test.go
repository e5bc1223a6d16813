package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisBlock(t *testing.T) {
	genesis := NewGenesisBlock()

	assert.Equal(t, uint64(0), genesis.Index)
	assert.Equal(t, strings.Repeat("0", 64), genesis.PrevHash)
	assert.Empty(t, genesis.Payload)
	assert.True(t, genesis.Validate())
}

func TestBlockHashCoversAllFields(t *testing.T) {
	base := NewBlock(1, []byte("payload"), strings.Repeat("a", 64))
	require.True(t, base.Validate())

	t.Run("payload mutation breaks validation", func(t *testing.T) {
		tampered := *base
		tampered.Payload = []byte("other payload")
		assert.False(t, tampered.Validate())
	})

	t.Run("index mutation breaks validation", func(t *testing.T) {
		tampered := *base
		tampered.Index = 2
		assert.False(t, tampered.Validate())
	})

	t.Run("prev hash mutation breaks validation", func(t *testing.T) {
		tampered := *base
		tampered.PrevHash = strings.Repeat("b", 64)
		assert.False(t, tampered.Validate())
	})

	t.Run("timestamp mutation breaks validation", func(t *testing.T) {
		tampered := *base
		tampered.Timestamp++
		assert.False(t, tampered.Validate())
	})

	t.Run("stored hash is not part of its own input", func(t *testing.T) {
		tampered := *base
		tampered.Hash = strings.Repeat("c", 64)
		assert.Equal(t, base.ComputeHash(), tampered.ComputeHash())
	})
}
