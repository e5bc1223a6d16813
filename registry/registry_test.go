package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evote-backend/models"
)

func newTestRegistry(t *testing.T) (*FileRegistry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voter_registry.json")
	reg, err := NewFileRegistry(path)
	require.NoError(t, err)
	return reg, path
}

func TestFileRegistrySeedsDefaults(t *testing.T) {
	reg, _ := newTestRegistry(t)

	voter, err := reg.Lookup("V001")
	require.NoError(t, err)
	assert.Equal(t, "Jonas Jonaitis", voter.Name)
	assert.False(t, voter.HasVoted)

	assert.NotEmpty(t, reg.Candidates())
}

func TestFileRegistryLookupUnknownVoter(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Lookup("V999")
	assert.ErrorIs(t, err, models.ErrCredentialMismatch)
}

func TestFileRegistryMarkVotedPersists(t *testing.T) {
	reg, path := newTestRegistry(t)

	require.NoError(t, reg.MarkVoted("V001"))

	voter, err := reg.Lookup("V001")
	require.NoError(t, err)
	assert.True(t, voter.HasVoted)

	reloaded, err := NewFileRegistry(path)
	require.NoError(t, err)
	voter, err = reloaded.Lookup("V001")
	require.NoError(t, err)
	assert.True(t, voter.HasVoted)
}

func TestFileRegistryLookupReturnsCopy(t *testing.T) {
	reg, _ := newTestRegistry(t)

	voter, err := reg.Lookup("V001")
	require.NoError(t, err)
	voter.HasVoted = true

	fresh, err := reg.Lookup("V001")
	require.NoError(t, err)
	assert.False(t, fresh.HasVoted)
}
