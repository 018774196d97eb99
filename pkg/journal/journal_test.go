package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path, "first")
	require.NoError(t, err)

	require.NoError(t, j.Correction(1, 10, 0.8, false))
	require.NoError(t, j.Correction(1, 40, 2.5, true))
	require.NoError(t, j.Activation(1, 50, "panda"))
	require.NoError(t, j.Death(2, 60, 1, 0, 1, 0))

	counts, err := j.Counts()
	require.NoError(t, err)
	assert.Equal(t, Counts{Corrections: 2, Activations: 1, Deaths: 1}, counts)

	var death Death
	require.NoError(t, j.db.First(&death).Error)
	assert.Equal(t, uint32(2), death.Entity)
	assert.Equal(t, uint32(1), death.Killer)
	require.NoError(t, j.Close())

	// Sessions share a file but count separately.
	other, err := Open(path, "second")
	require.NoError(t, err)
	defer other.Close()

	counts, err = other.Counts()
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts)
}

func TestNilJournal(t *testing.T) {
	var j *Journal
	assert.NoError(t, j.Correction(1, 1, 1, false))
	assert.NoError(t, j.Activation(1, 1, "dear"))
	assert.NoError(t, j.Death(1, 1, 0, 0, 0, 0))
	assert.NoError(t, j.Close())

	counts, err := j.Counts()
	assert.NoError(t, err)
	assert.Equal(t, Counts{}, counts)
}
