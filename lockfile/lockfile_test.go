package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoriTranslates/rpgmaker-translator/project"
)

func TestLoadMissingReturnsEmpty(t *testing.T) {
	lf, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, lf.Count())
	assert.Equal(t, Version, lf.Version)
}

func TestStaleDetection(t *testing.T) {
	lf, err := Load(t.TempDir())
	require.NoError(t, err)

	lf.Update("Map001.json/Ev1/p0/dialog_0", "こんにちは")

	// Unchanged source is not stale; never-recorded entries are not stale
	// either — they simply were never translated.
	assert.False(t, lf.IsStale("Map001.json/Ev1/p0/dialog_0", "こんにちは"))
	assert.False(t, lf.IsStale("unknown", "anything"))
	assert.True(t, lf.IsStale("Map001.json/Ev1/p0/dialog_0", "こんばんは"))
}

func TestStaleEntriesPreservesOrder(t *testing.T) {
	entries := []*project.Entry{
		{ID: "a", Original: "one"},
		{ID: "b", Original: "two"},
		{ID: "c", Original: "three"},
	}

	lf, err := Load(t.TempDir())
	require.NoError(t, err)
	lf.Update("a", "one")
	lf.Update("b", "CHANGED")
	lf.Update("c", "ALSO CHANGED")

	stale := lf.StaleEntries(entries)
	require.Len(t, stale, 2)
	assert.Equal(t, "b", stale[0].ID)
	assert.Equal(t, "c", stale[1].ID)
}

func TestClean(t *testing.T) {
	lf, err := Load(t.TempDir())
	require.NoError(t, err)
	lf.Update("keep", "x")
	lf.Update("drop", "y")

	lf.Clean([]*project.Entry{{ID: "keep", Original: "x"}})

	assert.Equal(t, []string{"keep"}, lf.IDs())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	lf, err := Load(dir)
	require.NoError(t, err)
	lf.Update("a", "source one")
	lf.Update("b", "source two")
	require.NoError(t, lf.Save())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Count())
	assert.False(t, loaded.IsStale("a", "source one"))
	assert.True(t, loaded.IsStale("a", "edited"))
	assert.Equal(t, filepath.Join(dir, LockFileName), loaded.Path())
}

func TestHashStable(t *testing.T) {
	assert.Equal(t, Hash("abc"), Hash("abc"))
	assert.NotEqual(t, Hash("abc"), Hash("abd"))
	assert.Len(t, Hash(""), 32)
}
