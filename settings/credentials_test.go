package settings

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	assert.Empty(t, Load(), "fresh store is empty")

	require.NoError(t, Set("ollama", &Info{Key: "secret", BaseURL: "http://llm.lan:11434/v1"}))
	require.NoError(t, Set("openai", &Info{Key: "sk-test"}))

	info := Get("ollama")
	require.NotNil(t, info)
	assert.Equal(t, "secret", info.Key)
	assert.Equal(t, "http://llm.lan:11434/v1", info.BaseURL)

	require.NoError(t, Remove("ollama"))
	assert.Nil(t, Get("ollama"))
	assert.NotNil(t, Get("openai"))

	// Removing a provider that was never stored is a no-op.
	require.NoError(t, Remove("ghost"))
}

func TestStoreFilePermissions(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	require.NoError(t, Set("openai", &Info{Key: "sk-test"}))

	fi, err := os.Stat(FilePath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
}

func TestLoadCorruptFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	require.NoError(t, Set("openai", &Info{Key: "sk"}))
	require.NoError(t, os.WriteFile(FilePath(), []byte("not json"), 0600))

	assert.Empty(t, Load())
}

func TestResolveAPIKeyOrder(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	require.NoError(t, Set("openai", &Info{Key: "stored-key"}))

	t.Setenv(EnvAPIKey, "")
	assert.Equal(t, "stored-key", ResolveAPIKey("", "openai"))

	t.Setenv(EnvAPIKey, "env-key")
	assert.Equal(t, "env-key", ResolveAPIKey("", "openai"))

	// Explicit flag beats everything.
	assert.Equal(t, "flag-key", ResolveAPIKey("flag-key", "openai"))

	t.Setenv(EnvAPIKey, "")
	assert.Equal(t, "", ResolveAPIKey("", "unknown-provider"))
}
