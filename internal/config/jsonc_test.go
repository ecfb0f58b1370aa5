package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDecodeJSONCStripsLineComments(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cfg.json", `{
		// this is a comment
		"ModuleLoadingHeuristic": "*.json", // trailing comment
		"AutoRemove": true,
		"AutoReloadEach": 1.5
	}`)

	var cfg MainConfig
	raw, err := decodeJSONC(path, &cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, "*.json", cfg.ModuleLoadingHeuristic)
	assert.True(t, cfg.AutoRemove)
}

func TestHashFileChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.txt", "version-1")

	h1, err := HashFile(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version-2"), 0o644))
	h2, err := HashFile(path)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestHashFileStableForUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.txt", "stable")

	h1, err := HashFile(path)
	require.NoError(t, err)
	h2, err := HashFile(path)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestDecodeJSONCMissingFileErrors(t *testing.T) {
	var cfg MainConfig
	_, err := decodeJSONC("/nonexistent/path.json", &cfg)
	assert.Error(t, err)
}
