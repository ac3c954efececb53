package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("APP_PORT", "")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.App.Port)
	assert.Equal(t, "0.0.0.0:3000", cfg.HTTPAddr())
	assert.Equal(t, int64(100<<20), cfg.MaxFileSize())
	assert.Equal(t, 100, cfg.Upload.MaxBatchFiles)
	assert.Equal(t, 400, cfg.Thumbnail.Width)
	assert.Equal(t, 300, cfg.Thumbnail.Height)
	assert.Equal(t, 85, cfg.Thumbnail.Quality)
	assert.Equal(t, 3, cfg.GitHub.MaxRetries)
	assert.Equal(t, "papers.json", cfg.GitHub.PapersPath)
	assert.Equal(t, SyncTargetGitHub, cfg.Sync.Target)
	assert.Equal(t, time.Minute, cfg.StatsTTL())
	assert.False(t, cfg.MySQL.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.RabbitMQ.Enabled)
}

func TestLoadFileTOMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[app]
port = 8081

[github]
owner = "alice"
repo = "literature-data"
max_retries = 5

[sync]
target = "server"
server_url = "http://papers.local:3000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("PORT", "")
	t.Setenv("APP_PORT", "")
	t.Setenv("GITHUB_OWNER", "")
	t.Setenv("GITHUB_REPO", "")
	t.Setenv("SYNC_TARGET", "")
	os.Unsetenv("PORT")
	os.Unsetenv("APP_PORT")
	os.Unsetenv("GITHUB_OWNER")
	os.Unsetenv("GITHUB_REPO")
	os.Unsetenv("SYNC_TARGET")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.App.Port)
	assert.Equal(t, "alice", cfg.GitHub.Owner)
	assert.Equal(t, "literature-data", cfg.GitHub.Repo)
	assert.Equal(t, 5, cfg.GitHub.MaxRetries)
	assert.Equal(t, SyncTargetServer, cfg.Sync.Target)
	assert.Equal(t, "http://papers.local:3000", cfg.Sync.ServerURL)

	t.Setenv("PORT", "4000")
	t.Setenv("GITHUB_OWNER", "bob")
	t.Setenv("SYNC_TARGET", "GitHub")

	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.App.Port)
	assert.Equal(t, "bob", cfg.GitHub.Owner)
	assert.Equal(t, SyncTargetGitHub, cfg.Sync.Target)
}

func TestLoadFileRejectsBadTarget(t *testing.T) {
	t.Setenv("SYNC_TARGET", "dropbox")

	_, err := LoadFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dropbox")
}

func TestLoadFileInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[app\nport ="), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestEnvParsingFallbacks(t *testing.T) {
	t.Setenv("LM_TEST_INT", "not-a-number")
	t.Setenv("LM_TEST_BOOL", "maybe")

	assert.Equal(t, 7, getEnvAsInt("LM_TEST_INT", 7))
	assert.True(t, getEnvAsBool("LM_TEST_BOOL", true))

	t.Setenv("LM_TEST_BOOL", "false")
	assert.False(t, getEnvAsBool("LM_TEST_BOOL", true))
}
