package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModeOffline, cfg.Mode)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 15*time.Second, cfg.SaveInterval)
	assert.True(t, cfg.EnableLocalAuth)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exams.yaml")
	body := []byte(`
mode: online
http_addr: ":9090"
submit_grace: 30s
sweep_parallel: 8
cors_origins: ["https://a.example", "https://b.example"]
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("SAVE_INTERVAL", "5s")
	t.Setenv("GRADE_FILL_BLANK", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeOnline, cfg.Mode)
	assert.Equal(t, "postgres", cfg.DBDriver, "online mode switches the default driver")
	assert.Equal(t, ":7070", cfg.HTTPAddr, "env wins over file")
	assert.Equal(t, 30*time.Second, cfg.SubmitGrace)
	assert.Equal(t, 5*time.Second, cfg.SaveInterval)
	assert.Equal(t, 8, cfg.SweepParallel)
	assert.True(t, cfg.GradeFillBlank)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "soon")
	_, err := Load("")
	require.Error(t, err)
}

func TestMissingFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
}

func TestCSVOr(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " http://x , ,http://y")
	assert.Equal(t, []string{"http://x", "http://y"}, csvOr("CORS_ORIGINS", nil))
}
