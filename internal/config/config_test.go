package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "candidates.csv", cfg.Store.Path)
	assert.False(t, cfg.Store.CaseInsensitive)
	assert.Equal(t, "sqlite", cfg.History.Driver)
	assert.Equal(t, "intake.db", cfg.History.Path)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, 60, cfg.Anthropic.TimeoutSecs)
	assert.Equal(t, "シート1", cfg.Sheets.SheetName)
	assert.Equal(t, "https://sheets.googleapis.com/v4", cfg.Sheets.BaseURL)
	assert.Equal(t, "氏名", cfg.Fields.IdentityField)
	assert.Equal(t, 30, cfg.Session.TTLMinutes)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrent)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  path: /data/table.csv
  case_insensitive: true
history:
  driver: postgres
  database_url: postgres://localhost/intake
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/table.csv", cfg.Store.Path)
	assert.True(t, cfg.Store.CaseInsensitive)
	assert.Equal(t, "postgres", cfg.History.Driver)
	assert.Equal(t, "postgres://localhost/intake", cfg.History.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Untouched keys keep their defaults.
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
}

func TestLoadFields_Defaults(t *testing.T) {
	dict, err := LoadFields("")
	require.NoError(t, err)
	assert.Equal(t, DefaultInitialKeys, dict.InitialKeys)
	assert.Equal(t, "氏名", dict.IdentityField)
}

func TestLoadFields_MissingFileFallsBack(t *testing.T) {
	dict, err := LoadFields(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultInitialKeys, dict.InitialKeys)
}

func TestLoadFields_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields.yaml")
	yaml := `
initial_keys:
  - 氏名
  - 連絡先
identity_field: 氏名
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	dict, err := LoadFields(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"氏名", "連絡先"}, dict.InitialKeys)
	assert.Equal(t, "氏名", dict.IdentityField)
}

func TestLoadFields_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields.yaml")
	require.NoError(t, os.WriteFile(path, []byte("initial_keys: {not: a list}"), 0o644))

	_, err := LoadFields(path)
	require.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.Error(t, InitLogger(LogConfig{Level: "not-a-level"}))
}
