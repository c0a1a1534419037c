package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", envMap(nil))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 2048, cfg.NumCtx)
	require.InDelta(t, 0.4, cfg.Temperature, 1e-9)
	require.Equal(t, 1500, cfg.CharacterLimit)
	require.Equal(t, 10, cfg.UpdateFrequency)
	require.Equal(t, "45m", cfg.KeepAlive)
	require.Equal(t, "bot_cache.json", cfg.CacheFile)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
token = "file-token"
ollama_url = "http://gpu-box:11434"
num_ctx = 4096
character_limit = 1800
min_edit_interval = "750ms"
require_mention = true
`)

	cfg, err := Load(path, envMap(map[string]string{
		"TOKEN":           "env-token",
		"CHARACTER_LIMIT": "1200",
		"TEMPERATURE":     "0.9",
	}))
	require.NoError(t, err)
	require.Equal(t, "env-token", cfg.Token)
	require.Equal(t, "http://gpu-box:11434", cfg.OllamaURL)
	require.Equal(t, 4096, cfg.NumCtx)
	require.Equal(t, 1200, cfg.CharacterLimit)
	require.InDelta(t, 0.9, cfg.Temperature, 1e-9)
	require.True(t, cfg.RequireMention)
	require.Equal(t, 750*time.Millisecond, cfg.MinEditInterval.Duration)
}

func TestLoad_InvalidEnvKeepsPreviousValue(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{
		"NUM_CTX":                       "lots",
		"API_RESPONSE_UPDATE_FREQUENCY": "0",
		"REQUIRE_MENTION":               "maybe",
		"MIN_EDIT_INTERVAL":             "soon",
	}))
	require.NoError(t, err)
	require.Equal(t, DefaultNumCtx, cfg.NumCtx)
	require.Equal(t, DefaultUpdateFrequency, cfg.UpdateFrequency)
	require.False(t, cfg.RequireMention)
	require.Zero(t, cfg.MinEditInterval.Duration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"), envMap(nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, "num_ctx = [")
	_, err := Load(path, envMap(nil))
	require.Error(t, err)
	require.Contains(t, err.Error(), "config: decode")
}

func TestLoad_BadDurationInFile(t *testing.T) {
	path := writeFile(t, `min_edit_interval = "later"`)
	_, err := Load(path, envMap(nil))
	require.Error(t, err)
}
