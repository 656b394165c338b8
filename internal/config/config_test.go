package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvWithDefaults(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		env      map[string]string
		expected string
	}{
		{"default used when var unset", `${HDQL_DB:-/tmp/x.db}`, nil, `/tmp/x.db`},
		{"env value used when set", `${HDQL_DB:-/tmp/x.db}`, map[string]string{"HDQL_DB": "/data/h.db"}, `/data/h.db`},
		{"empty env falls back to default", `${HDQL_DB:-/tmp/x.db}`, map[string]string{"HDQL_DB": ""}, `/tmp/x.db`},
		{"multiple vars", `http://${HDQL_HOST:-localhost}:${HDQL_PORT:-11434}`, map[string]string{"HDQL_HOST": "gpu"}, `http://gpu:11434`},
		{"empty default", `a${HDQL_OPT:-}b`, nil, `ab`},
		{"simple var", `${HDQL_SIMPLE}`, map[string]string{"HDQL_SIMPLE": "v"}, `v`},
		{"simple var unset", `${HDQL_SIMPLE}`, nil, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range []string{"HDQL_DB", "HDQL_HOST", "HDQL_PORT", "HDQL_OPT", "HDQL_SIMPLE"} {
				os.Unsetenv(v)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.expected, ExpandEnvWithDefaults(tt.input))
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("HDQL_TEST_MODEL", "mxbai-embed-large")
	path := writeConfig(t, `
db: /tmp/catalog.db
embedder: ollama
embed_model: ${HDQL_TEST_MODEL:-nomic-embed-text}
top_k: 5
entity_types: [service, team]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/catalog.db", cfg.DB)
	assert.Equal(t, EmbedderOllama, cfg.Embedder)
	assert.Equal(t, "mxbai-embed-large", cfg.EmbedModel)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, []string{"service", "team"}, cfg.EntityTypes)
	assert.Equal(t, 256, cfg.ParseCacheSize, "unset fields keep defaults")
	assert.Equal(t, "http://localhost:11434", cfg.OllamaURL)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad embedder", "embedder: word2vec"},
		{"zero top_k", "top_k: 0"},
		{"negative cache", "parse_cache_size: -1"},
		{"bad level", "log_level: loud"},
		{"bad dimension", "dimension: 0"},
		{"bad entity type", `entity_types: ["two words"]`},
		{"empty db", `db: ""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Load(writeConfig(t, "top_k: [1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("")
	assert.Error(t, err)
}
