package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "./store/knowledge.db", cfg.StorePath)
	assert.Equal(t, ChunkSettings{Target: 900, Max: 1200, Min: 50, Overlap: 120}, cfg.MarkdownChunks)
	assert.Equal(t, ChunkSettings{Target: 850, Max: 1150, Min: 200, Overlap: 120}, cfg.PDFChunks)
	assert.Equal(t, 6, cfg.TopK)
	assert.Equal(t, 350, cfg.SnippetChars)
	assert.Equal(t, "qwen2.5:7b-instruct", cfg.OllamaChatModel)
	assert.True(t, cfg.PDFFallbackPdftotext)
	assert.False(t, cfg.SkipFencedHeadings)
	assert.Equal(t, time.Hour, cfg.JobTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("MD_CHUNK_TARGET_TOKENS", "100")
	t.Setenv("MD_CHUNK_MAX_TOKENS", "150")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434/")
	t.Setenv("TOP_K", "0")
	t.Setenv("JOB_TTL", "5m")
	t.Setenv("MD_SKIP_FENCED_HEADINGS", "true")
	t.Setenv("INGEST_WORKERS", "not-a-number")

	cfg := Load()
	assert.Equal(t, 100, cfg.MarkdownChunks.Target)
	assert.Equal(t, 150, cfg.MarkdownChunks.Max)
	assert.Equal(t, "http://ollama:11434", cfg.OllamaBaseURL)
	assert.Equal(t, 6, cfg.TopK)
	assert.Equal(t, 5*time.Minute, cfg.JobTTL)
	assert.True(t, cfg.SkipFencedHeadings)
	assert.Equal(t, 1, cfg.IngestWorkers)
}

func TestValidate_ChunkSettings(t *testing.T) {
	cfg := Load()
	cfg.PDFChunks.Target = 2000
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdf chunking")

	cfg = Load()
	cfg.MarkdownChunks.Overlap = -1
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.MarkdownChunks.Min = -5
	assert.Error(t, cfg.Validate())
}

func TestParseLogLevel(t *testing.T) {
	l, err := ParseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	l, err = ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)

	cfg := Load()
	cfg.LogLevel = "loud"
	assert.Error(t, cfg.Validate())
}
