package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docrag/internal/chunker"
)

// ChunkSettings sizes the windows for one document kind, in estimated tokens.
type ChunkSettings struct {
	Target  int
	Max     int
	Min     int // Windows below this many tokens are dropped.
	Overlap int
}

// Params returns the window splitter parameters.
func (c ChunkSettings) Params() chunker.Params {
	return chunker.Params{Target: c.Target, Max: c.Max, Overlap: c.Overlap}
}

func (c ChunkSettings) validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if c.Min < 0 {
		return fmt.Errorf("min must not be negative, got %d", c.Min)
	}
	return nil
}

type Config struct {
	Port string

	// Auth
	DocragAPIKey string

	LogLevel string

	// Sources
	MarkdownDir string
	PDFDir      string

	// Store
	StorePath      string
	StoreMaxChunks int

	// Ollama
	OllamaBaseURL   string
	OllamaChatModel string

	// Chunking
	MarkdownChunks       ChunkSettings
	PDFChunks            ChunkSettings
	SkipFencedHeadings   bool
	PDFFallbackPdftotext bool

	// Retrieval
	TopK         int
	SnippetChars int

	// Background ingestion
	IngestWorkers int
	MaxQueueSize  int
	JobTTL        time.Duration

	LLMStatsWindow time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		DocragAPIKey: os.Getenv("DOCRAG_API_KEY"),

		LogLevel: envOr("LOG_LEVEL", "info"),

		MarkdownDir: envOr("DATA_MD_DIR", "./data/md"),
		PDFDir:      envOr("DATA_PDF_DIR", "./data/pdf"),

		StorePath:      envOr("STORE_PATH", "./store/knowledge.db"),
		StoreMaxChunks: envInt("STORE_MAX_CHUNKS", 0),

		OllamaBaseURL:   strings.TrimRight(envOr("OLLAMA_BASE_URL", "http://localhost:11434"), "/"),
		OllamaChatModel: envOr("OLLAMA_CHAT_MODEL", "qwen2.5:7b-instruct"),

		MarkdownChunks: ChunkSettings{
			Target:  envInt("MD_CHUNK_TARGET_TOKENS", 900),
			Max:     envInt("MD_CHUNK_MAX_TOKENS", 1200),
			Min:     envInt("MD_CHUNK_MIN_TOKENS", 50),
			Overlap: envInt("MD_CHUNK_OVERLAP_TOKENS", 120),
		},
		PDFChunks: ChunkSettings{
			Target:  envInt("PDF_CHUNK_TARGET_TOKENS", 850),
			Max:     envInt("PDF_CHUNK_MAX_TOKENS", 1150),
			Min:     envInt("PDF_CHUNK_MIN_TOKENS", 200),
			Overlap: envInt("PDF_CHUNK_OVERLAP_TOKENS", 120),
		},
		SkipFencedHeadings:   envBool("MD_SKIP_FENCED_HEADINGS", false),
		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		TopK:         envInt("TOP_K", 6),
		SnippetChars: envInt("SNIPPET_CHARS", 350),

		IngestWorkers: envInt("INGEST_WORKERS", 1),
		MaxQueueSize:  envInt("MAX_QUEUE_SIZE", 16),
		JobTTL:        envDuration("JOB_TTL", 1*time.Hour),

		LLMStatsWindow: envDuration("LLM_STATS_WINDOW", 1*time.Hour),
	}

	if cfg.StoreMaxChunks < 0 {
		cfg.StoreMaxChunks = 0
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 6
	}
	if cfg.SnippetChars <= 0 {
		cfg.SnippetChars = 350
	}
	if cfg.IngestWorkers <= 0 {
		cfg.IngestWorkers = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 16
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.LLMStatsWindow <= 0 {
		cfg.LLMStatsWindow = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if err := c.MarkdownChunks.validate(); err != nil {
		return fmt.Errorf("markdown chunking: %w", err)
	}
	if err := c.PDFChunks.validate(); err != nil {
		return fmt.Errorf("pdf chunking: %w", err)
	}
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps LOG_LEVEL values (debug, info, warn, error) to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
	return l, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
