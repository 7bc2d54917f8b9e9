package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/llm"
	"github.com/dgallion1/docrag/internal/pipeline"
	"github.com/dgallion1/docrag/internal/rag"
	"github.com/dgallion1/docrag/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Index is the read and maintenance side of the chunk store.
type Index interface {
	Find(ctx context.Context, query string, k int) ([]doctree.Hit, error)
	Sources(ctx context.Context) ([]store.Source, error)
	DeleteSource(ctx context.Context, path string) (int, error)
	Count(ctx context.Context) (int, error)
}

// Answerer answers a question from retrieved sources.
type Answerer interface {
	Answer(ctx context.Context, query string) (*rag.Result, error)
}

// StatsProvider exposes completion latency stats.
type StatsProvider interface {
	Model() string
	Stats() *llm.LLMStats
}

// Deps are the collaborators the HTTP layer routes to.
type Deps struct {
	Index        Index
	Ingestor     *pipeline.Ingestor
	Orchestrator *pipeline.Orchestrator
	Answerer     Answerer
	LLM          StatsProvider
}

// Server is the HTTP API server for docrag.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(cfg config.Config, deps Deps, log *slog.Logger) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)

	// Authenticated when DOCRAG_API_KEY is set.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.DocragAPIKey, s.log))

		r.Get("/api/config", s.handleConfig)
		r.Post("/api/search", s.handleSearch)

		r.Post("/api/ingest/md", s.handleIngest(pipeline.KindMarkdown))
		r.Post("/api/ingest/pdf", s.handleIngest(pipeline.KindPDF))
		r.Post("/api/ingest/all", s.handleIngest(pipeline.KindAll))
		r.Post("/api/ingest/jobs", s.handleSubmitJob)
		r.Get("/api/ingest/jobs/{jobID}", s.handleJobStatus)

		r.Post("/api/answer", s.handleAnswer)
		r.Get("/v1/models", s.handleListModels)
		r.Post("/v1/chat/completions", s.handleChatCompletions)

		r.Get("/api/documents", s.handleListDocuments)
		r.Delete("/api/documents", s.handleDeleteDocument)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
