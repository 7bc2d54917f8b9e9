package api

import (
	"net/http"

	"github.com/dgallion1/docrag/internal/store"
)

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	sources, err := s.deps.Index.Sources(r.Context())
	if err != nil {
		jsonError(w, "list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	total, err := s.deps.Index.Count(r.Context())
	if err != nil {
		jsonError(w, "count chunks: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if sources == nil {
		sources = []store.Source{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":    sources,
		"total_chunks": total,
	})
}

// handleDeleteDocument removes every chunk ingested from ?path=.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		jsonError(w, "path is required", http.StatusBadRequest)
		return
	}

	n, err := s.deps.Index.DeleteSource(r.Context(), path)
	if err != nil {
		jsonError(w, "delete document: "+err.Error(), storeErrorStatus(err))
		return
	}
	if n == 0 {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	s.log.Info("document deleted", "path", path, "chunks", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"path":           path,
		"chunks_deleted": n,
	})
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.LLM == nil || s.deps.LLM.Stats() == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model": s.deps.LLM.Model(),
		"stats": s.deps.LLM.Stats().Snapshot(),
	})
}
