package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dgallion1/docrag/internal/pipeline"
	"github.com/dgallion1/docrag/internal/store"
	"github.com/go-chi/chi/v5"
)

// handleIngest walks the configured directories for kind synchronously.
// md and pdf respond with that step's stats; all responds with both.
func (s *Server) handleIngest(kind pipeline.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Ingestor == nil {
			jsonError(w, "ingestion unavailable", http.StatusServiceUnavailable)
			return
		}
		sources := pipeline.Sources{MarkdownDir: s.cfg.MarkdownDir, PDFDir: s.cfg.PDFDir}
		out, err := pipeline.Run(r.Context(), s.deps.Ingestor, sources, kind)
		if err != nil {
			s.log.Error("ingest failed", "kind", kind, "error", err)
			jsonError(w, err.Error(), storeErrorStatus(err))
			return
		}
		if kind == pipeline.KindAll {
			writeJSON(w, http.StatusOK, out)
			return
		}
		writeJSON(w, http.StatusOK, out[string(kind)])
	}
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orchestrator == nil {
		jsonError(w, "background ingestion unavailable", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Kind == "" {
		req.Kind = string(pipeline.KindAll)
	}
	kind, err := pipeline.ParseJobKind(req.Kind)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(kind)
	if err := s.deps.Orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	snap := job.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   snap.ID,
		"kind":     snap.Kind,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/ingest/jobs/%s", snap.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orchestrator == nil {
		jsonError(w, "background ingestion unavailable", http.StatusServiceUnavailable)
		return
	}
	job := s.deps.Orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// storeErrorStatus maps store failures to a response status.
func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, store.ErrCapacityExceeded):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
