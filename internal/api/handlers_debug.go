package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dgallion1/docrag/internal/doctree"
)

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"md_dir":     s.cfg.MarkdownDir,
		"pdf_dir":    s.cfg.PDFDir,
		"store_path": s.cfg.StorePath,
		"top_k":      s.cfg.TopK,
	})
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// handleSearch returns raw hits for a query. k defaults to the configured
// top-k; hit snippets are cut to the configured snippet length.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}
	k := req.K
	if k <= 0 {
		k = s.cfg.TopK
	}

	hits, err := s.deps.Index.Find(r.Context(), req.Query, k)
	if err != nil {
		s.log.Error("search failed", "error", err)
		jsonError(w, "search failed: "+err.Error(), storeErrorStatus(err))
		return
	}
	if hits == nil {
		hits = []doctree.Hit{}
	}
	for i := range hits {
		hits[i].Snippet = snippet(hits[i].Body(), s.cfg.SnippetChars)
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func snippet(text string, n int) string {
	if n <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
