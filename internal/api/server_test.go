package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/llm"
	"github.com/dgallion1/docrag/internal/pipeline"
	"github.com/dgallion1/docrag/internal/rag"
	"github.com/dgallion1/docrag/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	hits    []doctree.Hit
	err     error
	lastK   int
	sources []store.Source
	deleted map[string]int
	chunks  []doctree.Chunk
}

func (f *fakeIndex) Find(_ context.Context, _ string, k int) ([]doctree.Hit, error) {
	f.lastK = k
	return f.hits, f.err
}

func (f *fakeIndex) Sources(context.Context) ([]store.Source, error) { return f.sources, f.err }

func (f *fakeIndex) DeleteSource(_ context.Context, path string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.deleted[path], nil
}

func (f *fakeIndex) Count(context.Context) (int, error) { return 7, f.err }

func (f *fakeIndex) Put(_ context.Context, c doctree.Chunk) error {
	if f.err != nil {
		return f.err
	}
	f.chunks = append(f.chunks, c)
	return nil
}

type fakeAnswerer struct {
	query string
	res   *rag.Result
	err   error
}

func (f *fakeAnswerer) Answer(_ context.Context, q string) (*rag.Result, error) {
	f.query = q
	return f.res, f.err
}

type fakeLLM struct{ stats *llm.LLMStats }

func (f fakeLLM) Model() string { return "llama3.1" }
func (f fakeLLM) Stats() *llm.LLMStats { return f.stats }

type fixture struct {
	srv      *Server
	index    *fakeIndex
	answerer *fakeAnswerer
	cfg      config.Config
}

func newFixture(t *testing.T, apiKey string) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		DocragAPIKey:  apiKey,
		MarkdownDir:   filepath.Join(dir, "md"),
		PDFDir:        filepath.Join(dir, "pdf"),
		StorePath:     filepath.Join(dir, "kb.db"),
		TopK:          5,
		SnippetChars:  10,
		IngestWorkers: 1,
		MaxQueueSize:  4,
		JobTTL:        time.Hour,
	}
	index := &fakeIndex{deleted: map[string]int{}}
	answerer := &fakeAnswerer{res: &rag.Result{Answer: "42 [SOURCE 1]", Hits: []doctree.Hit{}, Citations: []string{"a.md"}}}
	ing := &pipeline.Ingestor{
		Store:      index,
		Structured: pipeline.ChunkParams{Target: 50, Max: 100},
		Paginated:  pipeline.DefaultPaginatedParams,
	}
	log := slog.New(slog.DiscardHandler)
	deps := Deps{
		Index:        index,
		Ingestor:     ing,
		Orchestrator: pipeline.NewOrchestrator(cfg, ing, log),
		Answerer:     answerer,
		LLM:          fakeLLM{stats: llm.NewLLMStats(time.Hour)},
	}
	return &fixture{srv: NewServer(cfg, deps, log), index: index, answerer: answerer, cfg: cfg}
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "secret")
	for _, path := range []string{"/health", "/api/health"} {
		w := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	}
}

func TestAuth(t *testing.T) {
	f := newFixture(t, "secret")

	w := f.do(t, http.MethodGet, "/api/config", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/config", "", "Authorization", "Token secret")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/config", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/config", "", "Authorization", "bearer secret")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_DisabledWithoutKey(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(t, http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"object":"list","data":[{"id":"local-rag","object":"model","owned_by":"local"}]}`, w.Body.String())
}

func TestConfig(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, f.cfg.MarkdownDir, out["md_dir"])
	assert.Equal(t, f.cfg.PDFDir, out["pdf_dir"])
	assert.Equal(t, f.cfg.StorePath, out["store_path"])
	assert.Equal(t, float64(5), out["top_k"])
}

func TestSearch(t *testing.T) {
	f := newFixture(t, "")
	f.index.hits = []doctree.Hit{{Text: "abcdefghijklmnop", Title: "A"}, {Text: "short"}}

	w := f.do(t, http.MethodPost, "/api/search", `{"query":"alpha"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, f.index.lastK)

	var out struct {
		Hits []doctree.Hit `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Hits, 2)
	assert.Equal(t, "abcdefghij...", out.Hits[0].Snippet)
	assert.Equal(t, "short", out.Hits[1].Snippet)

	f.do(t, http.MethodPost, "/api/search", `{"query":"alpha","k":2}`)
	assert.Equal(t, 2, f.index.lastK)
}

func TestSearch_Errors(t *testing.T) {
	f := newFixture(t, "")
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/search", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/search", `{"query":"  "}`).Code)

	f.index.err = store.ErrLocked
	assert.Equal(t, http.StatusLocked, f.do(t, http.MethodPost, "/api/search", `{"query":"x"}`).Code)
}

func TestSearch_NoHitsIsEmptyList(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(t, http.MethodPost, "/api/search", `{"query":"x"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"hits":[]}`, w.Body.String())
}

func TestIngest_Sync(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, os.MkdirAll(f.cfg.MarkdownDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.MarkdownDir, "a.md"), []byte("# A\nalpha bravo\n"), 0644))

	w := f.do(t, http.MethodPost, "/api/ingest/md", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"files":1,"chunks":1,"failed":0}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/ingest/all", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Contains(t, out, "md")
	assert.Contains(t, out, "pdf")
	assert.Len(t, f.index.chunks, 2)
}

func TestIngest_StoreCapacity(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, os.MkdirAll(f.cfg.MarkdownDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.MarkdownDir, "a.md"), []byte("alpha"), 0644))
	f.index.err = store.ErrCapacityExceeded

	w := f.do(t, http.MethodPost, "/api/ingest/md", "")
	assert.Equal(t, http.StatusInsufficientStorage, w.Code)
}

func TestIngestJobs(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodPost, "/api/ingest/jobs", `{"kind":"docx"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/ingest/jobs", `{"kind":"pdf"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	out := decode(t, w)
	id, _ := out["job_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/api/ingest/jobs/"+id, out["poll_url"])
	assert.Equal(t, "queued", out["status"])

	w = f.do(t, http.MethodGet, "/api/ingest/jobs/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["job_id"])

	w = f.do(t, http.MethodGet, "/api/ingest/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnswer(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodPost, "/api/answer", `{"query":"what is it?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "what is it?", f.answerer.query)
	assert.JSONEq(t, `{"answer":"42 [SOURCE 1]","hits":[],"citations":["a.md"]}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/answer", `{}`).Code)

	f.answerer.err = errors.New("answer: complete: connection refused")
	w = f.do(t, http.MethodPost, "/api/answer", `{"query":"x"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestChatCompletions(t *testing.T) {
	f := newFixture(t, "")
	body := `{"model":"local-rag","messages":[
		{"role":"system","content":"be nice"},
		{"role":"user","content":"first"},
		{"role":"assistant","content":"ok"},
		{"role":"user","content":"second"}]}`

	w := f.do(t, http.MethodPost, "/v1/chat/completions", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "second", f.answerer.query)

	var out chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, strings.HasPrefix(out.ID, "chatcmpl-"))
	assert.Len(t, strings.TrimPrefix(out.ID, "chatcmpl-"), 32)
	assert.Equal(t, "chat.completion", out.Object)
	assert.Equal(t, "local-rag", out.Model)
	assert.NotZero(t, out.Created)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, chatChoice{Index: 0, Message: chatMessage{Role: "assistant", Content: "42 [SOURCE 1]"}, FinishReason: "stop"}, out.Choices[0])
	assert.NotNil(t, out.Usage)
}

func TestChatCompletions_NoUserMessage(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(t, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"system","content":"x"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", f.answerer.query)
}

func TestDocuments(t *testing.T) {
	f := newFixture(t, "")
	f.index.sources = []store.Source{{Path: "/d/a.md", SourceFile: "a.md", SourceType: "md", Chunks: 7}}
	f.index.deleted["/d/a.md"] = 7

	w := f.do(t, http.MethodGet, "/api/documents", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"documents":[{"path":"/d/a.md","source_file":"a.md","source_type":"md","chunks":7}],"total_chunks":7}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodDelete, "/api/documents", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/documents?path=/d/b.md", "").Code)

	w = f.do(t, http.MethodDelete, "/api/documents?path=/d/a.md", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"path":"/d/a.md","chunks_deleted":7}`, w.Body.String())
}

func TestLLMStats(t *testing.T) {
	f := newFixture(t, "")
	f.srv.deps.LLM.Stats().Record(20*time.Millisecond, nil)

	w := f.do(t, http.MethodGet, "/api/stats/llm", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "llama3.1", out["model"])
	assert.Contains(t, out, "stats")

	f.srv.deps.LLM = nil
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/stats/llm", "").Code)
}
