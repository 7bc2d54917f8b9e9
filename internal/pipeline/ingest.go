package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docrag/internal/chunker"
	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/parser"
)

// ChunkStore receives finished chunks.
type ChunkStore interface {
	Put(ctx context.Context, c doctree.Chunk) error
}

// ChunkParams sizes the windows for one document kind, in estimated tokens.
type ChunkParams struct {
	Target  int
	Max     int
	Min     int // Windows estimated below this are dropped.
	Overlap int
}

func (p ChunkParams) window() chunker.Params {
	return chunker.Params{Target: p.Target, Max: p.Max, Overlap: p.Overlap}
}

// Defaults for structured (Markdown-like) and paginated (PDF) documents.
var (
	DefaultStructuredParams = ChunkParams{Target: 900, Max: 1200, Min: 50, Overlap: 120}
	DefaultPaginatedParams  = ChunkParams{Target: 850, Max: 1150, Min: 200, Overlap: 120}
)

// File extensions walked for each directory kind.
var (
	StructuredExtensions = []string{".md", ".markdown", ".docx", ".html", ".htm"}
	PaginatedExtensions  = []string{".pdf"}
)

// StoreError wraps a failure to hand a chunk to the store. It stops a
// directory walk; read and parse failures do not.
type StoreError struct {
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store chunk from %s: %v", e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError checks whether err (or any wrapped error) is a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// Stats summarizes a directory ingestion.
type Stats struct {
	Files  int      `json:"files"`
	Chunks int      `json:"chunks"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// Ingestor segments documents, splits them into windows and writes the
// resulting chunks to Store. It holds no per-call state and is safe to share.
type Ingestor struct {
	Store      ChunkStore
	Structured ChunkParams
	Paginated  ChunkParams
	Segmenter  parser.Segmenter
	Parsers    parser.Options
	Log        *slog.Logger
}

// NewIngestor builds an Ingestor from the process configuration.
func NewIngestor(cfg config.Config, store ChunkStore, log *slog.Logger) *Ingestor {
	return &Ingestor{
		Store:      store,
		Structured: fromSettings(cfg.MarkdownChunks),
		Paginated:  fromSettings(cfg.PDFChunks),
		Segmenter:  parser.Segmenter{SkipFencedCode: cfg.SkipFencedHeadings},
		Parsers:    parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
		Log:        log,
	}
}

func fromSettings(s config.ChunkSettings) ChunkParams {
	return ChunkParams{Target: s.Target, Max: s.Max, Min: s.Min, Overlap: s.Overlap}
}

func (i *Ingestor) logger() *slog.Logger {
	if i.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return i.Log
}

// IngestFile parses the file at path and ingests it, returning the number of
// chunks written.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	p, err := parser.ForFile(path, i.Parsers)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := p.Parse(f, path)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return i.IngestDocument(ctx, doc)
}

// IngestDocument emits the chunks of an already parsed document. The first
// store failure is returned as a *StoreError together with the number of
// chunks already written.
func (i *Ingestor) IngestDocument(ctx context.Context, doc *doctree.Document) (int, error) {
	abs, err := filepath.Abs(doc.Path)
	if err != nil {
		abs = doc.Path
	}
	switch doc.Kind {
	case doctree.KindPaginated:
		return i.ingestPages(ctx, doc, abs)
	default:
		return i.ingestSections(ctx, doc, abs)
	}
}

func (i *Ingestor) ingestSections(ctx context.Context, doc *doctree.Document, abs string) (int, error) {
	log := i.logger().With("file", doc.Name)
	fm := doc.FrontMatter
	if fm == nil {
		fm = map[string]any{}
	}

	prefix := parser.BuildPrefix(fm, doc.Name)
	title := doc.Name
	if v := doctree.FirstTruthy(fm, "title", "name"); v != nil {
		title = doctree.FormatValue(v)
	}
	label := doc.SourceType
	if v := fm["type"]; doctree.Truthy(v) {
		label = doctree.FormatValue(v)
	}

	sections := i.Segmenter.Segment(doc.Body)
	log.Debug("segmented document", "sections", len(sections))

	emitted := 0
	for _, s := range sections {
		display := s.Display()
		merged := prefix
		if display != "" {
			merged += "Section: " + display + "\n\n"
		}
		merged += s.Text

		for idx, text := range chunker.SplitIntoWindows(merged, i.Structured.window()) {
			tokens := chunker.EstimateTokens(text)
			if tokens < i.Structured.Min {
				log.Debug("skipping small chunk", "section", display, "chunk_index", idx, "tokens", tokens)
				continue
			}
			c := doctree.Chunk{
				Text:  text,
				Title: title,
				Label: label,
				Metadata: map[string]any{
					"source_type":  doc.SourceType,
					"source_file":  doc.Name,
					"path":         abs,
					"section_path": display,
					"chunk_index":  idx,
					"frontmatter":  fm,
				},
			}
			if doc.Format != "" {
				c.Metadata["format"] = doc.Format
			}
			if err := i.Store.Put(ctx, c); err != nil {
				return emitted, &StoreError{Path: abs, Err: err}
			}
			emitted++
		}
	}
	log.Debug("ingested document", "chunks", emitted)
	return emitted, nil
}

func (i *Ingestor) ingestPages(ctx context.Context, doc *doctree.Document, abs string) (int, error) {
	log := i.logger().With("file", doc.Name)
	title := strings.TrimSuffix(doc.Name, filepath.Ext(doc.Name))

	emitted := 0
	for n, raw := range doc.Pages {
		page := n + 1
		text := parser.NormalizePage(raw)
		if strings.TrimSpace(text) == "" {
			continue
		}
		merged := parser.PagePrefix(doc.Name, page) + text

		for idx, window := range chunker.SplitIntoWindows(merged, i.Paginated.window()) {
			tokens := chunker.EstimateTokens(window)
			if tokens < i.Paginated.Min {
				log.Debug("skipping small chunk", "page", page, "chunk_index", idx, "tokens", tokens)
				continue
			}
			c := doctree.Chunk{
				Text:  window,
				Title: title,
				Label: doctree.SourcePDF,
				Metadata: map[string]any{
					"source_type": doc.SourceType,
					"source_file": doc.Name,
					"path":        abs,
					"page":        page,
					"chunk_index": idx,
				},
			}
			if err := i.Store.Put(ctx, c); err != nil {
				return emitted, &StoreError{Path: abs, Err: err}
			}
			emitted++
		}
	}
	log.Debug("ingested document", "pages", len(doc.Pages), "chunks", emitted)
	return emitted, nil
}

// IngestDirectory ingests every supported file under dir.
func (i *Ingestor) IngestDirectory(ctx context.Context, dir string) (Stats, error) {
	return i.IngestDirectoryMatching(ctx, dir)
}

// IngestDirectoryMatching walks dir recursively in lexical order and ingests
// files whose extension is in exts, or any supported extension when exts is
// empty. Files that fail to read or parse are counted and skipped. A store
// failure or cancellation stops the walk and returns the stats so far.
// A missing directory yields empty stats.
func (i *Ingestor) IngestDirectoryMatching(ctx context.Context, dir string, exts ...string) (Stats, error) {
	log := i.logger().With("dir", dir)
	stats := Stats{}

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		log.Warn("ingest directory does not exist")
		return stats, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn("walk error", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !matchExt(path, exts) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		stats.Files++
		n, err := i.IngestFile(ctx, path)
		stats.Chunks += n
		if err != nil {
			if IsStoreError(err) {
				return err
			}
			stats.Failed++
			stats.Errors = append(stats.Errors, err.Error())
			log.Warn("skipping file", "path", path, "error", err)
			return nil
		}
		log.Info("ingested file", "path", path, "chunks", n)
		return nil
	})
	if err != nil {
		return stats, err
	}
	log.Info("ingested directory", "files", stats.Files, "chunks", stats.Chunks, "failed", stats.Failed)
	return stats, nil
}

func matchExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if len(exts) == 0 {
		return parser.IsSupportedExtension(path)
	}
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
