package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// Sources names the directories scanned for each kind of document.
type Sources struct {
	MarkdownDir string
	PDFDir      string
}

// Step is one directory walk within an ingestion run.
type Step struct {
	Name string // "md" or "pdf"
	Dir  string
	Exts []string
}

// Plan lists the directory walks for kind, in order.
func (s Sources) Plan(kind JobKind) []Step {
	md := Step{Name: string(KindMarkdown), Dir: s.MarkdownDir, Exts: StructuredExtensions}
	pdf := Step{Name: string(KindPDF), Dir: s.PDFDir, Exts: PaginatedExtensions}
	switch kind {
	case KindMarkdown:
		return []Step{md}
	case KindPDF:
		return []Step{pdf}
	default:
		return []Step{md, pdf}
	}
}

// Run executes every step of kind and returns the per-step stats. It stops
// at the first step that returns an error.
func Run(ctx context.Context, ing *Ingestor, sources Sources, kind JobKind) (map[string]Stats, error) {
	out := map[string]Stats{}
	for _, step := range sources.Plan(kind) {
		st, err := ing.IngestDirectoryMatching(ctx, step.Dir, step.Exts...)
		out[step.Name] = st
		if err != nil {
			return out, fmt.Errorf("ingest %s: %w", step.Name, err)
		}
	}
	return out, nil
}

// Worker processes background ingestion jobs.
type Worker struct {
	ingestor *Ingestor
	sources  Sources
	log      *slog.Logger
}

func NewWorker(ing *Ingestor, sources Sources, log *slog.Logger) *Worker {
	return &Worker{ingestor: ing, sources: sources, log: log}
}

// Process runs every step of the job, recording stats as each finishes.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "kind", job.Kind)
	failedFiles := 0

	for _, step := range w.sources.Plan(job.Kind) {
		job.SetStatus(StatusRunning, step.Name)
		st, err := w.ingestor.IngestDirectoryMatching(ctx, step.Dir, step.Exts...)
		job.SetStats(step.Name, st)
		failedFiles += st.Failed
		for _, e := range st.Errors {
			job.AddError(e)
		}
		if err != nil {
			log.Error("ingest step failed", "step", step.Name, "error", err)
			job.AddError(fmt.Sprintf("%s: %s", step.Name, err))
			job.SetStatus(StatusFailed, step.Name)
			return
		}
		log.Info("ingest step complete", "step", step.Name, "files", st.Files, "chunks", st.Chunks, "failed", st.Failed)
	}

	if failedFiles > 0 {
		job.SetStatus(StatusPartial, "done")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
}
