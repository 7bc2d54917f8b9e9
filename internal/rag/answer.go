package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/llm"
)

// Retriever returns up to k hits for a query, best first.
type Retriever interface {
	Find(ctx context.Context, query string, k int) ([]doctree.Hit, error)
}

// Completer sends a chat prompt and returns the assistant text.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Result is one answered question with the evidence behind it.
type Result struct {
	Answer    string        `json:"answer"`
	Hits      []doctree.Hit `json:"hits"`
	Citations []string      `json:"citations"`
}

// Answerer retrieves sources for a question and asks the model to answer
// from them alone. It makes one completion call and never retries.
type Answerer struct {
	Retriever Retriever
	Completer Completer
	TopK      int
	Log       *slog.Logger
}

// Answer retrieves TopK hits, builds the cited context and returns the model's
// reply unchanged. Retrieval and completion errors are returned wrapped; no
// partial result is produced.
func (a *Answerer) Answer(ctx context.Context, query string) (*Result, error) {
	hits, err := a.Retriever.Find(ctx, query, a.TopK)
	if err != nil {
		return nil, fmt.Errorf("answer: retrieve: %w", err)
	}
	if hits == nil {
		hits = []doctree.Hit{}
	}

	sources, citations := BuildContext(hits)

	start := time.Now()
	text, err := a.Completer.Complete(ctx, BuildMessages(query, sources))
	if err != nil {
		return nil, fmt.Errorf("answer: complete: %w", err)
	}
	if a.Log != nil {
		a.Log.Debug("answered", "hits", len(hits), "duration_ms", time.Since(start).Milliseconds())
	}

	return &Result{Answer: text, Hits: hits, Citations: citations}, nil
}
