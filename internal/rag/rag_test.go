package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCitation(t *testing.T) {
	tests := []struct {
		name string
		hit  doctree.Hit
		want string
	}{
		{"pdf page", doctree.Hit{Metadata: map[string]any{"source_type": "pdf", "page": 3, "source_file": "x.pdf"}}, "x.pdf p.3"},
		{"pdf page from json", doctree.Hit{Metadata: map[string]any{"source_type": "pdf", "page": float64(12), "source_file": "x.pdf"}}, "x.pdf p.12"},
		{"pdf page zero", doctree.Hit{Metadata: map[string]any{"source_type": "pdf", "page": 0, "source_file": "x.pdf"}}, "x.pdf"},
		{"md section", doctree.Hit{Metadata: map[string]any{"source_type": "md", "section_path": "Intro > Setup", "source_file": "y.md"}}, "y.md > Intro > Setup"},
		{"md no section", doctree.Hit{Metadata: map[string]any{"source_type": "md", "section_path": "", "source_file": "y.md"}}, "y.md"},
		{"empty", doctree.Hit{}, "unknown"},
		{"empty metadata", doctree.Hit{Metadata: map[string]any{}}, "unknown"},
		{"meta fallback", doctree.Hit{Meta: map[string]any{"source_type": "pdf", "page": 2, "source_file": "m.pdf"}}, "m.pdf p.2"},
		{"source fallback", doctree.Hit{Metadata: map[string]any{"source": "legacy.txt"}}, "legacy.txt"},
		{"converted docx", doctree.Hit{Metadata: map[string]any{"source_type": "md", "format": "docx", "section_path": "A", "source_file": "d.docx"}}, "d.docx > A"},
		{"other type", doctree.Hit{Metadata: map[string]any{"source_type": "txt", "section_path": "A", "source_file": "n.txt"}}, "n.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCitation(tt.hit))
		})
	}
}

func TestBuildContext(t *testing.T) {
	hits := []doctree.Hit{
		{Text: "first text", Metadata: map[string]any{"source_type": "pdf", "page": 1, "source_file": "a.pdf"}},
		{Snippet: "only a snippet", Metadata: map[string]any{"source_type": "md", "source_file": "b.md"}},
	}
	ctx, citations := BuildContext(hits)

	assert.Equal(t, "[SOURCE 1] a.pdf p.1\nfirst text\n\n[SOURCE 2] b.md\nonly a snippet", ctx)
	assert.Equal(t, []string{"a.pdf p.1", "b.md"}, citations)
}

func TestBuildContext_Empty(t *testing.T) {
	ctx, citations := BuildContext(nil)
	assert.Equal(t, "", ctx)
	require.NotNil(t, citations)
	assert.Empty(t, citations)
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("What is X?", "[SOURCE 1] a.md\nX is Y.")
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "ONLY the sources")
	assert.Contains(t, msgs[0].Content, "[SOURCE 1]")
	assert.Equal(t, llm.Message{Role: "user", Content: "Question: What is X?\n\nSources:\n[SOURCE 1] a.md\nX is Y."}, msgs[1])
}

type fakeRetriever struct {
	hits  []doctree.Hit
	err   error
	query string
	k     int
}

func (f *fakeRetriever) Find(_ context.Context, query string, k int) ([]doctree.Hit, error) {
	f.query, f.k = query, k
	return f.hits, f.err
}

type fakeCompleter struct {
	answer   string
	err      error
	messages []llm.Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.messages = messages
	return f.answer, f.err
}

func TestAnswerer_Answer(t *testing.T) {
	r := &fakeRetriever{hits: []doctree.Hit{
		{Text: "Port is 8090.", Metadata: map[string]any{"source_type": "md", "section_path": "Config", "source_file": "ops.md"}},
	}}
	c := &fakeCompleter{answer: "The port is 8090 [SOURCE 1]."}
	a := &Answerer{Retriever: r, Completer: c, TopK: 6}

	res, err := a.Answer(context.Background(), "which port?")
	require.NoError(t, err)

	assert.Equal(t, "which port?", r.query)
	assert.Equal(t, 6, r.k)
	assert.Equal(t, "The port is 8090 [SOURCE 1].", res.Answer)
	assert.Equal(t, []string{"ops.md > Config"}, res.Citations)
	assert.Len(t, res.Hits, 1)

	require.Len(t, c.messages, 2)
	assert.Equal(t, SystemPrompt, c.messages[0].Content)
	assert.Equal(t, "Question: which port?\n\nSources:\n[SOURCE 1] ops.md > Config\nPort is 8090.", c.messages[1].Content)
}

func TestAnswerer_NoHitsStillAsks(t *testing.T) {
	c := &fakeCompleter{answer: "I don't know."}
	a := &Answerer{Retriever: &fakeRetriever{}, Completer: c, TopK: 3}

	res, err := a.Answer(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", res.Answer)
	assert.NotNil(t, res.Hits)
	assert.Empty(t, res.Citations)
	assert.Equal(t, "Question: anything\n\nSources:\n", c.messages[1].Content)
}

func TestAnswerer_Errors(t *testing.T) {
	boom := errors.New("boom")

	a := &Answerer{Retriever: &fakeRetriever{err: boom}, Completer: &fakeCompleter{}, TopK: 1}
	_, err := a.Answer(context.Background(), "q")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "answer: retrieve")

	a = &Answerer{Retriever: &fakeRetriever{}, Completer: &fakeCompleter{err: boom}, TopK: 1}
	res, err := a.Answer(context.Background(), "q")
	require.ErrorIs(t, err, boom)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "answer: complete")
}
