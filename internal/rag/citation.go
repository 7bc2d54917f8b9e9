// Package rag turns retrieval hits into cited answer context and answers
// questions against it.
package rag

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docrag/internal/doctree"
)

// FormatCitation renders a short provenance label for a hit:
// "<file> p.<page>" for PDF pages, "<file> > <section path>" for Markdown
// sections, and "<file>" otherwise. Hits without a recorded file are "unknown".
func FormatCitation(hit doctree.Hit) string {
	meta := hit.Provenance()

	file := "unknown"
	for _, key := range []string{"source_file", "source"} {
		if v := meta[key]; doctree.Truthy(v) {
			file = doctree.FormatValue(v)
			break
		}
	}

	switch meta["source_type"] {
	case doctree.SourcePDF:
		if page := meta["page"]; doctree.Truthy(page) {
			return fmt.Sprintf("%s p.%s", file, doctree.FormatValue(page))
		}
	case doctree.SourceMarkdown:
		if sp := meta["section_path"]; doctree.Truthy(sp) {
			return fmt.Sprintf("%s > %s", file, doctree.FormatValue(sp))
		}
	}
	return file
}

// BuildContext renders one "[SOURCE i] <citation>\n<text>" block per hit, in
// order and numbered from 1, separated by blank lines. citations[i] labels
// hits[i]. No hits give an empty context and an empty, non-nil slice.
func BuildContext(hits []doctree.Hit) (string, []string) {
	citations := make([]string, 0, len(hits))
	blocks := make([]string, 0, len(hits))
	for i, h := range hits {
		c := FormatCitation(h)
		citations = append(citations, c)
		blocks = append(blocks, fmt.Sprintf("[SOURCE %d] %s\n%s", i+1, c, h.Body()))
	}
	return strings.Join(blocks, "\n\n"), citations
}
