package parser

import (
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files with optional YAML front matter.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	fm, body := ParseFrontMatter(string(src))
	return &doctree.Document{
		Path:        filename,
		Name:        filepath.Base(filename),
		Kind:        doctree.KindStructured,
		SourceType:  doctree.SourceMarkdown,
		FrontMatter: fm,
		Body:        body,
	}, nil
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// Segmenter splits a structured body into heading-path sections.
type Segmenter struct {
	// SkipFencedCode leaves "#" lines inside fenced or indented code blocks
	// in the section text instead of treating them as headings.
	SkipFencedCode bool
}

// SegmentByHeadings splits body on ATX heading lines with the default Segmenter.
func SegmentByHeadings(body string) []doctree.Section {
	return Segmenter{}.Segment(body)
}

// Segment scans body line by line. A heading of level n truncates the path to
// n-1 entries, pads skipped levels with "(untitled)" and sets its title at
// index n-1. Other lines accumulate into the current section, which is
// emitted with the path in effect before the next heading. Blank sections
// are dropped.
func (s Segmenter) Segment(body string) []doctree.Section {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	lines := strings.Split(body, "\n")

	var code map[int]bool
	if s.SkipFencedCode {
		code = codeBlockLines(body)
	}

	var sections []doctree.Section
	var path []string
	var buf []string

	flush := func() {
		t := strings.TrimSpace(strings.Join(buf, "\n"))
		if t != "" {
			sections = append(sections, doctree.Section{
				Path: append([]string(nil), path...),
				Text: t,
			})
		}
		buf = buf[:0]
	}

	for i, line := range lines {
		m := headingRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil || code[i] {
			buf = append(buf, line)
			continue
		}
		flush()

		level := len(m[1])
		if level <= len(path) {
			path = path[:level-1]
		}
		for len(path) < level-1 {
			path = append(path, doctree.UntitledHeading)
		}
		path = append(path, strings.TrimSpace(m[2]))
	}
	flush()

	return sections
}

// codeBlockLines returns the zero-based line numbers that goldmark places
// inside fenced or indented code blocks.
func codeBlockLines(body string) map[int]bool {
	src := []byte(body)
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	lineOf := func(off int) int {
		return sort.SearchInts(starts, off+1) - 1
	}

	lines := map[int]bool{}
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			segs := n.Lines()
			for i := 0; i < segs.Len(); i++ {
				lines[lineOf(segs.At(i).Start)] = true
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return lines
}

// BuildPrefix renders the document identity line prepended to every section
// before windowing, e.g. "[Doc: Guide | type: howto | tags: a, b]\n\n".
func BuildPrefix(fm map[string]any, filename string) string {
	title := doctree.FirstTruthy(fm, "title", "name")
	if title == nil {
		title = baseName(filename)
	}

	parts := []string{"Doc: " + doctree.FormatValue(title)}
	if t := doctree.FirstTruthy(fm, "type", "doc_type"); t != nil {
		parts = append(parts, "type: "+doctree.FormatValue(t))
	}
	if tags := fm["tags"]; doctree.Truthy(tags) {
		parts = append(parts, "tags: "+doctree.JoinValue(tags))
	}
	if aliases := fm["aliases"]; doctree.Truthy(aliases) {
		parts = append(parts, "aliases: "+doctree.JoinValue(aliases))
	}
	return "[" + strings.Join(parts, " | ") + "]\n\n"
}
