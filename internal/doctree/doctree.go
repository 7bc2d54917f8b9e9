package doctree

import "strings"

// Kind tells the ingester how a document is segmented.
type Kind int

const (
	KindStructured Kind = iota // Front matter + heading sections.
	KindPaginated              // One text per page.
)

// Source types recorded in chunk metadata. Every structured document is
// "md", whatever file format it was converted from.
const (
	SourceMarkdown = "md"
	SourcePDF      = "pdf"
)

// File formats converted to structured text, recorded as metadata "format".
const (
	FormatDOCX = "docx"
	FormatHTML = "html"
)

// UntitledHeading fills heading levels that a document skips.
const UntitledHeading = "(untitled)"

// Document is a parsed file, alive only while it is being ingested.
type Document struct {
	Path        string         // Path as given by the caller
	Name        string         // Base file name, e.g. "guide.md"
	Kind        Kind           // Structured or paginated
	SourceType  string         // "md" or "pdf"
	Format      string         // Original format when converted, e.g. "docx"; empty otherwise
	FrontMatter map[string]any // Structured only; never nil for structured documents
	Body        string         // Structured only
	Pages       []string       // Paginated only; Pages[0] is page 1
}

// Section is a run of body text under one heading path.
type Section struct {
	Path []string // Heading titles from root to this section; empty before any heading
	Text string
}

// Display joins the heading path with " > ".
func (s Section) Display() string {
	return strings.Join(s.Path, " > ")
}

// Chunk is a sized text window with provenance, ready for the store.
type Chunk struct {
	Text     string         `json:"text"`
	Title    string         `json:"title"`
	Label    string         `json:"label"`
	Metadata map[string]any `json:"metadata"`
}

// Hit is one ranked retrieval result. Rank is its position in the result slice.
type Hit struct {
	Text     string         `json:"text"`
	Snippet  string         `json:"snippet,omitempty"`
	Title    string         `json:"title,omitempty"`
	Label    string         `json:"label,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"` // Alternate key used by some stores
	Score    float64        `json:"score"`
}

// Provenance returns the hit's metadata, falling back to Meta.
func (h Hit) Provenance() map[string]any {
	if len(h.Metadata) > 0 {
		return h.Metadata
	}
	return h.Meta
}

// Body returns the hit text, falling back to the snippet.
func (h Hit) Body() string {
	if h.Text != "" {
		return h.Text
	}
	return h.Snippet
}
