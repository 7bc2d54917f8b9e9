package parser

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dgallion1/docrag/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

// PDFParser handles PDF files. It tries the Go library first,
// then falls back to pdftotext if enabled and available.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "docrag-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	pages, err := extractPDFPages(tmpPath)
	if err != nil && p.FallbackPdftotext {
		pages, err = extractPdftotext(tmpPath)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	return &doctree.Document{
		Path:       filename,
		Name:       filepath.Base(filename),
		Kind:       doctree.KindPaginated,
		SourceType: doctree.SourcePDF,
		Pages:      pages,
	}, nil
}

// extractPDFPages returns one entry per page. Pages that are null or fail to
// decode are kept as blank entries so numbering stays aligned.
func extractPDFPages(path string) ([]string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}

func extractPdftotext(path string) ([]string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	return splitPages(string(out)), nil
}

// splitPages splits pdftotext output on form feeds. pdftotext ends every
// page with one, so the trailing empty entry is dropped.
func splitPages(text string) []string {
	pages := strings.Split(text, "\f")
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}

var hspaceRe = regexp.MustCompile(`[ \t]+`)

// NormalizePage folds compatibility characters such as ligatures, collapses
// runs of spaces and tabs, and strips carriage returns.
func NormalizePage(text string) string {
	text = norm.NFKC.String(text)
	text = hspaceRe.ReplaceAllString(text, " ")
	return strings.ReplaceAll(text, "\r", "")
}

// PagePrefix renders the provenance line prepended to each page before windowing.
func PagePrefix(filename string, page int) string {
	return fmt.Sprintf("[Doc: %s | source: pdf | page: %d]\n\n", baseName(filename), page)
}
