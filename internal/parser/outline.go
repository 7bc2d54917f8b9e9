package parser

import "strings"

// outline accumulates headings and paragraphs as a Markdown-style body so
// converted formats go through the same heading segmenter as .md files.
type outline struct {
	sb strings.Builder
}

func (o *outline) heading(level int, title string) {
	title = strings.TrimSpace(title)
	if level < 1 || level > 6 || title == "" {
		return
	}
	o.block(strings.Repeat("#", level) + " " + title)
}

// paragraph writes body text. Lines starting with "#" are escaped so the
// heading segmenter cannot read them as headings.
func (o *outline) paragraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			lines[i] = `\` + strings.TrimLeft(line, " \t")
		}
	}
	o.block(strings.Join(lines, "\n"))
}

func (o *outline) block(s string) {
	if o.sb.Len() > 0 {
		o.sb.WriteString("\n\n")
	}
	o.sb.WriteString(s)
}

func (o *outline) String() string {
	return o.sb.String()
}
