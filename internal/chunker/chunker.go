package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

// Params controls window sizes, all in estimated tokens.
type Params struct {
	Target  int // Flush once a window reaches this size.
	Max     int // Flush before a unit would push the window past this size.
	Overlap int // Trailing tokens carried into the next window.
}

// Validate checks 0 < Target <= Max and Overlap >= 0.
func (p Params) Validate() error {
	if p.Target <= 0 {
		return fmt.Errorf("target must be positive, got %d", p.Target)
	}
	if p.Target > p.Max {
		return fmt.Errorf("target %d exceeds max %d", p.Target, p.Max)
	}
	if p.Overlap < 0 {
		return fmt.Errorf("overlap must not be negative, got %d", p.Overlap)
	}
	return nil
}

// unitBoundary matches a paragraph break, or sentence punctuation followed by
// a newline or a run of two or more whitespace characters.
var unitBoundary = regexp.MustCompile(`[.!?](?:\s*\n|\s{2,})|\n{2,}`)

// SplitUnits breaks text into trimmed, non-empty units on paragraph and
// sentence boundaries. Sentence punctuation stays with its unit.
func SplitUnits(text string) []string {
	var units []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			units = append(units, s)
		}
	}

	start := 0
	for _, m := range unitBoundary.FindAllStringIndex(text, -1) {
		end := m[0]
		if c := text[m[0]]; c == '.' || c == '!' || c == '?' {
			end++
		}
		add(text[start:end])
		start = m[1]
	}
	add(text[start:])
	return units
}

// SplitIntoWindows packs units greedily into windows of roughly p.Target
// tokens, never growing a multi-unit window past p.Max. Each window after the
// first starts with the tail of the previous one, up to p.Overlap tokens.
// A single unit larger than p.Max is emitted whole.
func SplitIntoWindows(text string, p Params) []string {
	units := SplitUnits(text)

	var out []string
	var buf []string
	bufTokens := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		out = append(out, strings.Join(buf, "\n\n"))
		buf, bufTokens = overlapTail(buf, p.Overlap)
	}

	for _, u := range units {
		t := EstimateTokens(u)
		if bufTokens+t > p.Max && len(buf) > 0 {
			flush()
		}
		buf = append(buf, u)
		bufTokens += t
		if bufTokens >= p.Target {
			flush()
		}
	}

	if len(buf) > 0 {
		out = append(out, strings.Join(buf, "\n\n"))
	}
	return out
}

// overlapTail returns the trailing units of buf that fit in overlap tokens.
// The last unit is always kept so the splitter makes progress.
func overlapTail(buf []string, overlap int) ([]string, int) {
	if overlap <= 0 {
		return nil, 0
	}
	tokens := 0
	i := len(buf)
	for i > 0 {
		t := EstimateTokens(buf[i-1])
		if tokens+t > overlap && i < len(buf) {
			break
		}
		tokens += t
		i--
	}
	tail := make([]string, len(buf)-i)
	copy(tail, buf[i:])
	return tail, tokens
}
