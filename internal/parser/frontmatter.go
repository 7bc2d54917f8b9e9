package parser

import (
	"regexp"

	"gopkg.in/yaml.v3"
)

var frontMatterRe = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n`)

// ParseFrontMatter splits a leading "---" delimited YAML block off raw.
// A block that fails to decode, or does not decode to a mapping, yields an
// empty map; it is never an error. Without a block the whole input is body.
func ParseFrontMatter(raw string) (map[string]any, string) {
	fm := map[string]any{}
	m := frontMatterRe.FindStringSubmatchIndex(raw)
	if m == nil {
		return fm, raw
	}

	body := raw[m[1]:]
	var decoded map[string]any
	if err := yaml.Unmarshal([]byte(raw[m[2]:m[3]]), &decoded); err != nil || decoded == nil {
		return fm, body
	}
	return decoded, body
}
