package chunker

import "regexp"

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// tokensPerWord is the rough ratio of model tokens to words in English text.
const tokensPerWord = 1.33

// EstimateTokens gives a rough token count from the number of word-like runs.
// Exact tokenization is not required for chunking. The result is never below 1,
// so empty or punctuation-only text still counts as one token.
func EstimateTokens(text string) int {
	words := len(wordRe.FindAllStringIndex(text, -1))
	tokens := int(float64(words) * tokensPerWord)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
