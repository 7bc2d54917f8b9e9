package rag

import (
	"fmt"

	"github.com/dgallion1/docrag/internal/llm"
)

const SystemPrompt = "You are a RAG assistant. Answer using ONLY the sources below. " +
	"If the sources do not contain the answer, say you don't know. " +
	"When you use a fact, cite it like [SOURCE 1]."

// BuildMessages creates the two-message prompt: the fixed system instruction
// and the question followed by the numbered sources.
func BuildMessages(query, context string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Question: %s\n\nSources:\n%s", query, context)},
	}
}
