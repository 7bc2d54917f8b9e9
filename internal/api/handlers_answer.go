package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ModelID is the model name advertised to OpenAI-compatible clients.
const ModelID = "local-rag"

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}

	res, err := s.deps.Answerer.Answer(r.Context(), req.Query)
	if err != nil {
		s.log.Error("answer failed", "error", err)
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]string{
			{"id": ModelID, "object": "model", "owned_by": "local"},
		},
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []chatChoice   `json:"choices"`
	Usage   map[string]any `json:"usage"`
}

// lastUserMessage returns the content of the final user turn, or "".
func lastUserMessage(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

// handleChatCompletions answers the last user message through the RAG
// pipeline. Earlier turns are not sent to the model and streaming is not
// supported; the reply is always a single non-streamed completion.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	res, err := s.deps.Answerer.Answer(r.Context(), lastUserMessage(req.Messages))
	if err != nil {
		s.log.Error("chat completion failed", "error", err)
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}

	model := req.Model
	if model == "" {
		model = ModelID
	}
	writeJSON(w, http.StatusOK, chatResponse{
		ID:      "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chatChoice{{
			Index:        0,
			Message:      chatMessage{Role: "assistant", Content: res.Answer},
			FinishReason: "stop",
		}},
		Usage: map[string]any{},
	})
}
