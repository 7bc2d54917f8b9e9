// Package mcptools exposes retrieval and answering as Model Context Protocol
// tools, served over stdio for editor and desktop clients.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgallion1/docrag/internal/doctree"
	"github.com/dgallion1/docrag/internal/rag"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MaxResults caps the k a client may request from docrag_search.
const MaxResults = 50

// Retriever returns up to k hits for a query, best first.
type Retriever interface {
	Find(ctx context.Context, query string, k int) ([]doctree.Hit, error)
}

// Answerer answers a question from retrieved sources.
type Answerer interface {
	Answer(ctx context.Context, query string) (*rag.Result, error)
}

// Config holds what the tools need.
type Config struct {
	Retriever Retriever
	Answerer  Answerer
	TopK      int
	Version   string
}

// NewServer creates an MCP server with the docrag tools registered.
func NewServer(cfg Config) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	s := server.NewMCPServer("docrag", ver, server.WithToolCapabilities(false))

	registerSearchTool(s, cfg.Retriever, cfg.TopK)
	if cfg.Answerer != nil {
		registerAnswerTool(s, cfg.Answerer)
	}
	return s
}

// ServeStdio serves s on stdin and stdout until ctx is done or stdin closes.
func ServeStdio(ctx context.Context, s *server.MCPServer) error {
	return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
}

type searchResult struct {
	Citation string  `json:"citation"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

func registerSearchTool(s *server.MCPServer, r Retriever, topK int) {
	tool := mcp.NewTool("docrag_search",
		mcp.WithDescription("Search the ingested documents with BM25 keyword ranking. Returns chunks with their citation labels."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithNumber("k",
			mcp.Description(fmt.Sprintf("Maximum number of results (default: %d, max: %d)", topK, MaxResults)),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		k := topK
		if v, err := req.RequireFloat("k"); err == nil && v > 0 {
			k = int(min(v, MaxResults))
		}

		hits, err := r.Find(ctx, query, k)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}

		out := make([]searchResult, 0, len(hits))
		for _, h := range hits {
			out = append(out, searchResult{
				Citation: rag.FormatCitation(h),
				Score:    h.Score,
				Text:     h.Body(),
			})
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerAnswerTool(s *server.MCPServer, a Answerer) {
	tool := mcp.NewTool("docrag_answer",
		mcp.WithDescription("Answer a question from the ingested documents only, citing sources as [SOURCE n]."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		res, err := a.Answer(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, _ := json.MarshalIndent(map[string]any{
			"answer":    res.Answer,
			"citations": res.Citations,
		}, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}
