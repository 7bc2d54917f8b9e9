package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dgallion1/docrag/internal/api"
	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/llm"
	"github.com/dgallion1/docrag/internal/mcptools"
	"github.com/dgallion1/docrag/internal/pipeline"
	"github.com/dgallion1/docrag/internal/rag"
	"github.com/dgallion1/docrag/internal/store"
)

const version = "0.1.0"

const usage = `usage: docrag <command> [args]

commands:
  serve            run the HTTP API
  ingest [dir...]  ingest the given directories, or DATA_MD_DIR and DATA_PDF_DIR
  ask <question>   answer a question from the ingested documents
  mcp              serve MCP tools over stdio
  version          print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("docrag %s\n", version)
		return
	case "help", "--help", "-h":
		fmt.Print(usage)
		return
	}

	cfg := config.Load()

	// stdout carries the MCP protocol, so logs go to stderr there.
	var out io.Writer = os.Stdout
	if cmd != "serve" {
		out = os.Stderr
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	log := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, log)
	case "ingest":
		err = runIngest(ctx, cfg, log, args)
	case "ask":
		err = runAsk(ctx, cfg, log, args)
	case "mcp":
		err = runMCP(ctx, cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg config.Config) (*store.Store, error) {
	return store.Open(store.Config{Path: cfg.StorePath, MaxChunks: cfg.StoreMaxChunks})
}

// closeStore seals the store so the WAL is folded into the main file, then
// closes it.
func closeStore(st *store.Store, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.Seal(ctx); err != nil {
		log.Error("seal store", "error", err)
	}
	if err := st.Close(); err != nil {
		log.Error("close store", "error", err)
	}
}

func newAnswerer(cfg config.Config, st *store.Store, log *slog.Logger) (*rag.Answerer, *llm.OllamaClient) {
	client := llm.NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaChatModel, llm.NewLLMStats(cfg.LLMStatsWindow))
	return &rag.Answerer{Retriever: st, Completer: client, TopK: cfg.TopK, Log: log}, client
}

func runServe(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	ing := pipeline.NewIngestor(cfg, st, log)
	orch := pipeline.NewOrchestrator(cfg, ing, log)
	orch.Start(ctx)

	answerer, client := newAnswerer(cfg, st, log)
	defer client.Close()

	srv := api.NewServer(cfg, api.Deps{
		Index:        st,
		Ingestor:     ing,
		Orchestrator: orch,
		Answerer:     answerer,
		LLM:          client,
	}, log)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // synchronous ingest and model calls
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting docrag", "port", cfg.Port, "store", cfg.StorePath, "model", cfg.OllamaChatModel)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		orch.Stop()
		return err
	}
	<-done
	return nil
}

func runIngest(ctx context.Context, cfg config.Config, log *slog.Logger, dirs []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	ing := pipeline.NewIngestor(cfg, st, log)
	var report any
	if len(dirs) == 0 {
		sources := pipeline.Sources{MarkdownDir: cfg.MarkdownDir, PDFDir: cfg.PDFDir}
		report, err = pipeline.Run(ctx, ing, sources, pipeline.KindAll)
	} else {
		byDir := map[string]pipeline.Stats{}
		for _, dir := range dirs {
			var stats pipeline.Stats
			stats, err = ing.IngestDirectory(ctx, dir)
			byDir[dir] = stats
			if err != nil {
				break
			}
		}
		report = byDir
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(report)
	return err
}

func runAsk(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("usage: docrag ask <question>")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	answerer, client := newAnswerer(cfg, st, log)
	defer client.Close()

	res, err := answerer.Answer(ctx, query)
	if err != nil {
		return err
	}

	fmt.Println(res.Answer)
	if len(res.Citations) > 0 {
		fmt.Println("\nSources:")
		for i, c := range res.Citations {
			fmt.Printf("  [SOURCE %d] %s\n", i+1, c)
		}
	}
	return nil
}

func runMCP(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	answerer, client := newAnswerer(cfg, st, log)
	defer client.Close()

	srv := mcptools.NewServer(mcptools.Config{
		Retriever: st,
		Answerer:  answerer,
		TopK:      cfg.TopK,
		Version:   version,
	})
	log.Info("serving mcp over stdio", "store", cfg.StorePath)
	return mcptools.ServeStdio(ctx, srv)
}
