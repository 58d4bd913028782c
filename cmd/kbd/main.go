// Command kbd is the personal knowledge engine's stdio entrypoint: it wires
// every internal component exactly once at startup (storage backend, entry
// store, embedding client, graph store, LLM providers, ingestion pipeline,
// query planner, strategy executor, tool surface) and then serves
// tool-call requests over stdio until stdin closes, per spec.md §5's
// single-writer, request-at-a-time concurrency model.
//
// The construct-everything-then-serve shape is grounded on
// _examples/KittClouds-Go-Machine-n/GoKitt/cmd/wasm/main.go's global
// service wiring in main(), adapted from a JS-bridge function table to a
// stdio request loop (internal/rpcserver), and the flag/config layering is
// grounded on _examples/steveyegge-beads/cmd/bd's cobra root command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbengine/personalkb/internal/config"
	"github.com/kbengine/personalkb/internal/dbbackend"
	"github.com/kbengine/personalkb/internal/dbbackend/pgbackend"
	"github.com/kbengine/personalkb/internal/dbbackend/sqlitebackend"
	"github.com/kbengine/personalkb/internal/embedclient"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/graph"
	"github.com/kbengine/personalkb/internal/ingest"
	"github.com/kbengine/personalkb/internal/llm"
	"github.com/kbengine/personalkb/internal/logx"
	"github.com/kbengine/personalkb/internal/planner"
	"github.com/kbengine/personalkb/internal/rpcserver"
	"github.com/kbengine/personalkb/internal/strategy"
	"github.com/kbengine/personalkb/internal/tools"
)

var (
	flagConfigPath  string
	flagDBPath      string
	flagRemoteURL   string
	flagLogLevel    string
	flagLogFormat   string
	flagManagerMode bool
)

func main() {
	root := &cobra.Command{
		Use:           "kbd",
		Short:         "Personal knowledge engine — serves kb_* tools over stdio",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.Flags().StringVar(&flagConfigPath, "config", "", "path to a TOML config file")
	root.Flags().StringVar(&flagDBPath, "db-path", "", "override the configured SQLite db path")
	root.Flags().StringVar(&flagRemoteURL, "remote-url", "", "override the configured Postgres connection string")
	root.Flags().StringVar(&flagLogLevel, "log-level", "", "override the configured log level")
	root.Flags().StringVar(&flagLogFormat, "log-format", "", "override the configured log format (console|json)")
	root.Flags().BoolVar(&flagManagerMode, "manager-mode", false, "enable kb_maintain's destructive actions")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kbd:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagDBPath != "" {
		cfg.DBPath = flagDBPath
	}
	if flagRemoteURL != "" {
		cfg.RemoteURL = flagRemoteURL
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if flagManagerMode {
		cfg.ManagerMode = true
	}

	logx.Init(cfg.LogLevel, cfg.LogFormat)
	log := logx.Component("main")

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening storage backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing backend")
		}
	}()

	if err := backend.ApplySchema(ctx, cfg.EmbeddingDimension); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	entries := entrystore.New(backend)
	embed := embedclient.New(backend, cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.EmbeddingDimension,
		time.Duration(cfg.EmbeddingTimeoutMS)*time.Millisecond)
	graphStore := graph.NewStore(backend)

	extractionLLM := llm.New(llm.Config{
		Type:    cfg.ExtractionProvider,
		APIKey:  cfg.ProviderAPIKey,
		Model:   cfg.ExtractionModel,
		Timeout: time.Duration(cfg.ProviderTimeoutMS) * time.Millisecond,
	})
	planningLLM := llm.New(llm.Config{
		Type:    cfg.PlanningProvider,
		APIKey:  cfg.ProviderAPIKey,
		Model:   cfg.PlanningModel,
		Timeout: time.Duration(cfg.ProviderTimeoutMS) * time.Millisecond,
	})

	var enricher *graph.Enricher
	if extractionLLM != nil {
		enricher = graph.NewEnricher(graphStore, extractionLLM)
	}

	ingester := ingest.New(backend, entries, embed, graphStore, enricher, extractionLLM, cfg.MaxFileSizeBytes)

	var plannerInst *planner.Planner
	if planningLLM != nil {
		plannerInst = planner.New(entries, graphStore, planningLLM)
	}
	strategyExec := strategy.New(backend, entries, graphStore, embed, plannerInst)

	// kb_summarize's synthesis and kb_ask's planner both reason over already
	// -retrieved entries at query time, so they share the planning provider;
	// extraction stays separate because ingestion/enrichment run against raw
	// file content instead of search results.
	toolServer := tools.New(cfg, backend, entries, embed, graphStore, enricher, ingester, strategyExec, plannerInst, planningLLM)

	log.Info().Str("db_path", cfg.DBPath).Bool("remote", cfg.RemoteURL != "").Msg("kbd serving on stdio")
	if err := rpcserver.Serve(ctx, os.Stdin, os.Stdout, toolServer); err != nil {
		return fmt.Errorf("serving stdio: %w", err)
	}
	return nil
}

func openBackend(ctx context.Context, cfg config.Config) (dbbackend.Backend, error) {
	if cfg.RemoteURL != "" {
		return pgbackend.Open(ctx, cfg.RemoteURL)
	}
	return sqlitebackend.Open(cfg.DBPath)
}
