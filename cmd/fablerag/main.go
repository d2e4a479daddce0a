// Package main is the entry point for the fable RAG gateway.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fablerag/fablerag/internal/backend"
	"github.com/fablerag/fablerag/internal/config"
	"github.com/fablerag/fablerag/internal/embed"
	"github.com/fablerag/fablerag/internal/rag"
	"github.com/fablerag/fablerag/internal/server"
	"github.com/fablerag/fablerag/internal/store"
	"github.com/fablerag/fablerag/internal/telemetry"
)

// Version info (set via ldflags)
var (
	Version = "dev"
	Commit  = "unknown"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "fablerag",
		Short: "Fable retrieval-augmented generation gateway",
		Long: `fablerag answers questions about a corpus of fables by retrieving
semantically relevant stories from a vector store and feeding them as
context to one of several interchangeable generation backends.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default fablerag.yaml in working directory)")

	root.AddCommand(serveCmd(), replCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fablerag %s (%s)\n", Version, Commit)
		},
	}
}

// app bundles the assembled pipeline.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	store        *store.Store
	orchestrator *rag.Orchestrator
}

// setup loads configuration and wires the pipeline: logger, tracing,
// vector store, embedder, backend registry, orchestrator.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if err := telemetry.Init(telemetry.Config{
		Enabled:     cfg.TraceEnabled,
		Endpoint:    cfg.TraceEndpoint,
		ProjectName: cfg.TraceProject,
		ServiceName: "fablerag",
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	st, err := store.Connect(ctx, store.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
		Class:  cfg.Collection,
	}, 30*time.Second, logger)
	if err != nil {
		return nil, err
	}

	embedder := embed.New(cfg.OllamaURL, cfg.EmbedModel)
	registry := backend.NewRegistry(backend.NewFactory(logger, cfg.OllamaURL, cfg.GenerateTimeout))

	defaultModel := ""
	if len(cfg.OllamaModels) > 0 {
		defaultModel = cfg.OllamaModels[0]
	}
	orchestrator := rag.New(embedder, st, registry, cfg.DefaultProvider, defaultModel, logger)

	logger.Info("pipeline ready",
		zap.Strings("providers", cfg.Providers),
		zap.String("default_provider", cfg.DefaultProvider),
		zap.String("collection", cfg.Collection))

	return &app{cfg: cfg, logger: logger, store: st, orchestrator: orchestrator}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = telemetry.Shutdown(ctx)
	_ = a.logger.Sync()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			srv := server.New(a.cfg, a.orchestrator, a.store, a.logger)
			return srv.ListenAndServe(ctx)
		},
	}
}

func replCmd() *cobra.Command {
	var provider, model string
	var limit int

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive question loop against the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return runREPL(ctx, a, provider, model, limit)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "generation backend (default from config)")
	cmd.Flags().StringVar(&model, "model", "", "Ollama model (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 3, "number of fables used as context")
	return cmd
}

// runREPL reads questions line-by-line and runs them through the full
// retrieval + generation pipeline. Slash commands switch the backend
// or inspect the configuration.
func runREPL(ctx context.Context, a *app, provider, model string, limit int) error {
	homeDir, _ := os.UserHomeDir()
	historyFile := filepath.Join(homeDir, ".fablerag", "history")
	os.MkdirAll(filepath.Dir(historyFile), 0755)

	completer := readline.NewPrefixCompleter(
		readline.PcItem("/help"),
		readline.PcItem("/quit"),
		readline.PcItem("/models"),
		readline.PcItem("/provider"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "fable> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		AutoComplete:      completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("fablerag %s. Ask about the fables, /help for commands.\n", Version)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			fmt.Println("Goodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := replCommand(input, a, &provider, &model); quit {
				return nil
			}
			continue
		}

		result, err := a.orchestrator.Answer(ctx, rag.Request{
			Query:    input,
			Limit:    limit,
			Provider: provider,
			Model:    model,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("\n%s\n\n", result.Answer)
		for i, src := range result.Sources {
			fmt.Printf("  [%d] %s (score %.2f)\n", i+1, src.Title, src.Score)
		}
		fmt.Printf("  via %s\n\n", result.Provider)
	}
}

// replCommand handles slash commands; returns true to exit the loop.
func replCommand(input string, a *app, provider, model *string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		fmt.Println("Goodbye!")
		return true
	case "/models":
		fmt.Printf("providers: %s (default: %s)\n", strings.Join(a.cfg.Providers, ", "), a.cfg.DefaultProvider)
		if len(a.cfg.OllamaModels) > 0 {
			fmt.Printf("ollama models: %s\n", strings.Join(a.cfg.OllamaModels, ", "))
		}
	case "/provider":
		if len(fields) < 2 {
			fmt.Printf("current provider: %s\n", orDefault(*provider, a.cfg.DefaultProvider))
			break
		}
		if !a.cfg.HasProvider(fields[1]) {
			fmt.Printf("unknown provider %q, configured: %s\n", fields[1], strings.Join(a.cfg.Providers, ", "))
			break
		}
		*provider = fields[1]
		if len(fields) > 2 {
			*model = fields[2]
		}
		fmt.Printf("switched to %s\n", fields[1])
	case "/help":
		fmt.Println("/provider [name [model]]  show or switch the generation backend")
		fmt.Println("/models                   list configured providers and models")
		fmt.Println("/quit                     exit")
	default:
		fmt.Printf("unknown command %s (try /help)\n", fields[0])
	}
	return false
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
