package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragqa/internal/app"
	"ragqa/internal/config"
	"ragqa/internal/corpus"
	"ragqa/internal/logging"
	"ragqa/internal/service"
	"ragqa/internal/tui"
	"ragqa/internal/vectorstore"
	"ragqa/internal/vectorstore/remote"
)

type options struct {
	configPath string
	corpusPath string
	backend    string
	topK       int
	prompt     bool
}

func main() {
	_ = godotenv.Load()

	var opts options
	rootCmd := &cobra.Command{
		Use:           "ragqa",
		Short:         "Retrieve grounding context for questions over a study corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragqa/config.yaml if not provided)")
	rootCmd.PersistentFlags().StringVar(&opts.corpusPath, "corpus", "", "CSV corpus to ingest (overrides corpus.path)")
	rootCmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "Vector store backend: local or remote (overrides vector_store.backend)")

	ingestCmd := &cobra.Command{
		Use:   "ingest [corpus.csv]",
		Short: "Chunk, embed and store a CSV corpus",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.corpusPath = args[0]
			}
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				if a.Config.Corpus.Path == "" {
					return fmt.Errorf("no corpus: pass a CSV path or set corpus.path")
				}
				n, err := ingestCorpus(ctx, a)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ingested chunks: %d (backend: %s)\n", n, a.Service.Backend(ctx))
				return nil
			})
		},
	}

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Retrieve context for a question, or open the interactive prompt without one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				if err := loadLocalCorpus(ctx, a); err != nil {
					return err
				}
				k := opts.topK
				if k <= 0 {
					k = a.Config.Retrieval.TopK
				}
				question := strings.TrimSpace(strings.Join(args, " "))
				if question == "" {
					m := tui.New(a.Service, k, describeBackend(ctx, a))
					_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
					return err
				}
				docs, err := a.Service.Query(ctx, question, k)
				if err != nil {
					return err
				}
				out := service.FormatContext(docs)
				if opts.prompt {
					out = service.BuildUserMessage(question, docs)
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	askCmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of documents to retrieve (default retrieval.top_k)")
	askCmd.Flags().BoolVar(&opts.prompt, "prompt", false, "Print the full grounded user message instead of the context only")

	backendCmd := &cobra.Command{
		Use:   "backend",
		Short: "Show the active vector store and embedding tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				printBackend(ctx, cmd.OutOrStdout(), a)
				return nil
			})
		},
	}

	rootCmd.AddCommand(ingestCmd, askCmd, backendCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func withApp(ctx context.Context, opts options, fn func(ctx context.Context, a *app.App) error) error {
	var (
		cfg *config.AppConfig
		err error
	)
	if opts.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(opts.configPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.corpusPath != "" {
		cfg.Corpus.Path = opts.corpusPath
	}
	if opts.backend != "" {
		cfg.VectorStore.Backend = opts.backend
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func ingestCorpus(ctx context.Context, a *app.App) (int, error) {
	items, err := corpus.LoadFile(a.Config.Corpus.Path)
	if err != nil {
		return 0, fmt.Errorf("load corpus: %w", err)
	}
	a.Logger.Info("corpus loaded", zap.String("path", a.Config.Corpus.Path), zap.Int("items", len(items)))
	return a.Service.Ingest(ctx, items)
}

// loadLocalCorpus fills an in-memory store before querying. Remote indexes keep their data between runs.
func loadLocalCorpus(ctx context.Context, a *app.App) error {
	if a.Config.Corpus.Path == "" || a.Service.Backend(ctx) != vectorstore.BackendLocal {
		return nil
	}
	if _, err := os.Stat(a.Config.Corpus.Path); err != nil {
		a.Logger.Warn("corpus not found, starting with an empty store", zap.String("path", a.Config.Corpus.Path))
		return nil
	}
	_, err := ingestCorpus(ctx, a)
	return err
}

func describeBackend(ctx context.Context, a *app.App) string {
	store := a.Stores.Get(ctx)
	if rs, ok := store.(*remote.Storage); ok {
		return fmt.Sprintf("backend: %s (index %s)", store.Backend(), rs.IndexName())
	}
	return fmt.Sprintf("backend: %s", store.Backend())
}

func printBackend(ctx context.Context, w io.Writer, a *app.App) {
	store := a.Stores.Get(ctx)
	fmt.Fprintf(w, "requested: %s\n", a.Stores.Requested())
	fmt.Fprintln(w, describeBackend(ctx, a))
	if err := a.Stores.FallbackErr(); err != nil {
		fmt.Fprintf(w, "fallback reason: %v\n", err)
	}
	fmt.Fprintf(w, "dimension: %d\n", store.Dimension())
	fmt.Fprintf(w, "embedding tiers: %s\n", strings.Join(a.Tiers(store.Dimension()), " -> "))
}
