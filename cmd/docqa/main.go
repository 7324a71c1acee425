package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/httpapi"
	"docqa/internal/job"
	"docqa/internal/schedule"
	"docqa/internal/tui"
	"docqa/internal/vectorindex"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "docqa",
		Short:         "question answering over a local document collection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to ./config.yaml or ~/.config/docqa/config.yaml)")

	var k int
	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "answer one question and print the cited sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, true, func(ctx context.Context, a *app) error {
				res, err := a.pipeline.Chat(ctx, strings.Join(args, " "), k)
				if err != nil {
					return err
				}
				fmt.Println(res.Answer)
				for i, c := range res.Citations {
					fmt.Printf("\n[%d] %s #%d (score=%.3f)\n%s\n", i+1, c.Source, c.ID, res.Scored[i].Score, c.Text)
				}
				return nil
			})
		},
	}
	askCmd.Flags().IntVar(&k, "k", 0, "number of passages to cite (0 uses retrieval.default_k)")

	ingestCmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "ingest files or directories (defaults to the configured data dirs)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, false, func(ctx context.Context, a *app) error {
				paths := args
				if len(paths) == 0 {
					paths = a.cfg.DataDirs
				}
				report, err := a.pipeline.Ingest(ctx, paths)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "print index statistics and the ingested documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, false, func(ctx context.Context, a *app) error {
				docs, err := a.store.Ledger().List(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"index": a.index.Stats(), "documents": docs})
			})
		},
	}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "interactive chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, true, func(ctx context.Context, a *app) error {
				st := a.index.Stats()
				summary := fmt.Sprintf("%d passages, dim %d, reranker %s", st.Entries, st.Dimension, a.pipeline.RerankerName())
				_, err := tea.NewProgram(tui.New(ctx, a.pipeline, k, summary), tea.WithAltScreen()).Run()
				return err
			})
		},
	}
	chatCmd.Flags().IntVar(&k, "k", 0, "number of passages to cite (0 uses retrieval.default_k)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, true, runServer)
		},
	}

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, chatCmd, statsCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp loads config, initializes logging and assembles the components.
// Commands that answer questions set bootstrap: the generator must be available and
// the index is loaded, restored or built before fn runs. Otherwise only the
// persisted index is loaded.
func withApp(ctx context.Context, configPath string, bootstrap bool, fn func(context.Context, *app) error) error {
	_ = godotenv.Load()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Init(
		cfg.Log.File,
		cfg.Log.Level,
		cfg.Log.FileCount,
		cfg.Log.FileSize,
		cfg.Log.KeepDays,
		cfg.Log.Console,
	)
	a, err := buildApp(ctx, cfg, bootstrap)
	if err != nil {
		return err
	}
	defer a.Close()
	if bootstrap {
		if err := a.pipeline.Bootstrap(ctx, cfg.DataDirs); err != nil {
			return fmt.Errorf("bootstrap index: %w", err)
		}
	} else if _, err := a.index.Load(); err != nil {
		if !errors.Is(err, vectorindex.ErrCorruptIndex) {
			return fmt.Errorf("load index: %w", err)
		}
		logutil.GetLogger(ctx).Warn("persisted index is corrupt, next ingest replaces it", zap.Error(err))
	}
	return fn(ctx, a)
}

func loadConfig(path string) (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	handler := httpapi.NewHandler(a.pipeline, cfg.DataDirs)
	deps := httpapi.RouterDeps{Handler: handler, APIKey: config.Secret(cfg.Server.APIKeyEnv)}

	engine, err := webapi.NewEngine(
		"/",
		cfg.Server.Addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			httpapi.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			httpapi.CORS(cfg.Server.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewIngestJob(a.pipeline, cfg.DataDirs), cfg.Schedule.Ingest); err != nil {
		return err
	}
	cleanup := job.NewEmbeddingCacheCleanupJob(a.store.EmbeddingCache(), time.Duration(cfg.Schedule.CacheTTLHours)*time.Hour)
	if err := scheduler.AddJob(cleanup, cfg.Schedule.CacheCleanup); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening",
		zap.String("addr", cfg.Server.Addr),
		zap.Strings("jobs", scheduler.Jobs()),
		zap.Bool("api_key", deps.APIKey != ""))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
