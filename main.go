package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finchat/pkg/rag"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	// chart and fact values are emitted as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "finchat",
		Short:        "Balance sheet ingestion and chat API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Run schema migrations and seeding, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			cfg.AutoMigrate = true
			log := newLogger(cfg)
			defer log.Sync()
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if err := initDB(db, cfg, log); err != nil {
				return err
			}
			fmt.Println("migration and seeding completed")
			return nil
		},
	})
	return root
}

func newLogger(cfg config) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if cfg.AppEnv == "development" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// newAI connects the Gemini client and the vector index. AI is disabled, not
// fatal, when no API key is configured.
func newAI(ctx context.Context, cfg config, log *zap.Logger) (rag.Generator, *rag.Index, error) {
	client, err := rag.NewGeminiClient(ctx, rag.GeminiConfig{
		APIKey:         cfg.GeminiAPIKey,
		Model:          cfg.GeminiModel,
		EmbeddingModel: cfg.GeminiEmbedModel,
	})
	if errors.Is(err, rag.ErrNotConfigured) {
		log.Warn("GEMINI_API_KEY not set, chat answers are disabled")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	policy := rag.NewCallPolicy(rag.PolicyConfig{
		PerMinute: cfg.LLMRatePerMin,
		Timeout:   cfg.LLMTimeout,
	}, log)
	index, err := rag.NewIndex(cfg.VectorPath, policy.Embedder(client), log)
	if err != nil {
		return nil, nil, err
	}
	return policy.Generator(client), index, nil
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()
	if string(cfg.JWTSecret) == devJWTSecret {
		log.Warn("JWT_SECRET not set, using the development secret")
	}
	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if err := initDB(db, cfg, log); err != nil {
		return err
	}
	gen, index, err := newAI(ctx, cfg, log)
	if err != nil {
		return err
	}
	s := newServer(db, cfg, log, gen, index)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
