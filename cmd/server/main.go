package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/SwarnimWalavalkar/conjure/pkg/archive"
	"github.com/SwarnimWalavalkar/conjure/pkg/chat"
	"github.com/SwarnimWalavalkar/conjure/pkg/clients"
	"github.com/SwarnimWalavalkar/conjure/pkg/config"
	"github.com/SwarnimWalavalkar/conjure/pkg/database"
	"github.com/SwarnimWalavalkar/conjure/pkg/embeddings"
	"github.com/SwarnimWalavalkar/conjure/pkg/research"
	"github.com/SwarnimWalavalkar/conjure/pkg/search"
	"github.com/SwarnimWalavalkar/conjure/pkg/server"
	"github.com/SwarnimWalavalkar/conjure/pkg/splitter"
	"github.com/SwarnimWalavalkar/conjure/pkg/vectorstore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	cfg := config.Load()

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, nil)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	llm, err := clients.New(ctx, cfg)
	if err != nil {
		return err
	}
	provider, err := search.NewProvider(cfg.SearchAPI, cfg.ExaApiKey)
	if err != nil {
		return err
	}
	factory := &research.Factory{
		LLM:          llm,
		Search:       provider,
		Defaults:     cfg.Research,
		DefaultModel: cfg.DefaultModel,
		Logger:       logger,
	}

	arch, err := newArchive(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	chatSvc, err := chat.NewService(ctx, db, cfg, factory, provider, arch)
	if err != nil {
		return err
	}
	chatSvc.Logger = logger

	jobs := server.NewService(db, factory, arch, logger)
	mcpTools := &server.MCPTools{Research: factory, Search: provider, Logger: logger}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: true,
	}))
	server.NewHandler(jobs, chatSvc, mcpTools.Handler(), db).RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "search_api", cfg.SearchAPI, "default_model", cfg.DefaultModel)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	return jobs.Shutdown(shutdownCtx)
}

// newArchive wires the research archive. It is disabled without a Google
// API key, since embeddings need one.
func newArchive(ctx context.Context, cfg *config.Config, db *database.PostgresDB, logger *slog.Logger) (*archive.Archive, error) {
	if cfg.GoogleApiKey == "" {
		logger.Warn("GOOGLE_API_KEY not set, research archive disabled")
		return nil, nil
	}
	if err := db.InitArchive(ctx, cfg.CollectionName, embeddings.Dimensions); err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		return nil, err
	}
	split, err := splitter.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	store, err := vectorstore.NewPGVectorStore(db.Pool, cfg.CollectionName)
	if err != nil {
		return nil, err
	}
	return archive.New(store, embedder, split, logger), nil
}
