package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"edugen/internal/adapter/repo"
	"edugen/internal/clock"
	"edugen/internal/domain"
	"edugen/internal/export"
	"edugen/internal/generation"
	"edugen/internal/housekeeping"
	"edugen/internal/http/handlers"
	httpapi "edugen/internal/http/httpapi"
	"edugen/internal/infra"
	"edugen/internal/infra/credentials"
	"edugen/internal/infra/geoip"
	"edugen/internal/middleware"
	"edugen/internal/persistence"
	"edugen/internal/providers/genai"
	"edugen/internal/providers/openai"
	"edugen/internal/storage"
	"edugen/internal/stream"
	"edugen/internal/tokenstore"
)

// cleanup collects shutdown hooks and runs them in reverse order.
type cleanup []func()

func (c *cleanup) add(fn func()) { *c = append(*c, fn) }

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func main() {
	// .env is optional.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers cleanup
	defer closers.run()

	clk := clock.Real()

	var runner *infra.SQLRunner
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		closers.add(pool.Close)
		runner = infra.NewSQLRunner(pool, logger)
	}

	tokens, err := buildTokenStore(ctx, cfg, clk, &closers)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build token store")
	}
	artifacts, err := buildRepository(ctx, cfg, runner, &closers)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build artifact repository")
	}
	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build export storage")
	}
	backend, err := buildBackend(ctx, cfg, runner, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build generation backend")
	}

	renderer := export.NewRenderer(export.Options{FontPath: cfg.PDFFontPath})
	hub := stream.NewHub(cfg.StreamBuffer)
	orchestrator, err := generation.New(generation.Options{
		Backend: backend,
		Tokens:  tokens,
		Sink:    hub,
		Clock:   clk,
		Logger:  &logger,
		Config: generation.Config{
			MaxConcurrent:      cfg.MaxConcurrentJobs,
			AttachmentMaxBytes: cfg.AttachmentMaxBytes,
			AttachWait:         cfg.AttachWait,
			Retention:          cfg.JobRetention,
			DownloadURL: func(token string) string {
				return cfg.PublicBaseURL + "/v1/artifacts/" + token + "/download"
			},
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build orchestrator")
	}
	gateway, err := persistence.New(persistence.Options{
		Tokens:   tokens,
		Repo:     artifacts,
		Blobs:    blobs,
		Renderer: renderer,
		Clock:    clk,
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build persistence gateway")
	}

	scheduler, err := housekeeping.New(housekeeping.Options{Tokens: tokens, Jobs: orchestrator, Clock: clk, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule housekeeping")
	}
	scheduler.Start()

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	closers.add(func() { _ = resolver.Close() })
	var country middleware.CountryLookup
	if resolver != nil {
		country = resolver.Country
	}

	app := handlers.NewApp(handlers.App{
		Orchestrator:       orchestrator,
		Hub:                hub,
		Tokens:             tokens,
		Gateway:            gateway,
		Renderer:           renderer,
		Logger:             &logger,
		Clock:              clk,
		JWTSecret:          cfg.JWTSecret,
		AccessTokenTTL:     cfg.AccessTokenTTL,
		RefreshTokenTTL:    cfg.RefreshTokenTTL,
		CookieSecure:       cfg.CookieSecure,
		AttachmentMaxBytes: cfg.AttachmentMaxBytes,
		StreamIdleTimeout:  cfg.StreamIdleTimeout,
		CancelOnDisconnect: cfg.CancelOnDisconnect,
	})
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:        logger,
		CORSOrigins:   cfg.CORSOrigins,
		RatePerMinute: cfg.RateLimitPerMin,
		DefaultLocale: "vi",
		Country:       country,
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().
			Str("provider", backend.Name()).
			Str("tokens", cfg.TokenStore).
			Str("persistence", cfg.PersistenceDriver).
			Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("generation jobs did not finish in time")
	}
	scheduler.Stop(shutdownCtx)
	logger.Info().Msg("server stopped")
}

func buildTokenStore(ctx context.Context, cfg *infra.Config, clk clock.Clock, closers *cleanup) (tokenstore.Store, error) {
	if cfg.TokenStore != "redis" {
		return tokenstore.NewMemory(cfg.TokenTTL, clk), nil
	}
	client, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers.add(func() { _ = client.Close() })
	return tokenstore.NewRedis(client, cfg.TokenTTL, clk), nil
}

func buildRepository(ctx context.Context, cfg *infra.Config, runner *infra.SQLRunner, closers *cleanup) (domain.ArtifactRepository, error) {
	switch cfg.PersistenceDriver {
	case "memory":
		return repo.NewArtifactRepositoryMemory(), nil
	case "mongo":
		client, err := infra.NewMongoClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		closers.add(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		})
		r := repo.NewArtifactRepositoryMongo(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))
		if err := r.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return r, nil
	}
	if runner == nil {
		return nil, errors.New("postgres persistence needs DATABASE_URL")
	}
	r := repo.NewArtifactRepository(runner)
	if err := r.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func buildBlobStore(ctx context.Context, cfg *infra.Config) (domain.BlobStore, error) {
	if cfg.ExportStorage == "s3" {
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
		})
	}
	if cfg.ExportDir == "" {
		return nil, nil
	}
	return storage.NewFileStore(cfg.ExportDir)
}

// buildBackend picks the generation provider. A Gemini key missing from
// the environment is looked up in the credentials table when a database is
// configured.
func buildBackend(ctx context.Context, cfg *infra.Config, runner *infra.SQLRunner, logger *infra.Logger) (generation.Backend, error) {
	var creds *credentials.Store
	if runner != nil {
		creds = credentials.NewStore(runner)
		if err := creds.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	storedKey := func(provider string) string {
		if creds == nil {
			return ""
		}
		key, err := creds.Token(ctx, provider)
		if err != nil {
			logger.Warn().Err(err).Str("provider", provider).Msg("credentials lookup failed")
		}
		return key
	}

	if cfg.GenerationProvider == credentials.ProviderOpenAI {
		return openai.NewClient(openai.Options{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Logger:  logger,
		})
	}

	key := cfg.GeminiAPIKey
	if key == "" {
		key = storedKey(credentials.ProviderGemini)
	}
	if key == "" {
		logger.Warn().Msg("no Gemini API key configured, serving synthetic artifacts")
	}
	return genai.NewClient(genai.Options{
		APIKey:  key,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  logger,
	})
}
