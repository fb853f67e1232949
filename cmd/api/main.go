package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"stickerforge/internal/batchapi"
	"stickerforge/internal/http/handlers"
	httpapi "stickerforge/internal/http/httpapi"
	"stickerforge/internal/infra"
	"stickerforge/internal/pixel"
	"stickerforge/internal/sqlinline"
	"stickerforge/internal/sticker"
	"stickerforge/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	if _, err := runner.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure registry schema")
	}

	api, err := batchapi.NewClient(batchapi.Options{
		APIKey:           cfg.BatchAPIKey,
		BaseURL:          cfg.BatchBaseURL,
		CompletionWindow: cfg.CompletionWindow,
		Logger:           &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure batch api client")
	}

	submitter := sticker.NewSubmitter(api, sticker.Defaults{
		Model:      cfg.Model,
		Size:       cfg.ImageSize,
		Quality:    cfg.Quality,
		Background: cfg.Background,
		Format:     cfg.OutputFormat,
	})
	poller := sticker.NewPoller(api)

	resizer, err := pixel.NewResizer(cfg.TargetWidth, cfg.TargetHeight)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid target canvas")
	}
	pipeline := pixel.NewPipeline(pixel.NewNormalizer(pixel.NormalizeOptions{}), resizer, logger)

	store, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure sticker storage")
	}

	app := &handlers.App{
		Config:    cfg,
		Logger:    logger,
		SQL:       runner,
		Submitter: submitter,
		Poller:    poller,
		Pipeline:  pipeline,
		Store:     store,
	}

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newBlobStore(ctx context.Context, cfg *infra.Config) (storage.BlobStore, error) {
	if cfg.StorageDriver == "minio" {
		return storage.NewMinioStore(ctx, storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	}
	return storage.NewFileStore(cfg.StoragePath)
}
