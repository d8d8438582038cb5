package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"farecast/config"
	fhttp "farecast/http"
	"farecast/logging"
	"farecast/ml"
	"farecast/monitoring"
	"farecast/pipeline"
	"farecast/prediction"

	"go.uber.org/zap"
)

func main() {
	// Look for config in root even if run from cmd/
	configPath := "config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if _, err := os.Stat(filepath.Join("..", "config.yaml")); err == nil {
			configPath = filepath.Join("..", "config.yaml")
		}
	}

	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.Log)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("farecast exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profile, err := ml.ProfileByName(cfg.Model.Domain)
	if err != nil {
		return err
	}

	// 2. Model artifacts are loaded on first use
	artifacts := ml.NewArtifacts(ml.ArtifactPaths{
		Model:  cfg.Model.Path,
		Schema: cfg.Model.FeaturesPath,
	}, logger.Named("artifacts"))
	if cfg.Model.Watch {
		go func() {
			if err := artifacts.Watch(ctx); err != nil {
				logger.Warn("artifact watcher stopped", zap.Error(err))
			}
		}()
	}

	metrics := monitoring.NewMetrics("farecast")
	hub := monitoring.NewHub(logger.Named("feed"))
	go hub.Run()
	defer hub.Stop()

	opts := []prediction.Option{
		prediction.WithObserver(metrics),
		prediction.WithPublisher(hub),
	}
	handlerOpts := []fhttp.HandlerOption{
		fhttp.WithModelStatus(artifacts),
		fhttp.WithFeed(hub),
		fhttp.WithMetrics(metrics),
		fhttp.WithMaxUpload(cfg.HTTP.MaxUploadMB << 20),
	}

	// 3. Optional prediction log
	if cfg.Database.Enabled {
		store, err := pipeline.NewPredictionStore(cfg.Database.StorageConfig)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("prediction log enabled", zap.String("path", cfg.Database.DBPath))
		opts = append(opts, prediction.WithRecorder(store))
		handlerOpts = append(handlerOpts, fhttp.WithHistory(store))
	}

	normalizer := pipeline.NewNormalizer(profile, pipeline.NewDataCleaner(logger.Named("cleaner")))
	svc, err := prediction.NewService(artifacts, normalizer,
		prediction.Config{CacheSize: cfg.Model.CacheSize},
		logger.Named("prediction"), opts...)
	if err != nil {
		return err
	}

	// 4. Start HTTP server
	server := fhttp.NewServer(fhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, fhttp.NewHandlers(svc, logger.Named("http"), handlerOpts...), logger.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	logger.Info("farecast started",
		zap.String("domain", profile.Name),
		zap.String("model", cfg.Model.Path),
		zap.String("features", cfg.Model.FeaturesPath),
		zap.String("addr", server.Addr()))

	// 5. Handle graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	return nil
}
