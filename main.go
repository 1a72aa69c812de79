package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/callbridge/config"
	"github.com/room4-2/callbridge/gemini"
	"github.com/room4-2/callbridge/hub"
	"github.com/room4-2/callbridge/logging"
	"github.com/room4-2/callbridge/server"
	"github.com/room4-2/callbridge/session"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	reapInterval    = time.Minute
)

func main() {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to set up logging")
	}
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	translator, err := gemini.NewTranslator(ctx, gemini.Config{
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.GeminiModel,
		MIMEType: cfg.AudioMIMEType,
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create translator")
	}

	var presence session.Presence
	if cfg.RedisURL != "" {
		rp, err := session.NewRedisPresence(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.SessionTimeout, &logger)
		if err != nil {
			// Presence is optional; run without it.
			logger.Warn().Err(err).Msg("redis unavailable, presence mirror disabled")
		} else {
			presence = rp
		}
	}

	registry := session.NewRegistry(session.RegistryConfig{
		MaxSessions: cfg.MaxSessions,
		Session: session.Options{
			KeepAlivePeriod:  cfg.KeepAlivePeriod,
			ReadLimit:        cfg.MaxMessageSize,
			AudioQueueChunks: cfg.AudioQueueChunks,
			AudioQueueBytes:  cfg.MaxBufferSize,
		},
		Presence: presence,
		Logger:   &logger,
	})

	h := hub.New(hub.Config{
		Registry:           registry,
		Translator:         translator,
		TranslationTimeout: cfg.TranslationTimeout,
		MaxConcurrent:      cfg.MaxConcurrentTranslations,
		SessionTimeout:     cfg.SessionTimeout,
		Logger:             &logger,
	})

	srv, err := server.NewServerWebsocket(cfg, h, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create server")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return h.RunReaper(gctx, reapInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Warn().Msg("received shutdown signal")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
	logger.Info().Msg("server stopped")
}
