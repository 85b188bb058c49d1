// Command server runs the invoice chat backend: a REST API for the client
// roster, invoices with on-demand PDF rendering, and the conversational
// invoice flow backed by an extraction oracle.
//
// Configuration is environment-driven (.env is honored in development); see
// internal/config for every knob and its default.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lshimizu/invoice-chat-backend/internal/config"
	httpapi "github.com/lshimizu/invoice-chat-backend/internal/http"
	"github.com/lshimizu/invoice-chat-backend/internal/observability"
	"github.com/lshimizu/invoice-chat-backend/internal/oracle"
	"github.com/lshimizu/invoice-chat-backend/internal/pdf"
	"github.com/lshimizu/invoice-chat-backend/internal/repo"
	"github.com/lshimizu/invoice-chat-backend/internal/storage"
	"github.com/lshimizu/invoice-chat-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// @title           Invoice Chat Backend API
// @version         1.0
// @description     Client roster, invoices with PDF rendering, and a conversational invoice flow.
// @BasePath        /api/v1
// @accept          json
// @produce         json
func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Logging
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting invoice-chat-backend")

	// Storage layer
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	// PDF rendering
	renderer, err := pdf.NewRenderer(&cfg)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.PDFDir).Msg("init pdf renderer")
	}

	// Object storage for chat images; absent config degrades to 503 on the
	// upload endpoint instead of failing startup.
	var uploader storage.Uploader
	if up, err := storage.NewMinioUploader(cfg.Storage); err != nil {
		if !errors.Is(err, storage.ErrNotConfigured) {
			log.Fatal().Err(err).Msg("init object storage")
		}
		log.Warn().Msg("object storage not configured; image uploads disabled")
	} else {
		uploader = up
	}

	// Extraction oracle
	extractor := oracle.NewOpenRouter(cfg.Oracle)

	// Tracing
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.OTEL.Enabled {
		shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
		if err != nil {
			log.Fatal().Err(err).Msg("init opentelemetry")
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("otel shutdown")
			}
		}()
	}

	// HTTP transport
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Dependencies{
		Oracle:   extractor,
		Hours:    extractor,
		Renderer: renderer,
		Uploader: uploader,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
