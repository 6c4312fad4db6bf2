package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/baiqwe/vidguide/internal/analysis"
	"github.com/baiqwe/vidguide/internal/cleanup"
	"github.com/baiqwe/vidguide/internal/config"
	"github.com/baiqwe/vidguide/internal/frames"
	"github.com/baiqwe/vidguide/internal/handlers"
	"github.com/baiqwe/vidguide/internal/logger"
	"github.com/baiqwe/vidguide/internal/media"
	"github.com/baiqwe/vidguide/internal/storage"
	"github.com/baiqwe/vidguide/internal/store"
	"github.com/baiqwe/vidguide/internal/transcript"
	"github.com/baiqwe/vidguide/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	log := logger.New()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	scratch, err := storage.NewScratch(cfg.Storage.ScratchDir)
	if err != nil {
		log.WithError(err).Fatal("failed to prepare scratch dir")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Database), 0755); err != nil {
		log.WithError(err).Fatal("failed to prepare database dir")
	}

	db, err := store.New(cfg.Storage.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	bucket := storage.NewBucket(
		cfg.Storage.Bucket.Endpoint,
		cfg.Storage.Bucket.Name,
		cfg.Storage.Bucket.ServiceKey,
	)

	mediaClient := media.NewClient("", media.Timeouts{
		Probe:     time.Duration(cfg.Media.ProbeTimeoutSeconds) * time.Second,
		Subtitles: time.Duration(cfg.Media.SubtitleTimeoutSeconds) * time.Second,
		Download:  time.Duration(cfg.Media.DownloadTimeoutMinutes) * time.Minute,
	})
	transcripts := transcript.NewResolver(mediaClient, cfg.Subtitles.Languages, cfg.Subtitles.MaxTranscriptChars)

	analyzer := analysis.NewEngine(analysis.Options{
		BaseURL:    cfg.Analysis.BaseURL,
		APIKey:     cfg.Analysis.APIKey,
		Models:     cfg.Analysis.Models,
		MaxRetries: cfg.Analysis.MaxRetries,
		Timeout:    time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second,
		Templates:  db,
		Log:        log.Entry,
	})

	extractor := frames.NewEngine("", time.Duration(cfg.Media.FrameTimeoutSeconds)*time.Second, log.Entry)

	processor := worker.NewProcessor(worker.ProcessorOptions{
		Store:           db,
		Scratch:         scratch,
		Bucket:          bucket,
		Media:           mediaClient,
		Transcripts:     transcripts,
		Analyzer:        analyzer,
		Extractor:       extractor,
		DefaultDuration: cfg.Worker.DefaultDurationSeconds,
		Log:             log.Entry,
	})
	poller := worker.NewPoller(db, processor,
		time.Duration(cfg.Worker.IdleSleepSeconds)*time.Second,
		time.Duration(cfg.Worker.ErrorSleepSeconds)*time.Second,
		log.Entry,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	cleanupScheduler := cleanup.NewScheduler(
		scratch.Root(),
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		log.Entry,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	app := fiber.New()
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	projectHandler := handlers.NewProjectHandler(db, log.Entry)
	promptHandler := handlers.NewPromptHandler(db, log.Entry)
	logsHandler := handlers.NewLogsHandler(log.Buffer)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	app.Post("/projects", projectHandler.Create)
	app.Get("/projects", projectHandler.List)
	app.Get("/projects/:id", projectHandler.Get)
	app.Post("/projects/:id/reset", projectHandler.Reset)

	app.Get("/prompts/:mode", promptHandler.Get)
	app.Put("/prompts/:mode", promptHandler.Set)

	app.Get("/logs", logsHandler.Recent)
	app.Get("/ws/logs", websocket.New(logsHandler.Stream))

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("shutting down gracefully")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithField("addr", addr).Info("admin server starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}
