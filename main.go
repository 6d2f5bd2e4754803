// Package main implements the ClassicFM buffering daemon: it ingests a remote
// audio stream into a bounded ring buffer and replays it at the stream's
// natural rate to an external player, riding out network outages and the
// daily maintenance window.
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

	"github.com/Schotsl/ClassicFM/config"
	"github.com/Schotsl/ClassicFM/handlers"
	"github.com/Schotsl/ClassicFM/internal/buffer"
	"github.com/Schotsl/ClassicFM/internal/health"
	"github.com/Schotsl/ClassicFM/internal/ingest"
	"github.com/Schotsl/ClassicFM/internal/playback"
	"github.com/Schotsl/ClassicFM/internal/rebuild"
	"github.com/Schotsl/ClassicFM/internal/sink"
	"github.com/Schotsl/ClassicFM/internal/telemetry"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	cfg, err := config.New()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to parse log level")
	}
	logrus.SetLevel(level)

	logger := logrus.StandardLogger()
	if cfg.LogFile != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
		})
	}

	reporter := telemetry.NewLogReporter(logger)

	ring := buffer.NewRing(cfg.TargetBytes(), cfg.BytesPerSecond)
	source := ingest.NewHTTPSource(cfg.StreamURL, cfg.ConnectTimeout, cfg.ReadTimeout)
	player := sink.NewProcess(cfg.PlayerCommand, logger)

	consumerOpts := playback.Options{
		BytesPerChunk:      cfg.BytesPerChunk(),
		ChunkDuration:      cfg.ChunkDuration(),
		InitialBufferBytes: cfg.InitialBufferBytes(),
		BufferBackoff:      250 * time.Millisecond,
		PauseCheckInterval: 200 * time.Millisecond,
		RestartCooldown:    3 * time.Second,
	}
	consumer := playback.NewConsumer(ring, player, consumerOpts, reporter, logger)

	ingester := ingest.NewIngester(source, ring, ingest.DefaultOptions(), consumer.IsStopped, reporter, logger)

	schedulerOpts := rebuild.Options{
		Hour:          cfg.RebuildHour,
		ProbeTimeout:  cfg.ProbeTimeout,
		RefillTimeout: cfg.RefillTimeout,
	}
	scheduler := rebuild.NewScheduler(ring, source, consumer, schedulerOpts, reporter, logger)

	monitor := health.NewMonitor(ring, consumer, scheduler, cfg.HealthInterval, reporter, logger)

	ctx, cancel := context.WithCancel(context.Background())

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start playback")
	}
	go ingester.Run(ctx)
	go scheduler.Run(ctx)
	go monitor.Run(ctx)

	mux := http.NewServeMux()
	setupRoutes(mux, monitor, scheduler, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handlers.LoggingMiddleware(logger)(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
		consumer.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to gracefully shutdown")
		}
	}()

	logger.WithFields(logrus.Fields{
		"port":           cfg.Port,
		"stream":         cfg.StreamURL,
		"buffer_minutes": cfg.BufferMinutes,
	}).Info("Starting ClassicFM buffering daemon")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("Failed to start server")
	}

	<-ctx.Done()
	logger.Info("Daemon stopped")
}

func setupRoutes(mux *http.ServeMux, monitor *health.Monitor, scheduler *rebuild.Scheduler, logger *logrus.Logger) {
	mux.Handle("/health", handlers.NewStatusHandler(monitor, logger))
	mux.Handle("/rebuild", handlers.NewRebuildHandler(scheduler, logger))
}
