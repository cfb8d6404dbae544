package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/busline/pubsubd/internals/config"
	"github.com/busline/pubsubd/internals/metrics"
	"github.com/busline/pubsubd/internals/registry"
	"github.com/busline/pubsubd/subscriberService"
	subscriberHTTP "github.com/busline/pubsubd/subscriberService/http"
	"github.com/busline/pubsubd/topicManagerService"
	topicManagerHTTP "github.com/busline/pubsubd/topicManagerService/http"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Info().Msgf(format, args...)
	})); err != nil {
		logger.Warn().Err(err).Msg("failed to set GOMAXPROCS")
	}

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}
	cfg.LogFields(logger)

	m := metrics.NewMetrics()
	reg := registry.New(cfg, m, logger)

	procStats := metrics.NewProcessStats()
	go procStats.Run(cfg.ProcessStatsTick)
	defer procStats.Stop()

	topicMgrSvc := topicManagerService.NewTopicManagerServiceWithProcessStats(reg, cfg, m, procStats)
	subscriberSvc := subscriberService.NewSubscriberService(cfg, topicMgrSvc, logger)

	if err := subscriberSvc.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start subscriber service")
	}

	router := chi.NewRouter()
	topicManagerHTTP.RegisterTopicManagerRoutes(router, topicMgrSvc)
	subscriberHTTP.RegisterSubscriberRoutes(router, subscriberSvc, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDeadline)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}

	if err := subscriberSvc.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("subscriber service shutdown error")
	}

	reg.ShutdownAll(ctx)

	logger.Info().Msg("shutdown complete")
}
