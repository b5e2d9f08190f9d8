package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	appchat "llm-stream/application/chat"
	"llm-stream/infrastructure/openai"
	infrapersistence "llm-stream/infrastructure/persistence"
	httpiface "llm-stream/interfaces/http"
	"llm-stream/internal/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadYAML("")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch cfg.Logging.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetReportCaller(cfg.Logging.ReportCaller)

	logrus.WithFields(logrus.Fields{
		"port":               cfg.Server.Port,
		"host":               cfg.Server.Host,
		"default_model":      cfg.Provider.DefaultModel,
		"enable_persistence": cfg.Database.EnablePersistence,
	}).Info("Starting LLM stream relay")

	client := openai.NewClient(openai.Config{
		APIKey:       cfg.Provider.APIKey,
		BaseURL:      cfg.Provider.BaseURL,
		DefaultModel: cfg.Provider.DefaultModel,
		RefererURL:   cfg.Server.RefererURL,
		AppName:      cfg.Server.AppName,
		Diagnostics:  openai.NewLogDiagnostics(),
	})

	breakerConfig := openai.CircuitBreakerConfig{
		Enabled:          cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
	}
	opener := openai.NewBreakerOpener(client, breakerConfig)

	logrus.WithFields(logrus.Fields{
		"enabled":           breakerConfig.Enabled,
		"failure_threshold": breakerConfig.FailureThreshold,
		"timeout":           breakerConfig.Timeout,
	}).Info("Circuit breaker configured")

	var service *appchat.Service
	var router *httpiface.Router
	var dbManager *infrapersistence.DatabaseManager
	var recorder *infrapersistence.Recorder

	if cfg.Database.EnablePersistence {
		dbManager = infrapersistence.NewDatabaseManager()

		if err := dbManager.Connect(ctx, cfg.GetDatabaseDSN()); err != nil {
			logrus.WithError(err).Fatal("Failed to connect to database")
		}
		if err := dbManager.Migrate(); err != nil {
			logrus.WithError(err).Fatal("Failed to run database migrations")
		}

		recorder = infrapersistence.NewRecorder(dbManager.Repository(), cfg.Database.Workers, cfg.Database.BufferSize)
		if err := recorder.Start(ctx); err != nil {
			logrus.WithError(err).Fatal("Failed to start exchange recorder")
		}

		service = appchat.NewService(opener, recorder, cfg.Provider.DefaultModel)
		router = httpiface.NewRouterWithPersistence(service, cfg.Server.CorsOrigins, dbManager.Repository(), dbManager, recorder)

		logrus.Info("Persistence layer initialized successfully")
	} else {
		service = appchat.NewServiceWithoutTracking(opener, cfg.Provider.DefaultModel)
		router = httpiface.NewRouter(service, cfg.Server.CorsOrigins)

		logrus.Info("Running without persistence layer")
	}

	ginRouter := router.SetupRoutes()

	address := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           ginRouter,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write timeout: open-ended streamed responses must not be cut off.
		IdleTimeout: 60 * time.Second,
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		logrus.WithField("address", address).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-c
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	} else {
		logrus.Info("Server shutdown complete")
	}

	if cfg.Database.EnablePersistence {
		logrus.Info("Shutting down persistence layer...")

		if recorder != nil {
			if err := recorder.Stop(); err != nil {
				logrus.WithError(err).Error("Failed to stop exchange recorder")
			}
		}
		if dbManager != nil {
			if err := dbManager.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close database connection")
			}
		}

		logrus.Info("Persistence layer shutdown complete")
	}
}
