package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatdesk/internal/config"
	"chatdesk/internal/constants"
	"chatdesk/internal/retry"
	"chatdesk/internal/service"
	"chatdesk/internal/store"
	"chatdesk/internal/timeline"
	"chatdesk/internal/tracing"
	"chatdesk/pkg/backend"
	"chatdesk/pkg/push"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("ChatDesk %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting ChatDesk")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			if level > logrus.InfoLevel {
				level = logrus.InfoLevel
			}
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize the local state store with exponential backoff retry
	var db *store.Store
	backoffConfig := retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	}
	backoff := retry.NewBackoff(backoffConfig)

	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = store.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize state store: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize state store after retries: %w", err)
	}
	defer db.Close()

	backendClient := backend.NewClient(cfg.Backend.APIBaseURL, backend.Options{
		Timeout:            time.Duration(cfg.Backend.TimeoutSec) * time.Second,
		CircuitMaxFailures: cfg.Backend.CircuitMaxFailures,
		CircuitResetTime:   time.Duration(cfg.Backend.CircuitResetTimeSec) * time.Second,
	}, logger)

	classifier, err := timeline.NewClassifier(cfg.Display.Timezone, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize day classifier: %w", err)
	}
	logger.WithField("timezone", cfg.Display.Timezone).Info("Day banners pinned to display timezone")

	sessionManager := service.NewSessionManager(service.SessionDeps{
		Fetcher:    backendClient,
		Sender:     backendClient,
		Reader:     backendClient,
		State:      db,
		Classifier: classifier,
		Logger:     logger,
	}, backendClient)
	defer sessionManager.CloseAll()

	ctxWithVerbose := context.WithValue(ctx, service.VerboseContextKey, *verbose)

	if cfg.Push.Enabled {
		feed := push.NewFeed(cfg.Push.URL, logger)
		feed.Start(ctxWithVerbose)
		defer feed.Stop()

		consumer := service.NewPushConsumer(feed, sessionManager, logger)
		if err := consumer.Start(ctxWithVerbose); err != nil {
			logger.Warnf("Failed to start push consumer: %v", err)
		}
		defer consumer.Stop()
	} else {
		logger.Info("Push feed is disabled, timelines update on reload only")
	}

	server := NewServer(cfg, sessionManager, backendClient, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
