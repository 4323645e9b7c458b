package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"alertsync/internal/api"
	"alertsync/internal/config"
	"alertsync/internal/logging"
	"alertsync/internal/metrics"
	"alertsync/internal/models"
	"alertsync/internal/notify"
	"alertsync/internal/reconciler"
	"alertsync/internal/sink"
	"alertsync/internal/source"
	"alertsync/internal/store"
)

const usage = `Usage: alertsync [flags] <command>

Commands:
  sync    run one reconcile pass and exit (default)
  serve   run the webhook/Kafka ingest server

Exit codes for sync: 0 full success, 1 per-item failures, 2 configuration
or store-consistency failure.`

func main() {
	envFile := pflag.String("env-file", "", "path to a .env file to load")
	configFile := pflag.String("config", "", "path to a YAML policy config")
	logLevel := pflag.String("log-level", "", "log level override (debug, info, warn, error)")
	pflag.Parse()

	command := "sync"
	if args := pflag.Args(); len(args) > 0 {
		command = args[0]
	}

	// Load config
	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(2)
	}
	if *configFile != "" {
		if err := config.ApplyFile(&cfg, *configFile); err != nil {
			log.Printf("Failed to apply config file: %v", err)
			os.Exit(2)
		}
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Printf("Failed to init logger: %v", err)
		os.Exit(2)
	}

	switch command {
	case "sync":
		os.Exit(runSync(cfg, logger))
	case "serve":
		os.Exit(runServe(cfg, logger))
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

// runSync executes one reconcile pass: fetch the alert snapshot, reconcile
// against the mapping store, print the summary report.
func runSync(cfg config.Config, logger *logrus.Logger) int {
	ctx := context.Background()

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Failed to open mapping store: %v", err)
		return 2
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Errorf("Store close failed: %v", err)
		}
	}()

	src := source.NewZabbix(cfg, logger)
	snk := sink.NewPagerDuty(cfg, logger)
	rec := reconciler.New(st, snk, reconciler.Policy{ReopenClosed: cfg.Reconcile.ReopenClosed}, logger)
	m := metrics.New()

	alerts, err := src.FetchAlerts(ctx)
	if err != nil {
		logger.Errorf("Failed to fetch alerts: %v", err)
		return 1
	}

	report, recErr := rec.Reconcile(ctx, alerts)
	m.ObserveReport(report)

	// The summary goes to stdout for the orchestrator; details for failed
	// items follow for operator follow-up
	fmt.Println(report.Summary())
	if detail := report.Detail(); detail != "" {
		fmt.Print(detail)
	}

	if cfg.Metrics.PushgatewayURL != "" {
		if err := m.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
			logger.Errorf("Metrics push failed: %v", err)
		}
	}

	if len(report.Inconsistencies) > 0 && cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Errorf("Telegram init failed: %v", err)
		} else if err := tg.Inconsistencies(ctx, report.RunID, report.Inconsistencies); err != nil {
			logger.Errorf("Telegram notification failed: %v", err)
		}
	}

	if recErr != nil {
		logger.Errorf("Reconcile aborted: %v", recErr)
		return 2
	}
	return report.ExitCode()
}

// runServe starts the event-driven ingest: the HTTP webhook endpoint and,
// when a broker is configured, the Kafka alert feed.
func runServe(cfg config.Config, logger *logrus.Logger) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Failed to open mapping store: %v", err)
		return 2
	}
	defer st.Close()

	snk := sink.NewPagerDuty(cfg, logger)
	rec := reconciler.New(st, snk, reconciler.Policy{ReopenClosed: cfg.Reconcile.ReopenClosed}, logger)
	m := metrics.New()

	var feed *source.KafkaFeed
	if cfg.Kafka.Broker != "" && cfg.Kafka.Topic != "" {
		feed = source.NewKafkaFeed(cfg, logger)
		go feed.Run(ctx, func(ctx context.Context, alert models.Alert) error {
			report, err := rec.ReconcileOne(ctx, alert)
			if report != nil {
				m.ObserveReport(report)
			}
			return err
		})
	}

	router := api.NewRouter(st, rec, m, logger, cfg)
	server := &http.Server{Addr: cfg.API.Listen, Handler: router}

	go func() {
		logger.Infof("API started on %s", cfg.API.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API run failed: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	if feed != nil {
		if err := feed.Close(); err != nil {
			logger.Errorf("Kafka feed close failed: %v", err)
		}
	}
	logger.Info("Service stopped")
	return 0
}
