package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/liamashdown/coordwatch/internal/alerts"
	"github.com/liamashdown/coordwatch/internal/config"
	"github.com/liamashdown/coordwatch/internal/coordination"
	"github.com/liamashdown/coordwatch/internal/polymarket/dataapi"
	"github.com/liamashdown/coordwatch/internal/polymarket/gammaapi"
	"github.com/liamashdown/coordwatch/internal/processor"
	"github.com/liamashdown/coordwatch/internal/scheduler"
	"github.com/liamashdown/coordwatch/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	log.Info("Starting coordwatch service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	log.WithFields(logrus.Fields{
		"environment":    cfg.Environment,
		"min_trade_usd":  cfg.MinTradeUSD,
		"poll_schedule":  cfg.PollSchedule,
		"coord_window":   cfg.CoordWindow,
		"min_similarity": cfg.CoordMinSimilarity,
		"alert_mode":     cfg.AlertMode,
		"alert_min_risk": cfg.AlertMinRisk,
	}).Info("Configuration loaded")

	// Initialize database
	db, err := storage.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("Failed to run database migrations")
	}

	log.Info("Database migrations complete")

	// Initialize API clients
	dataClient := dataapi.NewClient(cfg)
	gammaClient := gammaapi.NewClient(cfg)

	detector, err := coordination.InitDefault(cfg.Detector(), log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize detector")
	}

	alertSender := createAlertSender(cfg, log)
	log.WithField("alert_mode", cfg.AlertMode).Info("Alert sender initialized")

	proc := processor.New(cfg, db, dataClient, gammaClient, detector, alertSender, log)
	defer proc.Close()

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := proc.WarmStart(ctx); err != nil {
		log.WithError(err).Error("Failed to warm start detector")
	}

	var servers sync.WaitGroup
	servers.Add(2)
	go func() {
		defer servers.Done()
		serve(ctx, "health", cfg.HealthPort, newHealthMux(detector, db, log), log)
	}()
	go func() {
		defer servers.Done()
		serve(ctx, "metrics", cfg.MetricsPort, newMetricsMux(), log)
	}()

	runner := scheduler.New(ctx, log)
	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"poll", cfg.PollSchedule, logErrors(log, "Error processing trades", proc.ProcessTrades)},
		{"resolve", cfg.ResolveSchedule, logErrors(log, "Error resolving outcomes", proc.ResolveOutcomes)},
		{"prune", cfg.PruneSchedule, proc.PruneCache},
		{"retention", cfg.RetentionSchedule, logErrors(log, "Error applying retention", proc.RetireStaleWallets)},
	}
	for _, job := range jobs {
		if err := runner.Add(job.name, job.spec, job.run); err != nil {
			log.WithError(err).WithField("job", job.name).Fatal("Failed to schedule job")
		}
	}

	// Process immediately on startup
	if err := proc.ProcessTrades(ctx); err != nil {
		log.WithError(err).Error("Error processing trades")
	}

	runner.Start()
	log.WithField("jobs", runner.Jobs()).Info("Scheduler started")

	<-ctx.Done()
	log.Info("Received shutdown signal")

	runner.Stop()
	servers.Wait()
	log.Info("Graceful shutdown complete")
}

func logErrors(log *logrus.Logger, msg string, job func(context.Context) error) func(context.Context) {
	return func(ctx context.Context) {
		if err := job(ctx); err != nil {
			log.WithError(err).Error(msg)
		}
	}
}

func createAlertSender(cfg *config.Config, log *logrus.Logger) alerts.Sender {
	var senders []alerts.Sender
	for _, mode := range cfg.AlertModes() {
		switch mode {
		case "log":
			senders = append(senders, alerts.NewLogSender(log))
		case "discord":
			senders = append(senders, alerts.NewDiscordSender(cfg.DiscordWebURL))
		case "smtp":
			senders = append(senders, alerts.NewSMTPSender(
				cfg.SMTPHost,
				cfg.SMTPPort,
				cfg.SMTPUser,
				cfg.SMTPPassword,
				cfg.SMTPFrom,
				cfg.SMTPTo,
			))
		default:
			log.WithField("mode", mode).Warn("Unknown alert mode, skipping")
		}
	}

	switch len(senders) {
	case 0:
		log.Warn("No valid alert senders configured, using log")
		return alerts.NewLogSender(log)
	case 1:
		return senders[0]
	default:
		return alerts.NewMultiSender(senders...)
	}
}
