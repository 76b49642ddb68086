// main wires high-level dependencies, exposes the HTTP router, and runs the
// background schedulers. Business logic lives in internal services packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bitacora/internal/alert"
	alertredis "bitacora/internal/alert/store/redis"
	"bitacora/internal/audit"
	"bitacora/internal/audit/ingest"
	auditservice "bitacora/internal/audit/service"
	"bitacora/internal/audit/store"
	pgstore "bitacora/internal/audit/store/postgres"
	"bitacora/internal/authz"
	jwttoken "bitacora/internal/jwt_token"
	"bitacora/internal/platform/config"
	"bitacora/internal/platform/httpserver"
	"bitacora/internal/platform/kafka"
	"bitacora/internal/platform/logger"
	"bitacora/internal/platform/metrics"
	"bitacora/internal/platform/postgres"
	"bitacora/internal/platform/redis"
	"bitacora/internal/platform/scheduler"
	"bitacora/internal/report"
	"bitacora/internal/retention"
	retentionpg "bitacora/internal/retention/store/postgres"
	httptransport "bitacora/internal/transport/http"
)

// ingestProxy breaks the construction cycle between the alert engine (which
// records security alerts through the ingestor) and the ingestor (which
// evaluates inline rules through the alert engine).
type ingestProxy struct {
	svc *ingest.Service
}

func (p *ingestProxy) Record(ctx context.Context, d audit.Descriptor) (audit.Event, error) {
	return p.svc.Record(ctx, d)
}

func main() {
	log := logger.New(logger.LevelFromEnv())
	slog.SetDefault(log)

	if err := run(log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Event store: Postgres when configured, in-memory otherwise.
	var events store.EventStore
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		events = pgstore.New(db)
		log.Info("using postgres event store")
	} else {
		events = store.NewInMemoryEventStore()
		log.Info("using in-memory event store")
	}

	// Alert rules: mirrored to Redis when configured.
	var ruleStore alert.RuleStore
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		ruleStore = alertredis.New(redisClient.Client)
		log.Info("using redis alert rule store")
	} else {
		ruleStore = alert.NewInMemoryRuleStore()
	}

	// Retention policies follow the event store: durable when Postgres is up.
	var policyStore retention.PolicyStore
	if db != nil {
		policyStore = retentionpg.New(db)
	} else {
		policyStore = retention.NewInMemoryPolicyStore()
	}
	registry, err := retention.NewRegistry(policyStore,
		retention.WithRegistryLogger(log),
	)
	if err != nil {
		return err
	}
	if err := registry.Load(ctx); err != nil {
		return err
	}

	// Notifications: fire-and-forget Kafka producer when brokers are set.
	var notifier *kafka.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		notifier, err = kafka.NewNotifier(cfg.Kafka.Brokers, cfg.Kafka.AlertTopic, cfg.Kafka.EventsTopic,
			kafka.WithLogger(log),
			kafka.WithMetrics(m),
		)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := notifier.Close(closeCtx); err != nil {
				log.Warn("kafka notifier close failed", "error", err)
			}
		}()
	}

	proxy := &ingestProxy{}
	alertOpts := []alert.Option{
		alert.WithLogger(log),
		alert.WithMetrics(m),
		alert.WithRecorder(proxy),
	}
	if notifier != nil {
		alertOpts = append(alertOpts, alert.WithNotifier(notifier))
	}
	alerts, err := alert.NewEngine(ruleStore, events, alertOpts...)
	if err != nil {
		return err
	}
	if err := alerts.Load(ctx); err != nil {
		return err
	}

	ingestOpts := []ingest.Option{
		ingest.WithLogger(log),
		ingest.WithMetrics(m),
		ingest.WithAlerts(alerts),
	}
	if notifier != nil {
		ingestOpts = append(ingestOpts, ingest.WithNotifier(notifier))
	}
	ingestor, err := ingest.New(events, registry, ingestOpts...)
	if err != nil {
		return err
	}
	proxy.svc = ingestor

	archiver, err := retention.NewArchiver(events, registry,
		retention.WithArchiverLogger(log),
		retention.WithArchiverMetrics(m),
		retention.WithArchiverRecorder(ingestor),
	)
	if err != nil {
		return err
	}

	authorizer := authz.Claims{}

	auditSvc, err := auditservice.New(events, authorizer,
		auditservice.WithLogger(log),
		auditservice.WithMetrics(m),
		auditservice.WithRecorder(ingestor),
		auditservice.WithArchiver(archiver),
	)
	if err != nil {
		return err
	}

	reportOpts := []report.Option{
		report.WithLogger(log),
		report.WithMetrics(m),
		report.WithRecorder(ingestor),
	}
	if len(cfg.ExportKey) > 0 {
		reportOpts = append(reportOpts, report.WithExportKey(cfg.ExportKey))
	}
	reports, err := report.NewEngine(events, authorizer, reportOpts...)
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, "bitacora", "bitacora-api")
	validator := jwttoken.NewJWTServiceAdapter(jwtService)

	handler := httptransport.NewHandler(ingestor, auditSvc, alerts, registry, reports, authorizer, log)
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler, validator))

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting audit server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		return scheduler.New("alert-evaluation", cfg.AlertInterval, func(ctx context.Context) error {
			alerts.EvaluateWindowed(ctx)
			return nil
		}, log).Run(groupCtx)
	})

	group.Go(func() error {
		return scheduler.New("archival", cfg.ArchivalInterval, func(ctx context.Context) error {
			_, err := archiver.Run(ctx)
			return err
		}, log).Run(groupCtx)
	})

	return group.Wait()
}
