// Command server runs the deployment compliance gate: it evaluates security
// scan evidence against environment policy through the policy engine,
// persists the decision with its audit trail, and publishes decision events.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"golang.org/x/sync/errgroup"

	apphandler "gatekeeper/internal/application/handler"
	appmetrics "gatekeeper/internal/application/metrics"
	appservice "gatekeeper/internal/application/service"
	appstore "gatekeeper/internal/application/store"
	audithandler "gatekeeper/internal/auditlog/handler"
	auditstore "gatekeeper/internal/auditlog/store"
	"gatekeeper/internal/evaluation"
	"gatekeeper/internal/evaluation/engine"
	evalhandler "gatekeeper/internal/evaluation/handler"
	evalmetrics "gatekeeper/internal/evaluation/metrics"
	evalstore "gatekeeper/internal/evaluation/store"
	"gatekeeper/internal/notify"
	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/platform/httpserver"
	"gatekeeper/internal/platform/logger"
	platformmetrics "gatekeeper/internal/platform/metrics"
	"gatekeeper/internal/platform/redis"
	httptransport "gatekeeper/internal/transport/http"
	"gatekeeper/migrations"
	"gatekeeper/pkg/platform/circuit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	cache, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	// Application registry. The redis decorator only joins when configured.
	var applications appstore.Store = appstore.NewPostgres(db)
	if cache != nil {
		applications = appstore.NewCached(applications, cache.Client, cfg.Redis.CacheTTL, log)
	}
	registry := appservice.New(applications,
		appservice.WithLogger(log),
		appservice.WithMetrics(appmetrics.New()),
	)

	// Decision notifications: Kafka when brokers are configured, otherwise
	// decisions only land in the log stream.
	var notifier notify.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaNotifier, err := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	} else {
		notifier = notify.NewLog(log)
	}

	// Evaluation pipeline.
	evaluations := evalstore.NewPostgres(db)
	auditLogs := auditstore.NewPostgres(db)
	opa := engine.NewOPA(cfg.Engine.URL,
		engine.WithTimeout(cfg.Engine.Timeout),
		engine.WithLogger(log),
		engine.WithBreaker(circuit.New("policy-engine")),
	)
	gate := evaluation.NewService(applications, evaluations, auditLogs, opa, newEvaluationPostgresTx(db),
		evaluation.WithLogger(log),
		evaluation.WithMetrics(evalmetrics.New()),
		evaluation.WithNotifier(notifier),
		evaluation.WithFailOpen(cfg.Engine.FailOpen),
	)

	transportMetrics := platformmetrics.New()
	router := httptransport.NewRouter(httptransport.Deps{
		Evaluation:  evalhandler.New(gate, log, transportMetrics),
		Application: apphandler.New(registry, log, transportMetrics),
		AuditLog:    audithandler.New(auditLogs, log, transportMetrics),
		Database:    httptransport.HealthFunc(db.PingContext),
		Cache:       cacheHealth(cache),
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gatekeeper listening", "addr", cfg.Addr, "fail_open", cfg.Engine.FailOpen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openDatabase connects and applies pending migrations.
func openDatabase(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.Up(db, "."); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func cacheHealth(cache *redis.Client) httptransport.HealthChecker {
	if cache == nil {
		return nil
	}
	return cache
}
