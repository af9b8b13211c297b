package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-provisioner/internal/app"
	"github.com/angelmondragon/storefront-provisioner/internal/cron"
	"github.com/angelmondragon/storefront-provisioner/pkg/config"
	"github.com/angelmondragon/storefront-provisioner/pkg/db"
	"github.com/angelmondragon/storefront-provisioner/pkg/instance"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
	"github.com/angelmondragon/storefront-provisioner/pkg/metrics"
	"github.com/angelmondragon/storefront-provisioner/pkg/migrate"
	"github.com/angelmondragon/storefront-provisioner/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Static:      map[string]string{"env": cfg.App.Env, "instance": instance.ID()},
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	store, err := app.NewDatastore(context.Background(), cfg.Tenant)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap tenant datastore", err)
		os.Exit(1)
	}
	services, err := app.NewServices(cfg, dbClient.DB(), store, metrics.NewProvisioningMetrics(prometheus.DefaultRegisterer), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create services", err)
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(context.Background()); err != nil {
			logg.Error(context.Background(), "error closing tenant datastore", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.LockName, lockEnv(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	if err := registerJobs(registry, cfg, services, logg); err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metricsCollector,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func registerJobs(registry *cron.Registry, cfg *config.Config, services *app.Services, logg *logger.Logger) error {
	domainJob, err := cron.NewDomainRecheckJob(cron.DomainRecheckJobParams{
		Logger:  logg,
		Domains: services.Domains,
		Limit:   cfg.Cron.DomainBatchSize,
	})
	if err != nil {
		return err
	}
	renewalJob, err := cron.NewSubscriptionRenewalJob(cron.SubscriptionRenewalJobParams{
		Logger:        logg,
		Subscriptions: services.Subscriptions,
		Limit:         cfg.Cron.RenewalBatchSize,
	})
	if err != nil {
		return err
	}
	for _, job := range []cron.Job{domainJob, renewalJob} {
		if err := registry.Register(job); err != nil {
			return err
		}
	}
	return nil
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
