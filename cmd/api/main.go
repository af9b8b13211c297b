package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-provisioner/api/routes"
	"github.com/angelmondragon/storefront-provisioner/internal/app"
	"github.com/angelmondragon/storefront-provisioner/pkg/config"
	"github.com/angelmondragon/storefront-provisioner/pkg/db"
	"github.com/angelmondragon/storefront-provisioner/pkg/instance"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
	"github.com/angelmondragon/storefront-provisioner/pkg/metrics"
	"github.com/angelmondragon/storefront-provisioner/pkg/migrate"
	"github.com/angelmondragon/storefront-provisioner/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Static:      map[string]string{"env": cfg.App.Env, "instance": instance.ID()},
	})

	if cfg.App.IsProd() && cfg.Admin.APIToken == "" {
		logg.Error(context.Background(), "admin api token is required in production", errors.New(config.EnvAdminAPIToken+" is empty"))
		os.Exit(1)
	}

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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"addr":         addr,
		"tenantEngine": cfg.Tenant.Engine,
		"deployTarget": cfg.Deploy.Provider,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Metrics:       promhttp.Handler(),
			TenantStore:   services.TenantStore,
			Plans:         services.Plans,
			Merchants:     services.Merchants,
			Subscriptions: services.Subscriptions,
			Databases:     services.Databases,
			Deployments:   services.Deployments,
			Domains:       services.Domains,
			Pipeline:      services.Pipeline,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shutting down gracefully")
	}
}
