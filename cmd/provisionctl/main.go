// Command provisionctl drives merchant provisioning from an operator shell.
//
// Usage:
//
//	provisionctl provision --merchant <id> --plan <plan-id> --cycle 1 [--domain shop.example.com]
//	provisionctl status --merchant <id>
//	provisionctl verify-domain --id <domain-id>
//	provisionctl renew --merchant <id>
//	provisionctl list-plans [--all]
//	provisionctl list-databases --status error [--limit 50]
//	provisionctl list-domains [--limit 50]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-provisioner/internal/app"
	"github.com/angelmondragon/storefront-provisioner/pkg/config"
	"github.com/angelmondragon/storefront-provisioner/pkg/db"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
	"github.com/angelmondragon/storefront-provisioner/pkg/metrics"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "help", "--help", "-h":
		printUsage()
		return
	}
	if !knownCommand(os.Args[1]) {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "provisionctl"

	// Logs go to stderr so stdout stays machine readable.
	logg := logger.New(logger.Options{
		ServiceName: "provisionctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	store, err := app.NewDatastore(ctx, cfg.Tenant)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening tenant datastore: %v\n", err)
		os.Exit(1)
	}
	services, err := app.NewServices(cfg, dbClient.DB(), store, metrics.NewProvisioningMetrics(nil), logg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating services: %v\n", err)
		os.Exit(1)
	}
	defer services.Close(context.WithoutCancel(ctx))

	c := &cli{
		out:           os.Stdout,
		pipeline:      services.Pipeline,
		plans:         services.Plans,
		subscriptions: services.Subscriptions,
		databases:     services.Databases,
		deployments:   services.Deployments,
		domains:       services.Domains,
	}
	if err := c.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Storefront provisioning CLI

Usage:
  provisionctl <command> [options]

Commands:
  provision       Run the provisioning pipeline for a merchant
  status          Show subscription, database, deployment and domain of a merchant
  verify-domain   Re-run DNS verification for a domain
  renew           Advance a merchant subscription by one period
  list-plans      List active plans (--all includes inactive ones)
  list-databases  List tenant databases in a given status
  list-domains    List domains still waiting for verification
  help            Show this help

Environment Variables:
  PROVISIONER_APP_ENV           Environment name (required)
  PROVISIONER_DB_DSN            Control-plane database connection string
  PROVISIONER_TENANT_ENGINE     postgres or mongo
  PROVISIONER_TENANT_ADMIN_DSN  Admin connection used to create tenant databases
  PROVISIONER_TENANT_MONGO_URI  MongoDB connection when the engine is mongo

Examples:
  provisionctl provision --merchant <uuid> --plan growth --cycle 12 --domain shop.example.com
  provisionctl status --merchant <uuid>
  provisionctl list-databases --status error`)
}
