package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-provisioner/api/controllers"
	"github.com/angelmondragon/storefront-provisioner/api/middleware"
	"github.com/angelmondragon/storefront-provisioner/pkg/config"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-provisioner/pkg/redis"
)

// Params carries everything the router wires into its controllers.
type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      controllers.Pinger
	Redis   *pkgredis.Client
	Metrics http.Handler
	// TenantStore, when set, is included in the readiness checks.
	TenantStore controllers.Pinger

	Plans         controllers.PlanService
	Merchants     controllers.MerchantService
	Subscriptions controllers.SubscriptionService
	Databases     controllers.TenantDatabaseService
	Deployments   controllers.DeploymentService
	Domains       controllers.DomainService
	Pipeline      controllers.Provisioner
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	// A typed nil *Client must not reach the middleware as a non-nil interface.
	var idempotencyStore pkgredis.IdempotencyStore
	var limiter middleware.WindowLimiter
	readiness := map[string]controllers.Pinger{"database": p.DB}
	if p.Redis != nil {
		idempotencyStore = p.Redis
		limiter = p.Redis
		readiness["redis"] = p.Redis
	}
	if p.TenantStore != nil {
		readiness["tenant_store"] = p.TenantStore
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	verifyPolicy := middleware.NewRateLimitPolicy(
		"domain-verify",
		cfg.Domain.VerifyWindow,
		cfg.Domain.VerifyLimit,
		middleware.ByURLParam("domainId"),
	)

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Admin.APIToken, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/features", controllers.FeatureCatalog(p.Plans))

		r.Route("/plans", func(r chi.Router) {
			r.Post("/", controllers.PlanCreate(p.Plans, logg))
			r.Get("/", controllers.PlanList(p.Plans, logg))
			r.Get("/{planId}", controllers.PlanGet(p.Plans, logg))
			r.Patch("/{planId}", controllers.PlanUpdate(p.Plans, logg))
			r.Delete("/{planId}", controllers.PlanDelete(p.Plans, logg))
		})

		r.Route("/merchants", func(r chi.Router) {
			r.Post("/", controllers.MerchantCreate(p.Merchants, logg))
			r.Get("/", controllers.MerchantList(p.Merchants, logg))

			r.Route("/{merchantId}", func(r chi.Router) {
				r.Get("/", controllers.MerchantGet(p.Merchants, logg))
				r.Patch("/settings", controllers.MerchantUpdateSettings(p.Merchants, logg))
				r.Post("/status", controllers.MerchantUpdateStatus(p.Merchants, logg))

				r.Post("/subscription", controllers.SubscriptionBind(p.Subscriptions, logg))
				r.Get("/subscription", controllers.SubscriptionGet(p.Subscriptions, logg))
				r.Post("/subscription/cancel", controllers.SubscriptionCancel(p.Subscriptions, logg))
				r.Post("/subscription/renew", controllers.SubscriptionRenew(p.Subscriptions, logg))

				r.Post("/database", controllers.DatabaseProvision(p.Databases, logg))
				r.Get("/database", controllers.DatabaseGet(p.Databases, logg))

				r.Post("/deployment", controllers.DeploymentRegister(p.Deployments, p.Databases, logg))
				r.Get("/deployment", controllers.DeploymentGet(p.Deployments, logg))

				r.Post("/domain", controllers.DomainRequest(p.Domains, logg))
				r.Get("/domain", controllers.DomainGetByMerchant(p.Domains, logg))

				r.Post("/provision", controllers.MerchantProvision(p.Pipeline, logg))
			})
		})

		r.Post("/deployments/{deploymentId}/redeploy", controllers.DeploymentRedeploy(p.Deployments, logg))

		r.Route("/domains/{domainId}", func(r chi.Router) {
			r.Get("/", controllers.DomainGet(p.Domains, logg))
			r.Delete("/", controllers.DomainRemove(p.Domains, logg))
			r.With(middleware.RateLimit(verifyPolicy, limiter, logg)).Post("/verify", controllers.DomainVerify(p.Domains, logg))
		})
	})

	return r
}
