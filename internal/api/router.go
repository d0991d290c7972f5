package api

import (
	"net/http"

	"github.com/ayo6706/coinwallet/internal/api/handler"
	"github.com/ayo6706/coinwallet/internal/api/middleware"
	"github.com/ayo6706/coinwallet/internal/api/spec"
	"github.com/ayo6706/coinwallet/internal/config"
	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/idempotency"
	"github.com/ayo6706/coinwallet/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services bundles the wired service layer handed to the router.
type Services struct {
	Accounts     *service.AccountService
	Ledger       *service.LedgerService
	Rewards      *service.RewardService
	KYC          *service.KYCService
	Withdrawals  *service.WithdrawalService
	Resolver     *service.ResolverService
	Webhooks     *service.WebhookService
	Conservation *service.ConservationService
}

type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *pgxpool.Pool
	redis  redis.Cmdable
	idem   *idempotency.Store
	svcs   Services
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, redisClient redis.Cmdable, idem *idempotency.Store, svcs Services) *Router {
	return &Router{cfg: cfg, logger: logger, db: db, redis: redisClient, idem: idem, svcs: svcs}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(chiMiddleware.RealIP)

	authHandler := handler.NewAuthHandler(api.svcs.Accounts, api.svcs.Rewards, api.cfg.JWTIssuer, api.cfg.JWTAudience)
	accountHandler := handler.NewAccountHandler(api.svcs.Accounts, api.svcs.Ledger, api.svcs.Resolver)
	transferHandler := handler.NewTransferHandler(api.svcs.Ledger, api.svcs.Resolver)
	rewardHandler := handler.NewRewardHandler(api.svcs.Rewards)
	kycHandler := handler.NewKYCHandler(api.svcs.KYC)
	withdrawalHandler := handler.NewWithdrawalHandler(api.svcs.Withdrawals)
	resolverHandler := handler.NewResolverHandler(api.svcs.Resolver)
	webhookHandler := handler.NewWebhookHandler(api.svcs.Webhooks)
	conservationHandler := handler.NewConservationHandler(api.svcs.Conservation)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/accounts", accountHandler.Signup)
		r.Post("/v1/webhooks/activation", webhookHandler.HandleActivation)
		r.Post("/v1/webhooks/payout-result", webhookHandler.HandlePayoutResult)
	})

	// Authenticated user routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/accounts/me", accountHandler.Me)
		r.Get("/v1/accounts/me/statement", accountHandler.Statement)
		r.Get("/v1/accounts/me/qr", accountHandler.MyQR)

		r.Post("/v1/resolve/qr", resolverHandler.ResolveQR)
		r.Get("/v1/resolve", resolverHandler.ResolveManual)

		r.Get("/v1/services", rewardHandler.ListServices)

		r.Post("/v1/kyc", kycHandler.Submit)
		r.Get("/v1/kyc", kycHandler.Mine)

		idem := middleware.IdempotencyMiddleware(api.idem, api.logger)
		r.With(idem).Post("/v1/transfers", transferHandler.Create)
		r.With(idem).Post("/v1/redeem", rewardHandler.Redeem)
		r.With(idem).Post("/v1/withdrawals", withdrawalHandler.Request)
		r.Get("/v1/withdrawals", withdrawalHandler.List)
		r.Post("/v1/withdrawals/{id}/cancel", withdrawalHandler.Cancel)
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.RequireRole(domain.RoleAdmin))

		r.Get("/v1/admin/accounts/{id}", accountHandler.Get)
		r.Put("/v1/admin/accounts/{id}/blocked", accountHandler.SetBlocked)
		r.Get("/v1/admin/kyc/pending", kycHandler.Pending)
		r.Post("/v1/admin/kyc/{accountID}/review", kycHandler.Review)
		r.Post("/v1/admin/withdrawals/{id}/approve", withdrawalHandler.Approve)
		r.Post("/v1/admin/withdrawals/{id}/fail", withdrawalHandler.Fail)
		r.Post("/v1/admin/services", rewardHandler.CreateService)
		r.Put("/v1/admin/services/{id}", rewardHandler.UpdateService)
		r.Get("/v1/admin/conservation", conservationHandler.Report)
	})

	// Operational surface
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusMovedPermanently)
	})

	return r
}
