package routes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/carbonmax/carbonmax/internal/auth"
	"github.com/carbonmax/carbonmax/internal/config"
	"github.com/carbonmax/carbonmax/internal/estimator"
	"github.com/carbonmax/carbonmax/internal/identity"
	"github.com/carbonmax/carbonmax/internal/ledger"
	"github.com/carbonmax/carbonmax/internal/listing"
	"github.com/carbonmax/carbonmax/internal/logging"
	"github.com/carbonmax/carbonmax/internal/market"
	"github.com/carbonmax/carbonmax/internal/metrics"
	"github.com/carbonmax/carbonmax/internal/middleware"
	"github.com/carbonmax/carbonmax/internal/notification"
	"github.com/carbonmax/carbonmax/internal/reference"
	"github.com/carbonmax/carbonmax/internal/reports"
	"github.com/carbonmax/carbonmax/internal/storage/memory"
	"github.com/carbonmax/carbonmax/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache are nil in
// development runs without backing services.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Events  notification.Publisher
	Broker  *notification.Broker
}

type stores struct {
	listings   listing.Repository
	wallets    wallet.Repository
	ledger     ledger.Ledger
	identities identity.Repository
}

// newStores picks PostgreSQL when a pool is configured and the shared memory store otherwise.
func newStores(d Deps) stores {
	if d.DB != nil {
		return stores{
			listings:   listing.NewPostgresRepository(d.DB),
			wallets:    wallet.NewPostgresRepository(d.DB),
			ledger:     ledger.NewPostgresLedger(d.DB),
			identities: identity.NewPostgresRepository(d.DB),
		}
	}
	d.Logger.Warn("no database configured, using in-memory storage")
	mem := memory.NewStore()
	return stores{
		listings:   mem.Listings(),
		wallets:    mem.Wallets(),
		ledger:     mem.Ledger(),
		identities: identity.NewMemoryRepository(),
	}
}

// Setup configures middlewares and all application routes.
func Setup(ctx context.Context, app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Events == nil {
		d.Events = notification.NewLoggerPublisher(d.Logger)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	app.Use(d.Metrics.Middleware())

	RegisterHealthRoutes(app, d)

	// Services
	tables := reference.Default()
	st := newStores(d)
	walletSvc := wallet.NewService(st.wallets, d.Events, logging.Component(d.Logger, "wallet"))
	listingSvc := listing.NewService(st.listings, tables, d.Events, d.Metrics, logging.Component(d.Logger, "listing"))
	marketSvc := market.NewService(st.ledger, d.Events, d.Metrics, logging.Component(d.Logger, "market"))
	identitySvc := identity.NewService(st.identities, walletSvc, tables, logging.Component(d.Logger, "identity"))
	authSvc := auth.NewService(d.Cfg, st.identities)
	reportSvc := reports.NewService(identitySvc, listingSvc, marketSvc)

	var prices estimator.PriceFeed = estimator.StaticPriceFeed{Price: d.Cfg.MarketPrice}
	var pricePublisher estimator.PricePublisher
	if d.Cache != nil {
		feed := estimator.NewRedisPriceFeed(d.Cache, d.Cfg.MarketPrice, d.Logger)
		prices, pricePublisher = feed, feed
	}
	estimateSvc := estimator.NewService(estimator.New(tables), prices, listingSvc, walletSvc, logging.Component(d.Logger, "estimator"))

	if d.Cfg.AdminEmail != "" {
		if _, err := identitySvc.EnsureAdmin(ctx, d.Cfg.AdminEmail, d.Cfg.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	// Handlers
	identityHandler := identity.NewHandler(identitySvc)
	authHandler := auth.NewHandler(identitySvc, authSvc)
	walletHandler := wallet.NewHandler(walletSvc)
	listingHandler := listing.NewHandler(listingSvc, d.Cfg.NearbyRadiusKm, identitySvc.Region)
	marketHandler := market.NewHandler(marketSvc)
	estimateHandler := estimator.NewHandler(estimateSvc, identitySvc.Region, pricePublisher)
	reportHandler := reports.NewHandler(reportSvc)

	idem := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	jwtmw := middleware.JWTAuth(authSvc)

	api := app.Group("/api/v1")
	RegisterPingRoute(api)
	RegisterReferenceRoutes(api, tables)
	api.Get("/market/price", estimateHandler.Price)

	// Public routes
	RegisterIdentityRoutes(api, identityHandler, idem)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttemptsPerMinute), jwtmw)

	// Protected routes; idempotency runs after authentication so keys are scoped per account.
	protected := api.Group("", jwtmw, idem)
	RegisterAccountRoutes(protected, identityHandler, walletHandler)
	protected.Get("/events", notification.Stream(d.Broker, d.Logger))
	RegisterEstimateRoutes(protected, estimateHandler)
	RegisterMarketRoutes(protected, listingHandler, marketHandler)
	RegisterAdminRoutes(protected.Group("/admin", middleware.RequireRole(string(identity.RoleAdmin))),
		listingHandler, walletHandler, estimateHandler, reportHandler)

	return nil
}
