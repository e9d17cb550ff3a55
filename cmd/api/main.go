package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return fmt.Errorf("bootstrap stripe: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps, err := wire(cfg, logg, dbClient, redisClient, stripeClient, promRegistry)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"instance":    instance.GetID(),
		"orders_mode": cfg.Orders.Mode,
		"stripe_env":  stripeClient.Environment(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promRegistry,
			deps.sessions,
			deps.auth,
			deps.catalog,
			deps.carts,
			deps.checkout,
			deps.orders,
			deps.payments,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logg.Info(ctx, "api server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type services struct {
	sessions *session.Manager
	auth     auth.Service
	catalog  *products.Repository
	carts    cart.Service
	checkout checkout.Service
	orders   orders.Service
	payments payments.Service
}

// wire builds the domain services on top of the shared clients.
func wire(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	stripeClient *pkgstripe.Client,
	reg prometheus.Registerer,
) (*services, error) {
	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}

	cartTTL := cfg.Cart.TTL
	if cartTTL <= 0 {
		cartTTL = sessionManager.TTL()
	}
	cartRepo, err := cart.NewRepository(redisClient, redisClient, cartTTL)
	if err != nil {
		return nil, fmt.Errorf("cart repository: %w", err)
	}
	productRepo := products.NewRepository(dbClient.DB())
	cartService, err := cart.NewService(cartRepo, productRepo)
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		Carts:          cartService,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersService, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outboxService, products.NewInventory(productRepo))
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	var submitter orders.Submitter = orders.NewLocalClient(ordersService)
	if cfg.Orders.IsRemote() {
		submitter, err = orders.NewHTTPClient(cfg.Orders.BaseURL, cfg.Orders.Timeout,
			orders.WithBearerToken(middleware.AccessTokenFromContext))
		if err != nil {
			return nil, fmt.Errorf("order submission client: %w", err)
		}
	}

	stripeGateway, err := payments.NewStripeGateway(payments.NewStripeIntentClient(stripeClient))
	if err != nil {
		return nil, fmt.Errorf("stripe gateway: %w", err)
	}
	gateway, err := payments.NewIdempotentGateway(stripeGateway, redisClient, cfg.Eventing.PaymentIdempotencyTTL, logg)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}
	paymentsService, err := payments.NewService(gateway, ordersService, logg)
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Repo:    checkout.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Carts:   cartService,
		Orders:  submitter,
		Gateway: gateway,
		Outbox:  outboxService,
		Metrics: metrics.NewCheckoutMetrics(reg),
		Logger:  logg,
		Config:  cfg.Checkout,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	return &services{
		sessions: sessionManager,
		auth:     authService,
		catalog:  productRepo,
		carts:    cartService,
		checkout: checkoutService,
		orders:   ordersService,
		payments: paymentsService,
	}, nil
}
