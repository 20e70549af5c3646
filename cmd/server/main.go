package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-be/internal/api"
	"storefront-be/internal/cart"
	"storefront-be/internal/config"
	"storefront-be/internal/db"
	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"
	"storefront-be/internal/middleware"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/payment/webhook"
	"storefront-be/internal/pricing"
	"storefront-be/internal/product"
	"storefront-be/internal/user"
	"storefront-be/internal/utils"

	"go.uber.org/zap"
)

const (
	shutdownTimeout       = 10 * time.Second
	limiterCleanupEvery   = time.Minute
	sessionSweepEvery     = time.Minute
	readHeaderTimeout     = 10 * time.Second
	productionEnvironment = "production"
)

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newServer(cfg, database)
	go app.limiter.Cleanup(ctx, limiterCleanupEvery)
	go sweepSessions(ctx, app.orders, sessionSweepEvery)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("HTTP server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		errCh <- startServerFunc(srv)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// server is the fully wired HTTP handler plus the pieces that need
// background workers.
type server struct {
	http.Handler
	limiter *middleware.RateLimiter
	orders  order.Service
}

func newServer(cfg *config.Config, database *sql.DB) *server {
	rates := pricing.Rates{
		TaxRate:               cfg.TaxRate,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingCost:          cfg.ShippingCost,
	}

	productRepo := product.NewRepository(database)
	productSvc := product.NewService(productRepo)

	userRepo := user.NewRepository(database)
	userSvc := user.NewService(userRepo, cfg.JWTSecret)

	cartRepo := cart.NewRepository(database)
	cartSvc := cart.NewService(cartRepo, productRepo, rates)

	gateways := newGatewayRegistry(cfg)
	paymentRepo := payment.NewRepository(database)

	orderRepo := order.NewRepository(database)
	orderSvc := order.NewService(orderRepo, cartSvc, gateways, paymentRepo, cfg.Currency, cfg.CheckoutSessionTTL)

	apiHandler := api.NewHandler(userSvc, productSvc, cartSvc, orderSvc, cfg.AppEnv == productionEnvironment)
	webhookHandler := webhook.NewHandler(orderSvc, gateways, paymentRepo)

	limiter := middleware.NewRateLimiter(cfg.InternalSecretKey)

	var h http.Handler = setupRouter(apiHandler, webhookHandler)
	h = middleware.LoggingMiddleware(h)
	h = limiter.Middleware(h)
	h = middleware.AuthMiddleware(cfg.JWTSecret)(h)
	h = middleware.CORS(cfg.CORSAllowedOrigin)(h)
	h = logger.RequestIDMiddleware(h)

	return &server{Handler: h, limiter: limiter, orders: orderSvc}
}

// newGatewayRegistry registers every provider that has credentials.
func newGatewayRegistry(cfg *config.Config) *payment.Registry {
	var gateways []payment.Gateway
	if cfg.StripeSecretKey != "" {
		gateways = append(gateways, payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret))
	}
	if cfg.PaypalClientID != "" && cfg.PaypalClientSecret != "" {
		gateways = append(gateways, payment.NewPaypalGateway(
			cfg.PaypalClientID,
			cfg.PaypalClientSecret,
			cfg.PaypalWebhookID,
			cfg.PaypalBaseURL,
		))
	}
	if len(gateways) == 0 {
		logger.L().Warn("no payment provider configured, checkout is disabled")
	}
	return payment.NewRegistry(gateways...)
}

func setupRouter(apiHandler *api.Handler, webhookHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"metrics": metrics.Snapshot(),
		})
	})
	mux.Handle("POST /webhook/{provider}", webhookHandler)
	apiHandler.Register(mux)

	return mux
}

// sweepSessions expires abandoned checkout sessions until ctx is done.
func sweepSessions(ctx context.Context, orders order.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := orders.ExpireStaleSessions(ctx)
			if err != nil {
				logger.L().Error("failed to expire checkout sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.L().Info("expired checkout sessions", zap.Int64("count", n))
			}
		}
	}
}
