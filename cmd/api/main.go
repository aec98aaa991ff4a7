package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	limitermw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/anurag-sv/bazaar-api/internal/auth"
	"github.com/anurag-sv/bazaar-api/internal/cart"
	"github.com/anurag-sv/bazaar-api/internal/catalog"
	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/config"
	"github.com/anurag-sv/bazaar-api/internal/coupon"
	"github.com/anurag-sv/bazaar-api/internal/db"
	"github.com/anurag-sv/bazaar-api/internal/health"
	"github.com/anurag-sv/bazaar-api/internal/lock"
	"github.com/anurag-sv/bazaar-api/internal/notify"
	"github.com/anurag-sv/bazaar-api/internal/obs"
	"github.com/anurag-sv/bazaar-api/internal/order"
	"github.com/anurag-sv/bazaar-api/internal/ratelimit"
	"github.com/anurag-sv/bazaar-api/internal/store"
	"github.com/anurag-sv/bazaar-api/internal/upload"
)

func main() {
	logger := obs.NewLogger(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName: "bazaar-api",
			Endpoint:    endpoint,
			Environment: cfg.AppEnv,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("init tracing")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Warn().Err(err).Msg("instrument redis tracing")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	})
	defer asynqClient.Close()

	validate := validator.New()
	queries := store.New(pool)
	httpMetrics := obs.NewHTTPMetrics("bazaar", nil, nil)
	orderMetrics := obs.NewOrderMetrics("bazaar", nil)
	enqueuer := &notify.Enqueuer{Client: asynqClient, Log: logger}

	tokens := &auth.TokenIssuer{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.AccessTokenTTL,
	}
	authSvc := &auth.Service{
		Users:       queries,
		Redis:       rdb,
		Limiter:     ratelimit.NewSliding(rdb, cfg.OTPRequestWindow, int64(cfg.OTPRequestMax)),
		Sender:      enqueuer,
		Tokens:      tokens,
		Log:         logger,
		CodeLength:  cfg.OTPLength,
		CodeTTL:     cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
	}
	authHandler := &auth.Handler{Svc: authSvc, Validate: validate}
	authMW := &auth.Middleware{Tokens: tokens}

	catalogSvc := &catalog.Service{Q: queries, Cache: rdb, TTL: cfg.CatalogCacheTTL, Log: logger}
	catalogHandler := &catalog.Handler{Svc: catalogSvc, Validate: validate, PerPage: cfg.CatalogDefaultLimit}

	cartSvc := &cart.Service{Q: queries, Log: logger}
	cartHandler := &cart.Handler{Svc: cartSvc, Validate: validate}

	couponSvc := &coupon.Service{Q: queries, Log: logger}
	couponHandler := &coupon.Handler{Svc: couponSvc, Validate: validate}

	orderSvc := &order.Service{
		Q:       queries,
		Tx:      order.PGXRunner{Pool: pool},
		Locker:  &lock.Redis{Client: rdb, TTL: cfg.CheckoutLockTTL, Log: logger},
		Notify:  enqueuer,
		Metrics: orderMetrics,
		Log:     logger,
	}
	orderHandler := &order.Handler{Svc: orderSvc, Validate: validate, PerPage: cfg.CatalogDefaultLimit}

	uploadHandler := &upload.Handler{
		Storage: upload.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket),
		Log:     logger,
	}
	healthHandler := &health.Handler{Pool: pool, Redis: rdb}
	idem := common.Idem{R: rdb, TTL: cfg.IdempotencyTTL}

	limiterStore, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "limiter"})
	if err != nil {
		logger.Fatal().Err(err).Msg("init rate limit store")
	}
	globalLimiter := limitermw.NewMiddleware(limiter.New(limiterStore, limiter.Rate{
		Period: cfg.RateLimitPeriod,
		Limit:  cfg.RateLimitRequests,
	}))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(obs.TracingMiddleware)
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(globalLimiter.Handler)

	r.Get("/livez", healthHandler.Livez)
	r.Get("/readyz", healthHandler.Readyz)
	r.Handle("/metrics", promhttp.Handler())
	if cfg.AppEnv != "production" {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/otp/request", authHandler.RequestCode)
		r.Post("/auth/otp/verify", authHandler.VerifyCode)

		r.Get("/products", catalogHandler.List)
		r.Get("/products/{slug}", catalogHandler.GetBySlug)
		r.Get("/brands", catalogHandler.Brands)
		r.Get("/categories", catalogHandler.Categories)

		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAuth)

			r.Get("/me", authHandler.Me)
			r.Put("/me", authHandler.UpdateMe)

			r.Get("/cart", cartHandler.Get)
			r.Delete("/cart", cartHandler.Clear)
			r.Post("/cart/items", cartHandler.AddItem)
			r.Put("/cart/items/{productID}", cartHandler.UpdateItem)
			r.Delete("/cart/items/{productID}", cartHandler.RemoveItem)

			r.Post("/coupons/apply", couponHandler.Apply)

			r.With(idem.Middleware).Post("/orders", orderHandler.Create)
			r.Get("/orders", orderHandler.List)
			r.Get("/orders/{orderID}", orderHandler.Get)
			r.Post("/orders/{orderID}/cancel", orderHandler.Cancel)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMW.RequireAuth)
			r.Use(auth.RequireRole("admin"))

			r.Post("/products", catalogHandler.AdminCreateProduct)
			r.Put("/products/{productID}", catalogHandler.AdminUpdateProduct)
			r.Delete("/products/{productID}", catalogHandler.AdminDeleteProduct)

			r.Post("/brands", catalogHandler.AdminCreateBrand)
			r.Delete("/brands/{brandID}", catalogHandler.AdminDeleteBrand)
			r.Post("/categories", catalogHandler.AdminCreateCategory)
			r.Delete("/categories/{categoryID}", catalogHandler.AdminDeleteCategory)

			r.Patch("/orders/{orderID}/status", orderHandler.AdminUpdateStatus)

			r.Get("/coupons", couponHandler.AdminList)
			r.Post("/coupons", couponHandler.AdminCreate)
			r.Put("/coupons/{couponID}", couponHandler.AdminUpdate)
			r.Delete("/coupons/{couponID}", couponHandler.AdminDelete)

			r.Post("/uploads", uploadHandler.Create)
		})
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("env", cfg.AppEnv).Msg("api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("serve http")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown http server")
	}
}
