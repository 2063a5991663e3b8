// File: escrowbook/main.go
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"escrowbook/config"
	"escrowbook/cron"
	"escrowbook/database"
	providerRepo "escrowbook/database/repository/provider"
	reservationRepo "escrowbook/database/repository/reservation"
	"escrowbook/handlers"
	"escrowbook/middleware"
	"escrowbook/models"
	"escrowbook/routes"
	"escrowbook/services/arbiter"
	"escrowbook/services/lifecycle"
	"escrowbook/services/notification"
	"escrowbook/services/payment"
	"escrowbook/services/tasks"
	"escrowbook/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer func() { _ = logger.Sync() }()
	utils.SetJWTSecret(config.AppConfig.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// repositories.
	providers, bookings := initStores(ctx, logger)
	seedProviders(ctx, providers, logger)

	// redis: webhook dedupe and the task queue. Both are optional in development.
	var (
		redisClients []*redis.Client
		deduper      handlers.EventDeduper
		queue        *asynq.Client
		enqueuer     *tasks.Enqueuer
	)
	if err := utils.InitCache(); err != nil {
		logger.Warn("redis unavailable: webhook dedupe, task queue and push delivery are disabled", zap.Error(err))
	} else {
		redisClients = append(redisClients, utils.GetCacheClient())
		deduper = payment.NewEventDeduper(utils.GetCacheClient(), payment.DefaultDedupeTTL)
		queue = asynq.NewClient(utils.QueueRedisOpt())
		enqueuer = tasks.NewEnqueuer(queue)
	}

	// notifications.
	notifiers := notification.Fanout{notification.NewLogNotifier(logger)}
	if enqueuer != nil {
		notifiers = append(notifiers, notification.NewQueueNotifier(enqueuer))
	}
	var push cron.TransitionNotifier
	if config.AppConfig.NotificationsEnabled {
		fcm, err := utils.FirebaseInit(ctx)
		if err != nil {
			logger.Error("push notifications disabled", zap.Error(err))
		} else if svc, err := notification.NewDefaultNotificationService(fcm, logger); err == nil {
			push = svc
		}
	}

	// services.
	engine := lifecycle.NewEngine(bookings, notifiers, logger)
	deps := arbiter.Deps{
		Providers: providers,
		Bookings:  bookings,
		Engine:    engine,
		Gateway:   initGateway(logger),
		Logger:    logger,
	}
	if enqueuer != nil {
		deps.Scheduler = enqueuer
	}
	arb := arbiter.NewArbiter(deps, arbiter.Options{
		GatewayTimeout:  config.AppConfig.GatewayTimeout,
		HoldTTL:         config.AppConfig.PendingHoldTTL,
		PollDelay:       config.AppConfig.PaymentPollDelay,
		DefaultCurrency: models.ParseCurrency(config.AppConfig.DefaultCurrency),
	})

	// background work.
	var stopWorker, stopSweeps func()
	if queue != nil {
		stopWorker = cron.StartWorker(utils.QueueRedisOpt(), cron.NewMux(arb, push, logger), logger)
		s, err := cron.StartSweeps(utils.QueueRedisOpt(), config.AppConfig.SweepInterval, logger)
		if err != nil {
			logger.Error("periodic sweeps fall back to in-process loop", zap.Error(err))
			go cron.RunSweepLoop(ctx, arb, config.AppConfig.SweepInterval, logger)
		} else {
			stopSweeps = s
		}
		monitor := utils.NewQueueMonitorClient()
		redisClients = append(redisClients, monitor)
		go cron.MonitorRedisConnection(ctx, monitor, logger)
	} else {
		go cron.RunSweepLoop(ctx, arb, config.AppConfig.SweepInterval, logger)
	}
	utils.StartHealthMonitor(ctx, time.Minute, redisClients, database.MongoClient)

	// Create the Gin router.
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RateLimitMiddleware(config.AppConfig.MaxRequestsPerMin))

	// Assemble the handler bundle.
	handlerBundle := handlers.NewHandlerBundle(
		handlers.NewBookingHandler(arb),
		handlers.NewWebhookHandler(payment.NewStripeWebhookVerifier(config.AppConfig.StripeWebhookSecret), deduper, arb),
	)

	// Register routes with the assembled handler bundle.
	routes.RegisterRoutes(router, handlerBundle)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	<-ctx.Done()
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	if stopSweeps != nil {
		stopSweeps()
	}
	if stopWorker != nil {
		stopWorker()
	}
	engine.Wait()
	if queue != nil {
		_ = queue.Close()
	}
	if err := database.CloseDB(shutdownCtx); err != nil {
		logger.Warn("main: mongo disconnect failed", zap.Error(err))
	}

	logger.Sugar().Info("main: server stopped gracefully")
}

func initStores(ctx context.Context, logger *zap.Logger) (providerRepo.ProviderRepository, reservationRepo.ReservationRepository) {
	if config.UsesMemoryStore() {
		logger.Warn("using in-memory store; data is lost on restart")
		return providerRepo.NewMemoryProviderRepo(), reservationRepo.NewMemoryReservationRepo()
	}

	db, err := database.InitDB(ctx)
	if err != nil {
		logger.Sugar().Fatalf("main: %v", err)
	}
	provs := providerRepo.NewMongoProviderRepo(db)
	books := reservationRepo.NewMongoReservationRepo(db)
	if err := provs.EnsureIndexes(ctx); err != nil {
		logger.Sugar().Fatalf("main: provider indexes: %v", err)
	}
	if err := books.EnsureIndexes(ctx); err != nil {
		logger.Sugar().Fatalf("main: reservation indexes: %v", err)
	}
	return provs, books
}

func seedProviders(ctx context.Context, providers providerRepo.ProviderRepository, logger *zap.Logger) {
	seed, err := database.LoadProviderSeed(config.AppConfig.ProviderSeedFile)
	if err != nil {
		logger.Sugar().Fatalf("main: %v", err)
	}
	for i := range seed {
		if err := providers.Save(ctx, &seed[i]); err != nil {
			logger.Sugar().Fatalf("main: seed provider %s: %v", seed[i].ID, err)
		}
	}
	if len(seed) > 0 {
		logger.Info("providers seeded", zap.Int("count", len(seed)))
	}
}

func initGateway(logger *zap.Logger) payment.Gateway {
	if config.AppConfig.PaymentGateway == "mock" {
		logger.Warn("using mock payment gateway")
		return payment.NewMockGateway(0)
	}
	gw, err := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey: config.AppConfig.StripeSecretKey,
		ReturnURL: config.AppConfig.CheckoutReturnURL,
	}, logger)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to initialize stripe gateway: %v", err)
	}
	return gw
}
