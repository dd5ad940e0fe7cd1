package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"checkout-svc/cart"
	"checkout-svc/catalog"
	"checkout-svc/checkout"
	"checkout-svc/database"
	"checkout-svc/email"
	"checkout-svc/events"
	"checkout-svc/gateway"
	"checkout-svc/handlers"
	"checkout-svc/inventory"
	"checkout-svc/middleware"
	"checkout-svc/notifier"
	"checkout-svc/realtime"
	"checkout-svc/webhook"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := database.InitDB(logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis
	rdb, err := initRedis(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Initialize Kafka producer
	producer, err := events.InitProducer(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing("checkout-svc")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing()

	// Wire the pipeline
	channel := realtime.NewChannel(rdb, logger)
	fanout := events.NewFanout(producer, channel, logger)

	catalogStore := catalog.NewStore(db, rdb, logger)
	couponStore := cart.NewCouponStore(db)
	cartStore := cart.NewStore(db, catalogStore, logger)
	validator := cart.NewValidator(catalogStore, couponStore, logger)

	orderStore := checkout.NewOrderStore(db)
	gatewayClient := gateway.NewClient(logger)
	feePercent := getEnvFloat("PLATFORM_FEE_PERCENT", 10)
	orchestrator := checkout.NewOrchestrator(db, cartStore, couponStore, validator,
		orderStore, catalogStore, gatewayClient, feePercent, logger)

	ledger := inventory.NewLedger(db, catalogStore, logger)
	processor := webhook.NewProcessor(orderStore, cartStore, couponStore, ledger, fanout, logger)

	// Start the notifier consumer in background
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()
	consumer := notifier.NewConsumer(rdb, channel, email.NewLogSender(logger), logger)
	defer consumer.Close()
	go func() {
		if err := consumer.Run(consumerCtx); err != nil {
			logger.Error("Notifier consumer error", zap.Error(err))
		}
	}()

	// Setup REST API with Gin
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware("checkout-svc"))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	jwtSecret := getEnv("JWT_SECRET", "dev-secret")
	actorMiddleware := middleware.ActorMiddleware(jwtSecret)

	cartHandler := handlers.NewCartHandler(cartStore, logger)
	router.GET("/cart", actorMiddleware, cartHandler.Get)
	router.POST("/cart/items", actorMiddleware, cartHandler.AddItem)
	router.PATCH("/cart/:cartId/items/:itemId", actorMiddleware, cartHandler.UpdateItem)
	router.DELETE("/cart/:cartId/items/:itemId", actorMiddleware, cartHandler.RemoveItem)
	router.POST("/cart/:cartId/coupon", actorMiddleware, cartHandler.ApplyCoupon)
	router.DELETE("/cart/:cartId/coupon", actorMiddleware, cartHandler.RemoveCoupon)
	router.POST("/cart/convert", actorMiddleware, cartHandler.Convert)

	checkoutHandler := handlers.NewCheckoutHandler(orchestrator, logger)
	router.POST("/checkout/:cartId", actorMiddleware, checkoutHandler.CreateSession)
	router.GET("/checkout/status/:sessionId", checkoutHandler.Status)

	webhookHandler := handlers.NewWebhookHandler(processor, getEnv("GATEWAY_WEBHOOK_SECRET", "whsec_local"), logger)
	router.POST("/checkout/webhook", webhookHandler.Receive)

	inventoryHandler := handlers.NewInventoryHandler(ledger, fanout, logger)
	router.POST("/admin/inventory/:productId/adjust", actorMiddleware, inventoryHandler.Adjust)

	srv := &http.Server{
		Addr:    ":" + getEnv("PORT", "8080"),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Checkout service started", zap.String("addr", srv.Addr))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancelConsumer()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func initRedis(logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_HOST", "localhost") + ":" + getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
