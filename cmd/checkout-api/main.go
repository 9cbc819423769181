package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/checkout"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/handler"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/payment"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/queue"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/repository"
	"github.com/cloud-wave-best-zizon/fulfillment-service/pkg/config"
	"github.com/cloud-wave-best-zizon/fulfillment-service/pkg/middleware"
	"github.com/cloud-wave-best-zizon/fulfillment-service/pkg/retry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.Info("Service configuration",
		zap.String("port", cfg.Port),
		zap.String("order_queue", cfg.OrderQueueURL),
		zap.Duration("checkout_timeout", cfg.CheckoutTimeout))

	ctx := context.Background()

	dynamoClient, err := repository.NewDynamoDBClient(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to create DynamoDB client:", err)
	}
	sqsClient, err := queue.NewSQSClient(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to create SQS client:", err)
	}

	productRepo := repository.NewProductRepository(dynamoClient, cfg.ProductTableName)
	cartRepo := repository.NewCartRepository(dynamoClient, cfg.CartTableName, productRepo)
	orderRepo := repository.NewOrderRepository(dynamoClient, cfg.OrderTableName)
	orderQueue := queue.NewSQSQueue(sqsClient, cfg)
	gateway := payment.NewHTTPGateway(cfg.PaymentGatewayURL, cfg.PaymentTimeout)

	orchestrator := checkout.NewOrchestrator(
		cartRepo,
		gateway,
		orderQueue,
		retry.Policy{
			MaxRetries:   uint64(cfg.PaymentMaxRetries),
			InitialDelay: cfg.PaymentInitialBackoff,
			Multiplier:   2.0,
		},
		cfg.CheckoutTimeout,
		logger,
	)
	checkoutHandler := handler.NewCheckoutHandler(orchestrator, orderRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.RequestID())

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", checkoutHandler.Checkout)
		v1.GET("/orders/:id", checkoutHandler.GetOrder)
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "healthy",
				"service": "checkout-api",
				"port":    cfg.Port,
			})
		})
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}
