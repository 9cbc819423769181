package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/events"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/notification"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/queue"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/repository"
	"github.com/cloud-wave-best-zizon/fulfillment-service/internal/worker"
	"github.com/cloud-wave-best-zizon/fulfillment-service/pkg/config"
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

	logger.Info("Worker configuration",
		zap.String("order_queue", cfg.OrderQueueURL),
		zap.Duration("visibility_timeout", cfg.VisibilityTimeout),
		zap.Int("batch_size", cfg.ReceiveBatchSize),
		zap.Bool("kafka_enabled", cfg.KafkaBrokers != ""),
		zap.Bool("email_enabled", cfg.SenderEmail != ""),
		zap.Bool("sms_enabled", cfg.SMSEnabled))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dynamoClient, err := repository.NewDynamoDBClient(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to create DynamoDB client:", err)
	}
	sqsClient, err := queue.NewSQSClient(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to create SQS client:", err)
	}

	orderRepo := repository.NewOrderRepository(dynamoClient, cfg.OrderTableName)
	productRepo := repository.NewProductRepository(dynamoClient, cfg.ProductTableName)
	cartRepo := repository.NewCartRepository(dynamoClient, cfg.CartTableName, productRepo)
	prefRepo := repository.NewPreferenceRepository(dynamoClient, cfg.PreferenceTableName, cfg.AnalyticsTableName)
	ledgerRepo := repository.NewLedgerRepository(dynamoClient, cfg.LedgerTableName)
	orderQueue := queue.NewSQSQueue(sqsClient, cfg)

	// Optional channels: a sender absent from config is simply not
	// constructed, and the dispatcher skips its channel.
	var emailSender notification.EmailSender
	var smsSender notification.SMSSender
	if cfg.SenderEmail != "" || cfg.SMSEnabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatal("Failed to load AWS config:", err)
		}
		if cfg.SenderEmail != "" {
			emailSender = notification.NewSESSender(sesv2.NewFromConfig(awsCfg), cfg.SenderEmail)
		}
		if cfg.SMSEnabled {
			smsSender = notification.NewSNSSender(sns.NewFromConfig(awsCfg))
		}
	}
	dispatcher := notification.NewDispatcher(prefRepo, emailSender, smsSender, logger)

	var publisher worker.EventPublisher
	if cfg.KafkaBrokers != "" {
		producer := events.NewProducer(cfg.KafkaBrokers, logger)
		defer producer.Close()
		publisher = producer
	}

	fulfillment := worker.New(
		orderQueue,
		orderRepo,
		productRepo,
		cartRepo,
		ledgerRepo,
		dispatcher,
		publisher,
		worker.Options{
			BatchSize:         cfg.ReceiveBatchSize,
			LowStockThreshold: cfg.LowStockThreshold,
			AdminEmail:        cfg.AdminEmail,
		},
		logger,
	)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down worker...")
		cancel()
	}()

	fulfillment.Run(ctx)
	logger.Info("Worker stopped")
}
