package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	AWSRegion string `envconfig:"AWS_REGION" default:"ap-northeast-2"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	OrderTableName      string `envconfig:"ORDER_TABLE_NAME" default:"orders"`
	ProductTableName    string `envconfig:"PRODUCT_TABLE_NAME" default:"products"`
	CartTableName       string `envconfig:"CART_TABLE_NAME" default:"carts"`
	PreferenceTableName string `envconfig:"PREFERENCE_TABLE_NAME" default:"notification-preferences"`
	AnalyticsTableName  string `envconfig:"ANALYTICS_TABLE_NAME" default:"notification-analytics"`
	LedgerTableName     string `envconfig:"LEDGER_TABLE_NAME" default:"processed-orders"`

	OrderQueueURL     string        `envconfig:"ORDER_QUEUE_URL" required:"true"`
	VisibilityTimeout time.Duration `envconfig:"QUEUE_VISIBILITY_TIMEOUT" default:"90s"`
	ReceiveBatchSize  int           `envconfig:"QUEUE_RECEIVE_BATCH_SIZE" default:"10"`
	WaitTime          time.Duration `envconfig:"QUEUE_WAIT_TIME" default:"20s"`

	PaymentGatewayURL     string        `envconfig:"PAYMENT_GATEWAY_URL" required:"true"`
	PaymentTimeout        time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"30s"`
	CheckoutTimeout       time.Duration `envconfig:"CHECKOUT_TIMEOUT" default:"10m"`
	PaymentMaxRetries     int           `envconfig:"PAYMENT_MAX_RETRIES" default:"3"`
	PaymentInitialBackoff time.Duration `envconfig:"PAYMENT_INITIAL_BACKOFF" default:"2s"`

	// Optional collaborators. Components depending on an empty one are
	// not constructed.
	KafkaBrokers   string `envconfig:"KAFKA_BROKERS" default:""`
	SenderEmail    string `envconfig:"SENDER_EMAIL" default:""`
	AdminEmail     string `envconfig:"ADMIN_EMAIL" default:""`
	SMSEnabled     bool   `envconfig:"SMS_ENABLED" default:"false"`
	DynamoEndpoint string `envconfig:"DYNAMODB_ENDPOINT" default:""` // DynamoDB Local
	SQSEndpoint    string `envconfig:"SQS_ENDPOINT" default:""`

	LowStockThreshold int `envconfig:"LOW_STOCK_THRESHOLD" default:"10"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ReceiveBatchSize < 1 || c.ReceiveBatchSize > 10 {
		return fmt.Errorf("QUEUE_RECEIVE_BATCH_SIZE must be 1-10, got %d", c.ReceiveBatchSize)
	}
	if c.VisibilityTimeout < 30*time.Second {
		return fmt.Errorf("QUEUE_VISIBILITY_TIMEOUT %s is below the worker's worst-case latency", c.VisibilityTimeout)
	}
	if c.CheckoutTimeout < 5*time.Minute || c.CheckoutTimeout > 15*time.Minute {
		return fmt.Errorf("CHECKOUT_TIMEOUT must be between 5m and 15m, got %s", c.CheckoutTimeout)
	}
	if c.PaymentMaxRetries < 0 {
		return fmt.Errorf("PAYMENT_MAX_RETRIES must be >= 0")
	}
	return nil
}
