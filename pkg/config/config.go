package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LocalMode bool   `envconfig:"LOCAL_MODE" default:"false"` // AWS 없이 로컬 실행 모드 (DynamoDB Local)

	// cart storage: memory | redis | dynamodb
	StoreBackend   string        `envconfig:"STORE_BACKEND" default:"memory"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	CartTTL        time.Duration `envconfig:"CART_TTL" default:"720h"`
	AWSRegion      string        `envconfig:"AWS_REGION" default:"ap-northeast-2"`
	CartTableName  string        `envconfig:"CART_TABLE_NAME" default:"carts-table"`
	DynamoEndpoint string        `envconfig:"DYNAMODB_ENDPOINT"`

	ProductServiceURL  string `envconfig:"PRODUCT_SERVICE_URL" default:"http://localhost:8081"`
	ExchangeRateURL    string `envconfig:"EXCHANGE_RATE_URL" default:"http://localhost:8082"`
	CheckoutServiceURL string `envconfig:"CHECKOUT_SERVICE_URL" default:"http://localhost:8083"`

	DefaultCurrency string `envconfig:"DEFAULT_CURRENCY" default:"EG"`
	ProductCurrency string `envconfig:"PRODUCT_CURRENCY" default:"EG"`

	LookupTimeout     time.Duration `envconfig:"LOOKUP_TIMEOUT" default:"3s"`
	LookupRetries     int           `envconfig:"LOOKUP_RETRIES" default:"1"`
	LookupBackoff     time.Duration `envconfig:"LOOKUP_BACKOFF" default:"200ms"`
	LookupConcurrency int           `envconfig:"LOOKUP_CONCURRENCY" default:"8"`

	CheckoutTimeout    time.Duration `envconfig:"CHECKOUT_TIMEOUT" default:"10s"`
	RevalidateInterval time.Duration `envconfig:"REVALIDATE_INTERVAL" default:"5m"`

	KafkaEnabled    bool   `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers    string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic      string `envconfig:"KAFKA_TOPIC" default:"cart-events"`
	KafkaStockTopic string `envconfig:"KAFKA_STOCK_TOPIC" default:"product-events"`
	KafkaGroupID    string `envconfig:"KAFKA_GROUP_ID" default:"cart-service"`

	TLSEnabled      bool   `envconfig:"TLS_ENABLED" default:"false"`
	SPIRESocketPath string `envconfig:"SPIRE_SOCKET_PATH" default:"unix:///run/spire/sockets/agent.sock"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
