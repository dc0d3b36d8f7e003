package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloud-wave-best-zizon/cart-service/internal/checkout"
	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/cloud-wave-best-zizon/cart-service/internal/events"
	"github.com/cloud-wave-best-zizon/cart-service/internal/facts"
	"github.com/cloud-wave-best-zizon/cart-service/internal/handler"
	"github.com/cloud-wave-best-zizon/cart-service/internal/repository"
	"github.com/cloud-wave-best-zizon/cart-service/internal/service"
	"github.com/cloud-wave-best-zizon/cart-service/internal/worker"
	"github.com/cloud-wave-best-zizon/cart-service/pkg/config"
	"github.com/cloud-wave-best-zizon/cart-service/pkg/middleware"
	pkgtls "github.com/cloud-wave-best-zizon/cart-service/pkg/tls"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type cartStore interface {
	repository.CartStore
	repository.SessionLister
}

type eventPublisher interface {
	service.EventPublisher
	Close() error
}

func main() {
	// Config 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Logger 초기화
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	defaultCurrency, err := domain.ParseCurrency(cfg.DefaultCurrency)
	if err != nil {
		logger.Fatal("Invalid DEFAULT_CURRENCY", zap.String("value", cfg.DefaultCurrency))
	}
	productCurrency, err := domain.ParseCurrency(cfg.ProductCurrency)
	if err != nil {
		logger.Fatal("Invalid PRODUCT_CURRENCY", zap.String("value", cfg.ProductCurrency))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newCartStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create cart store", zap.Error(err))
	}
	defer closeStore()

	// Product / exchange rate lookups share one policy
	policy := facts.Policy{
		Timeout: cfg.LookupTimeout,
		Retries: cfg.LookupRetries,
		Backoff: cfg.LookupBackoff,
	}
	httpClient := &http.Client{}
	products := facts.NewProductClient(cfg.ProductServiceURL, httpClient, policy, productCurrency, logger)
	rates := facts.NewRateClient(cfg.ExchangeRateURL, httpClient, policy, logger)
	gateway := checkout.NewClient(cfg.CheckoutServiceURL, httpClient, cfg.CheckoutTimeout, logger)

	var publisher eventPublisher = events.NewNopPublisher(logger)
	if cfg.KafkaEnabled {
		publisher = events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	}
	defer publisher.Close()

	// Reconciler, Service, Handler 초기화
	engine := service.NewReconciler(products, rates, cfg.LookupConcurrency, logger)
	cartService := service.NewCartService(store, engine, gateway, publisher, defaultCurrency, logger)
	cartHandler := handler.NewCartHandler(cartService, logger)

	revalidator := worker.NewRevalidator(cartService, store, cfg.RevalidateInterval, logger)
	go revalidator.Run(ctx)

	if cfg.KafkaEnabled {
		consumer := events.NewStockConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaStockTopic, revalidator, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("Kafka consumer exited", zap.Error(err))
			}
		}()
	}

	// Gin Router 설정
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	// Routes
	v1 := router.Group("/api/v1")
	{
		cartHandler.Register(v1)
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "healthy"})
		})
	}

	tlsConfig, tlsSource, err := pkgtls.LoadServerTLS(ctx, cfg.TLSEnabled, cfg.SPIRESocketPath, logger)
	if err != nil {
		logger.Fatal("Failed to load TLS config", zap.Error(err))
	}
	defer tlsSource.Close()

	// Server 시작
	srv := &http.Server{
		Addr:      ":" + cfg.Port,
		Handler:   router,
		TLSConfig: tlsConfig,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Port),
			zap.String("store", cfg.StoreBackend),
			zap.Bool("tls", tlsConfig != nil))

		var err error
		if tlsConfig != nil {
			go tlsSource.Watch(ctx, time.Minute)
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	<-ctx.Done()

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited")
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	return zapCfg.Build()
}

func newCartStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cartStore, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		return repository.NewRedisStore(client, cfg.CartTTL, logger), func() { client.Close() }, nil

	case "dynamodb":
		// DynamoDB 클라이언트 초기화
		logger.Info("Using DynamoDB cart store",
			zap.String("table", cfg.CartTableName),
			zap.Bool("local_mode", cfg.LocalMode))
		client, err := repository.NewDynamoDBClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewDynamoStore(client, cfg.CartTableName, logger), func() {}, nil

	default:
		logger.Info("Using in-memory cart store")
		return repository.NewMemoryStore(), func() {}, nil
	}
}
