package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	execapp "github.com/wyfcoding/ordergateway/internal/execution/application"
	exechttp "github.com/wyfcoding/ordergateway/internal/execution/interfaces/http"
	orderapp "github.com/wyfcoding/ordergateway/internal/order/application"
	orderdomain "github.com/wyfcoding/ordergateway/internal/order/domain"
	"github.com/wyfcoding/ordergateway/internal/order/infrastructure/exchange"
	orderhttp "github.com/wyfcoding/ordergateway/internal/order/interfaces/http"
	refapp "github.com/wyfcoding/ordergateway/internal/referencedata/application"
	refhttp "github.com/wyfcoding/ordergateway/internal/referencedata/interfaces/http"
	"github.com/wyfcoding/ordergateway/pkg/cache"
	"github.com/wyfcoding/ordergateway/pkg/config"
	"github.com/wyfcoding/ordergateway/pkg/logger"
	"github.com/wyfcoding/ordergateway/pkg/metrics"
	"github.com/wyfcoding/ordergateway/pkg/middleware"
	"github.com/wyfcoding/ordergateway/pkg/mq"
	"github.com/wyfcoding/ordergateway/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "configs/ordergateway/config.toml", "path to config file")
	flag.Parse()

	// .env 存在时加载，用于本地开发注入 API 凭证
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	logger.Info(ctx, "Starting service",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.ServiceName)
		if err := m.Register(); err != nil {
			logger.Fatal(ctx, "Failed to register metrics", "error", err)
		}
		if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Fatal(ctx, "Failed to start metrics server", "error", err)
		}
	}

	// 事件发布：Kafka 未启用时使用空实现
	var publisher mq.EventPublisher = mq.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			logger.Fatal(ctx, "Failed to create Kafka producer", "error", err)
		}
		defer producer.Close()
		publisher = producer
	}

	// 限流依赖 Redis，未启用限流时不建立连接
	var limiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		redisCache, err := cache.New(cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			logger.Fatal(ctx, "Failed to connect to Redis", "error", err)
		}
		defer redisCache.Close()
		limiter = ratelimit.NewRedisRateLimiter(redisCache.GetClient())
	}

	apiKey := cfg.Exchange.APIKey()
	apiSecret := cfg.Exchange.APISecret()
	if apiKey == "" || apiSecret == "" {
		logger.Fatal(ctx, "Exchange API credentials are not set",
			"api_key_env", cfg.Exchange.APIKeyEnv,
			"api_secret_env", cfg.Exchange.APISecretEnv,
		)
	}

	exchangeClient := exchange.NewClient(exchange.Config{
		BaseURL:    cfg.Exchange.BaseURL,
		APIKey:     apiKey,
		APISecret:  apiSecret,
		RecvWindow: int64(cfg.Exchange.RecvWindow),
		Timeout:    time.Duration(cfg.Exchange.Timeout) * time.Second,
	}, m)

	// 启动前探测交易所连通性，失败直接退出
	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	if err := exchangeClient.Ping(pingCtx); err != nil {
		cancelPing()
		logger.Fatal(ctx, "Exchange connectivity probe failed",
			"base_url", cfg.Exchange.BaseURL,
			"error", err,
		)
	}
	cancelPing()
	logger.Info(ctx, "Exchange connectivity probe succeeded", "base_url", cfg.Exchange.BaseURL)

	rulesCache := refapp.NewRulesCache(exchangeClient, time.Duration(cfg.RulesCache.TTL)*time.Second)
	validator := orderdomain.NewValidator(rulesCache, cfg.Exchange.QuoteSuffix)
	orderService := orderapp.NewService(validator, exchangeClient, publisher, m)
	twapManager := execapp.NewManager(orderService, rulesCache, publisher, m)

	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	if limiter != nil {
		router.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimit))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": cfg.ServiceName,
			"version": cfg.Version,
		})
	})

	api := router.Group("/api/v1")
	refhttp.NewRulesHandler(rulesCache).RegisterRoutes(api)
	orderhttp.NewOrderHandler(orderService).RegisterRoutes(api)
	exechttp.NewTwapHandler(twapManager).RegisterRoutes(api)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info(ctx, "HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Server forced to shutdown", "error", err)
	}
	logger.Info(ctx, "Server exited")
}
