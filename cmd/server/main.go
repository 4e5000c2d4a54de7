package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/checkout"
	"storefront/internal/redisclient"
	"storefront/internal/search"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampleRatio)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected")

	// Redis backs carts, the checkout lock and token revocation. Without it the
	// service runs single-instance on in-process fallbacks.
	var (
		carts   service.CartRepository = service.NewMemoryCartRepository()
		guard   checkout.Guard         = checkout.NewLocalGuard()
		revoker service.TokenRevoker   = service.NewMemoryRevoker()
	)
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process cart and lock state", zap.Error(err))
	} else {
		defer redisClient.Close()
		carts, guard, revoker = redisClient, redisClient, redisClient
		logger.Info("Redis connected")
	}

	var (
		checkoutEvents checkout.EventPublisher
		productEvents  service.ProductEventPublisher
		orderEvents    service.OrderEventPublisher
		authEvents     service.AuthEventPublisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		publisher := broker.NewEventPublisher(producer, broker.Topics{
			Order:   cfg.Kafka.TopicOrder,
			Product: cfg.Kafka.TopicProduct,
			User:    cfg.Kafka.TopicUser,
		})
		checkoutEvents, productEvents, orderEvents, authEvents = publisher, publisher, publisher, publisher
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	var searcher service.ProductSearcher
	var index *search.Index
	if cfg.Search.URL != "" {
		index, err = search.NewIndex(search.Config{
			URL:      cfg.Search.URL,
			Username: cfg.Search.Username,
			Password: cfg.Search.Password,
			Index:    cfg.Search.Index,
		})
		if err != nil {
			logger.Warn("Search index unavailable, searching in memory", zap.Error(err))
			index = nil
		} else if err := index.EnsureIndex(ctx); err != nil {
			logger.Warn("Failed to prepare search index", zap.Error(err))
			index = nil
		} else {
			searcher = index
		}
	}

	if index != nil {
		products, err := db.GetProducts(ctx)
		if err != nil {
			logger.Error("Failed to load products for reindex", zap.Error(err))
		} else if n, err := index.Reindex(ctx, products); err != nil {
			logger.Error("Failed to reindex products", zap.Int("indexed", n), zap.Error(err))
		} else {
			logger.Info("Products reindexed", zap.Int("count", n))
		}
	}

	sessions := session.NewManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	sessions.OnAuthChange(service.AuthEventListener(authEvents))

	paymentService := service.NewPaymentService(cfg.Checkout.PaymentDelay, cfg.Checkout.PaymentSuccessRate)
	orchestrator := checkout.NewOrchestrator(db, paymentService, guard, checkoutEvents, cfg.Checkout.LockTTL)

	catalogService := service.NewCatalogService(db, searcher, productEvents)
	if index != nil {
		catalogService.WithIndexer(index)
	}

	services := api.Services{
		Auth:     service.NewAuthService(db, db, revoker, sessions),
		Catalog:  catalogService,
		Cart:     service.NewCartService(carts, db, cfg.Cart.SessionTTL),
		Checkout: service.NewCheckoutService(orchestrator, carts, cfg.Cart.SessionTTL, cfg.Checkout.Timeout),
		Orders:   service.NewOrderService(db, orderEvents),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var indexWorker *worker.SearchIndexWorker
	if index != nil && len(cfg.Kafka.Brokers) > 0 {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicProduct, cfg.Kafka.ConsumerGroup)
		indexWorker = worker.NewSearchIndexWorker(consumer, index)
		go func() {
			if err := indexWorker.Start(workerCtx); err != nil {
				logger.Error("Search index worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, cfg.Cart.SessionTTL, db)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if indexWorker != nil {
		if err := indexWorker.Stop(); err != nil {
			logger.Error("Failed to stop search index worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
