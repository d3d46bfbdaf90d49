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

	"microtx-service/config"
	"microtx-service/internal/api"
	"microtx-service/internal/broker"
	"microtx-service/internal/catalog"
	"microtx-service/internal/redisclient"
	"microtx-service/internal/service"
	"microtx-service/internal/steam"
	"microtx-service/internal/store"
	"microtx-service/internal/util"
	"microtx-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting microtransaction service")

	tp, err := util.InitTracer("microtx-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicTransactions)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	registry := catalog.NewRegistry()
	registerProducts(registry)

	authorityClient := steam.NewHTTPClient(steam.Config{
		APIURL:       cfg.Authority.APIURL,
		AppID:        cfg.Authority.AppID,
		PublisherKey: cfg.Authority.PublisherKey,
		UseSandbox:   cfg.Authority.UseSandbox,
	})

	orchestrator := service.NewOrchestrator(db, authorityClient, registry, redisClient, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	authConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAuthorization, cfg.Kafka.ConsumerGroup)
	authWorker := worker.NewAuthorizationWorker(authConsumer, orchestrator)
	go func() {
		if err := authWorker.Start(workerCtx); err != nil {
			log.Printf("Authorization worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orchestrator, registry, db)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	authWorker.Stop()

	log.Println("Server exited")
}

// registerProducts wires the sellable catalog. Each product id must
// match the pricing configured at the payment authority's partner site.
func registerProducts(registry *catalog.Registry) {
	for _, p := range catalog.DefaultProducts() {
		if err := registry.Register(p); err != nil {
			log.Fatalf("Failed to register product: %v", err)
		}
	}
}
