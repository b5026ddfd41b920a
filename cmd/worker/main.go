package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/config"
	"github.com/pepe57/OpenGateLLM/internal/services/broker"
	"github.com/pepe57/OpenGateLLM/internal/services/database"
	"github.com/pepe57/OpenGateLLM/internal/services/metrics"
	"github.com/pepe57/OpenGateLLM/internal/services/routing"
	"github.com/pepe57/OpenGateLLM/pkg/gateway"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the gateway configuration file")
	flag.Parse()

	config.LoadEnvFiles([]string{".env.local", ".env.development", ".env"})
	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.Dependencies.RabbitMQ == nil {
		log.Fatal("the routing worker requires a rabbitmq dependency in the configuration")
	}

	db, err := database.New(cfg.Dependencies.Postgres)
	if err != nil {
		log.Fatalf("database initialization failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	rdb, err := gateway.CreateRedisClient(cfg.Dependencies.Redis)
	if err != nil {
		log.Fatalf("redis initialization failed: %v", err)
	}
	defer func() { _ = rdb.Close() }()

	b := broker.New(cfg.Dependencies.RabbitMQ.URL, cfg.Settings.QueueMaxPriority)
	defer func() { _ = b.Close() }()

	store := metrics.NewStore(rdb, time.Duration(cfg.Settings.MetricsRetentionMS)*time.Millisecond)
	balancer := routing.NewBalancer(rdb, store,
		cfg.Settings.RoutingMaxRetries,
		time.Duration(cfg.Settings.RoutingRetrySeconds)*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := broker.NewWorker(db, rdb, b, balancer)
	log.Println("routing worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
