package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fathima-sithara/session-service/internal/challenge"
	"github.com/fathima-sithara/session-service/internal/clock"
	"github.com/fathima-sithara/session-service/internal/config"
	"github.com/fathima-sithara/session-service/internal/events"
	"github.com/fathima-sithara/session-service/internal/handlers"
	"github.com/fathima-sithara/session-service/internal/repository"
	"github.com/fathima-sithara/session-service/internal/server"
	"github.com/fathima-sithara/session-service/internal/services"
	"github.com/fathima-sithara/session-service/internal/token"
	"github.com/fathima-sithara/session-service/internal/utils"
	"github.com/fathima-sithara/session-service/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger := utils.NewLogger(cfg.App.Env)
	defer func() { _ = logger.Sync() }()

	clk := clock.System()

	users, closeRepo, err := buildUserRepo(cfg)
	if err != nil {
		logger.Fatal("user repository init failed", zap.Error(err))
	}
	defer closeRepo()

	store := buildChallengeStore(cfg, logger)
	sender := challenge.NewDevSender(logger)
	challenges := challenge.NewService(store, users, sender, clk, logger)
	authority := token.NewAuthority(cfg.JWT.Secret, clk)
	authSvc := services.NewAuthService(users, challenges, authority, clk, logger)

	var publisher ws.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPresence)
		defer func() { _ = producer.Close() }()
		publisher = producer
		logger.Info("presence events enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	presence := ws.NewServer(authSvc, publisher, logger)

	h := handlers.NewHandler(authSvc, cfg.DevMode(), logger)
	app := server.New(cfg, h, presence, logger)

	errs := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		logger.Info("starting session service", zap.String("addr", addr), zap.String("env", cfg.App.Env))
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		logger.Fatal("server error", zap.Error(e))
	case s := <-sig:
		logger.Info("signal received", zap.String("signal", s.String()))
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	logger.Info("shut down")
}

func buildUserRepo(cfg *config.Config) (repository.UserRepository, func(), error) {
	if cfg.Mongo.URI == "" {
		return repository.NewMemoryUserRepo(), func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, err
	}
	repo := repository.NewMongoUserRepo(client.Database(cfg.Mongo.Database), cfg.Mongo.Collection)
	closeFn := func() {
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		_ = client.Disconnect(dctx)
	}
	return repo, closeFn, nil
}

func buildChallengeStore(cfg *config.Config, logger *zap.Logger) challenge.Store {
	if cfg.Redis.Addr == "" {
		return challenge.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.Info("challenge store backed by redis", zap.String("addr", cfg.Redis.Addr))
	return challenge.NewRedisStore(client)
}
