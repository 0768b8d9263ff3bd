package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mobile_money/internal/config"
	"mobile_money/internal/gateway"
	"mobile_money/internal/model"
	"mobile_money/internal/payment"
	"mobile_money/internal/queue"
	"mobile_money/internal/router"
	rediskey "mobile_money/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := db.AutoMigrate(&model.Order{}, &model.PaymentEventRecord{}); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

	signer := gateway.NewSigner(cfg.GatewaySecretKey)
	gw := gateway.NewClient(gateway.Options{
		BaseURL:     cfg.GatewayBaseURL,
		APIKey:      cfg.GatewayAPIKey,
		AppID:       cfg.GatewayAppID,
		CallbackURL: cfg.GatewayCallbackURL,
		Timeout:     cfg.GatewayTimeout,
	}, signer, logger)

	locks := &rediskey.InitiateLocker{RDB: rdb, TTL: cfg.InitiateLockTTL}
	outbox := payment.NewStreamOutbox(rdb, cfg.PaymentEventStream)
	svc := payment.NewService(db, gw, locks, outbox, logger)

	// 后台：outbox -> Kafka 转发 + 事件审计消费
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()
	relay := queue.NewRelay(rdb, producer, cfg.PaymentEventStream, cfg.PaymentEventGroup, cfg.PaymentEventConsumer)
	go relay.Run(ctx)

	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, db)
	defer consumer.Close()
	go consumer.Run(ctx)

	r := gin.Default()
	router.Setup(r, svc, rdb, cfg)

	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("http server: %v", err)
	}
}
