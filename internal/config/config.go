package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（支付结果原子入流，Relay 异步转 Kafka）
	PaymentEventStream   string
	PaymentEventGroup    string
	PaymentEventConsumer string

	// 移动支付网关接入参数
	GatewayBaseURL     string
	GatewayAPIKey      string
	GatewaySecretKey   string
	GatewayAppID       string
	GatewayCallbackURL string
	GatewayTimeout     time.Duration

	// 发起/查询接口的静态 Bearer Token（demo 级别保护，生产应接入真实认证）
	APIAuthToken string
	// CallbackToken 非空时，回调接口要求 X-Callback-Token 匹配
	CallbackToken string

	// 发起支付接口限流
	InitiateRateLimit  int
	InitiateRateWindow time.Duration
	// 发起支付的单订单互斥锁 TTL（应略大于网关超时）
	InitiateLockTTL time.Duration
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DBPath:               getEnv("DB_PATH", "mobile_money.db"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              0,
		KafkaBrokers:         splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "payment-events"),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "payment-event-audit"),
		PaymentEventStream:   getEnv("PAYMENT_EVENT_STREAM", "mobile_money:payment_events"),
		PaymentEventGroup:    getEnv("PAYMENT_EVENT_GROUP", "payment-relay-group"),
		PaymentEventConsumer: getEnv("PAYMENT_EVENT_CONSUMER", "payment-relay-1"),
		GatewayBaseURL:       getEnv("MOBILE_MONEY_API_URL", "https://gateway.example.com/api"),
		GatewayAPIKey:        getEnv("MOBILE_MONEY_API_KEY", ""),
		GatewaySecretKey:     getEnv("MOBILE_MONEY_SECRET_KEY", ""),
		GatewayAppID:         getEnv("MOBILE_MONEY_APP_ID", ""),
		GatewayCallbackURL:   getEnv("MOBILE_MONEY_CALLBACK_URL", ""),
		GatewayTimeout:       30 * time.Second,
		APIAuthToken:         getEnv("API_AUTH_TOKEN", "dev-api-token"),
		CallbackToken:        getEnv("CALLBACK_TOKEN", ""),
		InitiateRateLimit:    60,
		InitiateRateWindow:   time.Minute,
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	timeoutSec, err := getEnvInt("MOBILE_MONEY_TIMEOUT", int(cfg.GatewayTimeout.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid MOBILE_MONEY_TIMEOUT: %w", err)
	}
	if timeoutSec <= 0 {
		return AppConfig{}, fmt.Errorf("MOBILE_MONEY_TIMEOUT must be > 0")
	}
	cfg.GatewayTimeout = time.Duration(timeoutSec) * time.Second
	// 锁 TTL 比网关超时多留 5s，防止请求临界超时后锁提前失效
	cfg.InitiateLockTTL = cfg.GatewayTimeout + 5*time.Second

	rateLimit, err := getEnvInt("INITIATE_RATE_LIMIT", cfg.InitiateRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid INITIATE_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("INITIATE_RATE_LIMIT must be > 0")
	}
	cfg.InitiateRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("INITIATE_RATE_WINDOW_SEC", int(cfg.InitiateRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid INITIATE_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("INITIATE_RATE_WINDOW_SEC must be > 0")
	}
	cfg.InitiateRateWindow = time.Duration(rateWindowSec) * time.Second

	if cfg.GatewayBaseURL == "" {
		return AppConfig{}, fmt.Errorf("MOBILE_MONEY_API_URL must not be empty")
	}
	if cfg.GatewayAPIKey == "" {
		return AppConfig{}, fmt.Errorf("MOBILE_MONEY_API_KEY must not be empty")
	}
	if cfg.GatewaySecretKey == "" {
		return AppConfig{}, fmt.Errorf("MOBILE_MONEY_SECRET_KEY must not be empty")
	}
	if cfg.GatewayAppID == "" {
		return AppConfig{}, fmt.Errorf("MOBILE_MONEY_APP_ID must not be empty")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.PaymentEventStream == "" {
		return AppConfig{}, fmt.Errorf("PAYMENT_EVENT_STREAM must not be empty")
	}
	if cfg.PaymentEventGroup == "" {
		return AppConfig{}, fmt.Errorf("PAYMENT_EVENT_GROUP must not be empty")
	}
	if cfg.PaymentEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("PAYMENT_EVENT_CONSUMER must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
