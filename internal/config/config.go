package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultSnapshotKey 未在映射表中的摄像头使用的快照 key
const DefaultSnapshotKey = "latest-snapshot.jpg"

type Config struct {
	// Server
	ServerPort string `validate:"required,numeric"`
	Debug      bool

	// 配置文件路径，刷新令牌轮换时原地改写
	EnvFile string `validate:"required"`

	// Database（可选，为空时不记录事件历史）
	DatabaseURL string

	// Ring API
	RingRefreshToken string `validate:"required"`
	RingSystemID     string
	RingDebug        bool
	RingAuthHost     string `validate:"required,url"`
	RingAPIHost      string `validate:"required,url"`
	RingAppHost      string `validate:"required,url"`
	RingSnapsHost    string `validate:"required,url"`

	// Polling
	ConnectivityPollInterval time.Duration // 0 表示只依赖推送
	DingPollInterval         time.Duration `validate:"gt=0"`
	DingDedupTTL             time.Duration `validate:"gt=0"`

	// 连续相同的连接状态只记录一次
	ConnectivityDistinct bool

	// Webhook
	WebhookURL     string        `validate:"required,url"`
	WebhookTimeout time.Duration `validate:"gt=0"`

	// Object storage
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string `validate:"required"`
	S3Bucket           string `validate:"required"`
	S3Endpoint         string `validate:"omitempty,url"`

	// 摄像头名称 → 快照 key
	SnapshotKeys       map[string]string
	SnapshotDefaultKey string `validate:"required"`
}

func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")

	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load(envFile)

	snapshotKeys, err := parseSnapshotKeys(getEnv("SNAPSHOT_KEYS", "Front Door=latest-snapshot-front-door.jpg"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:               getEnv("PORT", "4000"),
		Debug:                    getEnvBool("DEBUG", false),
		EnvFile:                  envFile,
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		RingRefreshToken:         getEnv("RING_REFRESH_TOKEN", ""),
		RingSystemID:             getEnv("RING_SYSTEM_ID", ""),
		RingDebug:                getEnvBool("RING_DEBUG", false),
		RingAuthHost:             getEnv("RING_AUTH_HOST", "https://oauth.ring.com"),
		RingAPIHost:              getEnv("RING_API_HOST", "https://api.ring.com"),
		RingAppHost:              getEnv("RING_APP_HOST", "https://app.ring.com"),
		RingSnapsHost:            getEnv("RING_SNAPS_HOST", "https://app-snaps.ring.com"),
		ConnectivityPollInterval: getEnvDuration("RING_CONNECTIVITY_POLL_INTERVAL", 0),
		DingPollInterval:         getEnvDuration("RING_DING_POLL_INTERVAL", 5*time.Second),
		DingDedupTTL:             getEnvDuration("RING_DING_DEDUP_TTL", 10*time.Minute),
		ConnectivityDistinct:     getEnvBool("CONNECTIVITY_DISTINCT", true),
		WebhookURL:               getEnv("WEBHOOK_URL", ""),
		WebhookTimeout:           getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		AWSAccessKeyID:           getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:       getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSRegion:                getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:                 getEnv("AWS_S3_BUCKET_NAME", ""),
		S3Endpoint:               getEnv("S3_ENDPOINT", ""),
		SnapshotKeys:             snapshotKeys,
		SnapshotDefaultKey:       getEnv("SNAPSHOT_DEFAULT_KEY", DefaultSnapshotKey),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// parseSnapshotKeys 解析 "Front Door=front.jpg;Back Door=back.jpg"
func parseSnapshotKeys(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, key, ok := strings.Cut(pair, "=")
		name, key = strings.TrimSpace(name), strings.TrimSpace(key)
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("invalid SNAPSHOT_KEYS entry %q", pair)
		}
		keys[name] = key
	}
	return keys, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
