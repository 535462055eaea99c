package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Delivery DeliveryConfig
	Worker   WorkerConfig
	Limits   LimitsConfig
}

type ServerConfig struct {
	Address string
}

type RedisConfig struct {
	Address     string
	Password    string
	DB          int
	CampaignTTL time.Duration
}

type PostgresConfig struct {
	URL string
}

type DeliveryConfig struct {
	APIURL string
}

type WorkerConfig struct {
	BatchSize            int
	MaxConcurrentBatches int
	CycleDelay           time.Duration
	IdleWait             time.Duration
	LongIdleWait         time.Duration
	EmptyCycleLimit      int
}

type LimitsConfig struct {
	MaxMessagesPerCampaign int
	MaxCSVSizeMB           int
}

func LoadAll() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Redis: RedisConfig{
			Address:     mustEnv("REDIS_ADDR"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          getEnvInt("REDIS_DB", 0),
			CampaignTTL: time.Duration(getEnvInt("CAMPAIGN_TTL_SECONDS", 604800)) * time.Second,
		},
		Postgres: PostgresConfig{
			URL: mustEnv("POSTGRES_URL"),
		},
		Delivery: DeliveryConfig{
			APIURL: mustEnv("DELIVERY_API_URL"),
		},
		Worker: WorkerConfig{
			BatchSize:            getEnvInt("BATCH_SIZE", 100),
			MaxConcurrentBatches: getEnvInt("MAX_CONCURRENT_BATCHES", 5),
			CycleDelay:           time.Duration(getEnvInt("SEND_DELAY_MS", 0)) * time.Millisecond,
			IdleWait:             time.Duration(getEnvInt("IDLE_WAIT_SECONDS", 1)) * time.Second,
			LongIdleWait:         time.Duration(getEnvInt("LONG_IDLE_WAIT_SECONDS", 5)) * time.Second,
			EmptyCycleLimit:      getEnvInt("EMPTY_CYCLE_LIMIT", 10),
		},
		Limits: LimitsConfig{
			MaxMessagesPerCampaign: getEnvInt("MAX_MESSAGES_PER_CAMPAIGN", 100000),
			MaxCSVSizeMB:           getEnvInt("MAX_CSV_SIZE_MB", 50),
		},
	}

	validate(cfg)
	return cfg, nil
}

func validate(cfg *Config) {
	if cfg.Worker.BatchSize <= 0 {
		panic("BATCH_SIZE must be > 0")
	}
	if cfg.Worker.MaxConcurrentBatches <= 0 {
		panic("MAX_CONCURRENT_BATCHES must be > 0")
	}
	if cfg.Worker.CycleDelay < 0 {
		panic("SEND_DELAY_MS must be >= 0")
	}
	if cfg.Worker.EmptyCycleLimit <= 0 {
		panic("EMPTY_CYCLE_LIMIT must be > 0")
	}
	if cfg.Limits.MaxMessagesPerCampaign <= 0 {
		panic("MAX_MESSAGES_PER_CAMPAIGN must be > 0")
	}
	if cfg.Limits.MaxCSVSizeMB <= 0 {
		panic("MAX_CSV_SIZE_MB must be > 0")
	}
}

func mustEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("missing required env var: %s", key))
	}
	return val
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}
