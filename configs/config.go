package config

import (
	"os"
	"strconv"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Publishing struct {
	BatchSize            int
	MaxRetries           int
	RetryBaseDelayMin    int
	ProcessingChecks     int
	ProcessingIntervalMS int
	CarouselItemDelayMS  int
}

type Config struct {
	GraphAPIBaseURL        string
	GraphAPIVersion        string
	PostgresURI            string
	RedisURI               string
	SecretKey              string
	NotificationWebhookURL string
	Publishing             Publishing
	R2                     R2
}

func LoadConfig() *Config {
	return &Config{
		GraphAPIBaseURL:        getEnv("GRAPH_API_BASE_URL", "https://graph.instagram.com"),
		GraphAPIVersion:        getEnv("GRAPH_API_VERSION", "v21.0"),
		PostgresURI:            getEnv("POSTGRES_URI", ""),
		RedisURI:               getEnv("REDIS_URI", ""),
		SecretKey:              getEnv("SECRET_KEY", ""),
		NotificationWebhookURL: getEnv("NOTIFICATION_WEBHOOK_URL", ""),
		Publishing: Publishing{
			BatchSize:            getEnvInt("PUBLISH_BATCH_SIZE", 10),
			MaxRetries:           getEnvInt("PUBLISH_MAX_RETRIES", 3),
			RetryBaseDelayMin:    getEnvInt("PUBLISH_RETRY_BASE_DELAY_MIN", 15),
			ProcessingChecks:     getEnvInt("PUBLISH_PROCESSING_CHECKS", 30),
			ProcessingIntervalMS: getEnvInt("PUBLISH_PROCESSING_INTERVAL_MS", 2000),
			CarouselItemDelayMS:  getEnvInt("PUBLISH_CAROUSEL_ITEM_DELAY_MS", 500),
		},
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
