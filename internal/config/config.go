package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config carries everything the server and worker read from the environment.
type Config struct {
	DatabaseURL string
	HTTPAddr    string
	CORSOrigin  string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Split oversize messages before they hit the broker's hard limit
	MaxMessageBytes int
	SubChunkSize    int

	MaxRetryAttempts int
}

func Load() *Config {
	return &Config{
		DatabaseURL:      getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=bulk_upload port=5432 sslmode=disable"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		CORSOrigin:       getEnv("CORS_ORIGIN", "http://localhost:4200"),
		KafkaBrokers:     strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "bulk-upload-topic"),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "bulk-upload-consumer-group"),
		MaxMessageBytes:  getEnvInt("MAX_MESSAGE_BYTES", 900_000), // ~900KB to stay under the 1MB broker limit
		SubChunkSize:     getEnvInt("SUB_CHUNK_SIZE", 1000),
		MaxRetryAttempts: getEnvInt("MAX_RETRY_ATTEMPTS", 3),
	}
}

func InitDB(cfg *Config) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return db
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid value for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
