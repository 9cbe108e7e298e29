package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	DBDriver   string
	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	GraphAPIURL     string
	GraphAPIVersion string

	MediaFetchTimeout time.Duration
	FlowMaxChainDepth int
	SendRatePerSecond float64
	SendBurst         int
	MaxBodyBytes      int64

	LogPath  string
	LogLevel string

	RabbitMQURL      string
	RabbitMQExchange string

	// DashboardToken enables the websocket feed when set.
	DashboardToken string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port: getEnv("PORT", "8080"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBPath:     getEnv("DB_PATH", "./whatsapp.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "whatsapp"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		GraphAPIURL:     getEnv("GRAPH_API_URL", "https://graph.facebook.com"),
		GraphAPIVersion: getEnv("GRAPH_API_VERSION", "v19.0"),

		MediaFetchTimeout: getEnvDuration("MEDIA_FETCH_TIMEOUT", 20*time.Second),
		FlowMaxChainDepth: getEnvInt("FLOW_MAX_CHAIN_DEPTH", 16),
		SendRatePerSecond: getEnvFloat("SEND_RATE_PER_SECOND", 20),
		SendBurst:         getEnvInt("SEND_BURST", 5),
		MaxBodyBytes:      int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),

		LogPath:  getEnv("LOG_PATH", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "whatsapp.events"),

		DashboardToken: getEnv("DASHBOARD_TOKEN", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer for %s: %q, using %d", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: invalid number for %s: %q, using %v", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration for %s: %q, using %s", key, value, fallback)
		return fallback
	}
	return parsed
}
