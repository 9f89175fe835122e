package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

type Config struct {
	MongoURI       string
	DBName         string
	JWTSecret      string
	AccessTokenTTL time.Duration
	Port           string
	GinMode        string
	LogLevel       string
	RedisAddr      string
	PriceCacheTTL  time.Duration
	PayPalClientID string
	UploadDir      string
}

// Load reads .env when present and fills AppEnv from the environment.
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	return Config{
		MongoURI:       getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		DBName:         getEnvOrDefault("DB_NAME", "storefront"),
		JWTSecret:      getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL: getDurationEnv("ACCESS_TOKEN_TTL", 30, 24*time.Hour),
		Port:           getEnvOrDefault("PORT", "5000"),
		GinMode:        getEnvOrDefault("GIN_MODE", "release"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		RedisAddr:      getEnvOrDefault("REDIS_ADDR", ""),
		PriceCacheTTL:  getDurationEnv("PRICE_CACHE_TTL", 15, time.Minute),
		PayPalClientID: getEnvOrDefault("PAYPAL_CLIENT_ID", ""),
		UploadDir:      getEnvOrDefault("UPLOAD_DIR", "uploads"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}
