package config

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Server configuration
	ServerPort  string
	Environment string

	// ServerID tags every change event written by this server; the
	// (ServerID, seqno) pair is the resume cursor handed to clients.
	ServerID string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis configuration
	RedisAddress  string
	StreamChannel string

	// JWT configuration
	JWTSecret string

	// Sessions minted on password auth live this long; expiry is fixed at
	// mint time and is not refreshed by activity.
	SessionTTL time.Duration

	FrontendAddress string
}

// Load loads configuration from environment variables. The returned struct
// is passed into constructors explicitly; nothing reads it through a global.
func Load() Config {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	// Load .env file if it exists
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			log.Warn().Err(err).Msg("error loading .env file")
		}
	}

	ttlDays, err := strconv.Atoi(getEnv("SESSION_TTL_DAYS", "7"))
	if err != nil || ttlDays < 1 {
		ttlDays = 7
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateRandomSecret(32)
		log.Info().Msg("generated random JWT secret")
	}

	return Config{
		ServerPort:      getEnv("PORT", "8080"),
		Environment:     getEnv("ENV", "development"),
		ServerID:        getEnv("SERVER_ID", "srv-1"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "filmware"),
		RedisAddress:    getEnv("REDIS_ADDRESS", "localhost:6379"),
		StreamChannel:   getEnv("STREAM_CHANNEL", "stream"),
		JWTSecret:       jwtSecret,
		SessionTTL:      time.Duration(ttlDays) * 24 * time.Hour,
		FrontendAddress: getEnv("FRONTEND_ADDRESS", "https://production-frontend.com"),
	}
}

// generateRandomSecret generates a random secret of the specified length
func generateRandomSecret(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		log.Fatal().Err(err).Msg("unable to generate secret")
	}
	return base64.RawStdEncoding.EncodeToString(buf)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
