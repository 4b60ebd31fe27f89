package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis (optional; enables distributed coordination)
	RedisURL string

	// NATS (optional; enables JetStream notifications)
	NATSURL           string
	NATSSubjectPrefix string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Matchmaking
	MatchmakingInterval time.Duration
	SettlementInterval  time.Duration

	// Rate limiting
	RateLimitPerMinute int
}

func Load() (*Config, error) {
	// Load .env if present.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		NATSURL:             getEnv("NATS_URL", ""),
		NATSSubjectPrefix:   getEnv("NATS_SUBJECT_PREFIX", "matchmaking.events"),
		JWTSecret:           getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:       parseDuration(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),
		MatchmakingInterval: parseDuration(getEnv("MATCHMAKING_INTERVAL", "10s"), 10*time.Second),
		SettlementInterval:  parseDuration(getEnv("SETTLEMENT_INTERVAL", "15s"), 15*time.Second),
		RateLimitPerMinute:  60,
		CORSAllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
