// Package config reads the service configuration from the environment.
// cmd/server loads a .env file first via godotenv autoload, matching how
// the service is run in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ladderworks/challenge-api/internal/rating"
)

// Config is the full service configuration.
type Config struct {
	Port string

	// StoreBackend is "postgres" or "bolt".
	StoreBackend string
	BoltPath     string

	PostgresUser     string
	PostgresPassword string
	PGHost           string
	PGPort           string
	PGDatabase       string

	// RedisAddr enables the leaderboard cache when non-empty.
	RedisAddr string
	RedisDB   int

	StoreTimeout time.Duration

	Glicko rating.Params
}

// Load builds the configuration from environment variables, applying
// defaults for everything unset.
func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		StoreBackend: getEnv("STORE_BACKEND", "bolt"),
		BoltPath:     getEnv("BOLT_PATH", "challenge.db"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PGHost:           getEnv("PG_HOST", "localhost"),
		PGPort:           getEnv("PG_PORT", "5432"),
		PGDatabase:       os.Getenv("PG_DATABASE"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 5*time.Second),

		Glicko: rating.Params{
			Tau:               getEnvFloat("GLICKO_TAU", 0.5),
			DefaultRating:     getEnvFloat("DEFAULT_RATING", 1500),
			DefaultDeviation:  getEnvFloat("DEFAULT_DEVIATION", 200),
			DefaultVolatility: getEnvFloat("DEFAULT_VOLATILITY", 0.06),
		},
	}
}

// PostgresURL assembles the connection string for the postgres backend.
func (c Config) PostgresURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		c.PostgresUser, c.PostgresPassword, c.PGHost, c.PGPort, c.PGDatabase,
	)
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return v
}
