package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	BotToken string
	OwnerID  int64
	BotName  string

	DBDsn string

	HealthAddr string
}

// Load reads the environment, honoring a .env file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BotToken:   os.Getenv("BOT_TOKEN"),
		BotName:    os.Getenv("BOT_NAME"),
		DBDsn:      getEnvOrDefault("DB_DSN", "data/bot.db"),
		HealthAddr: getEnvOrDefault("HEALTH_ADDR", "0.0.0.0:8080"),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	rawOwner := os.Getenv("OWNER_ID")
	if rawOwner == "" {
		return nil, fmt.Errorf("OWNER_ID is required")
	}
	ownerID, err := strconv.ParseInt(rawOwner, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("OWNER_ID must be a numeric user id: %w", err)
	}
	cfg.OwnerID = ownerID

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
