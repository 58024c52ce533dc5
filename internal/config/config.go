package config

import (
	"os"
	"strconv"
	"time"

	"sitemedic/internal/models"
)

// Load returns the server configuration from environment variables
func Load() models.Config {
	return models.Config{
		Port:          getEnv("PORT", "9080"),
		DBPath:        getEnv("DB_PATH", "sitemedic.db"),
		RulesPath:     getEnv("RULES_PATH", ""),
		ScanWorkers:   getEnvInt("SCAN_WORKERS", 2),
		ScanPollSec:   getEnvInt("SCAN_POLL_SEC", 3),
		SessionTTL:    time.Duration(getEnvInt("SESSION_TTL_MIN", 15)) * time.Minute,
		SweepInterval: time.Duration(getEnvInt("SWEEP_INTERVAL_SEC", 60)) * time.Second,
		MaxReadBytes:  int64(getEnvInt("MAX_READ_BYTES", 5*1024*1024)),
		ReadsPerSec:   float64(getEnvInt("READS_PER_SEC", 50)),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
