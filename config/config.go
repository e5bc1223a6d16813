package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level settings so main stays lean.
type Config struct {
	Addr          string
	StorageDir    string
	AdminToken    string
	ElectionHours int
	SkewWindow    time.Duration
}

// FromEnv builds the configuration from environment variables with
// development defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("EVOTE_ADDR", ":8080"),
		StorageDir:    envOr("EVOTE_STORAGE_DIR", "evote_data"),
		AdminToken:    envOr("EVOTE_ADMIN_TOKEN", ""),
		ElectionHours: 24,
		SkewWindow:    5 * time.Minute,
	}
	if hours, err := strconv.Atoi(os.Getenv("EVOTE_ELECTION_HOURS")); err == nil && hours > 0 {
		cfg.ElectionHours = hours
	}
	if seconds, err := strconv.Atoi(os.Getenv("EVOTE_SKEW_SECONDS")); err == nil && seconds > 0 {
		cfg.SkewWindow = time.Duration(seconds) * time.Second
	}
	return cfg
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
