package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	UpstreamURL    string // v2 API base
	LegacyURL      string // legacy common_api base (logout lives there)
	JWTSecret      string
	SessionFile    string
	ClassifyPolicy string // "simple" or "refined"
	PollInterval   time.Duration
	ResendCooldown time.Duration
}

func Load() *Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8081"),
		UpstreamURL:    getEnv("UPSTREAM_URL", "https://men4u.xyz"),
		LegacyURL:      getEnv("UPSTREAM_LEGACY_URL", "https://men4u.xyz"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		SessionFile:    getEnv("SESSION_FILE", "cds-session.json"),
		ClassifyPolicy: getEnv("CLASSIFY_POLICY", "refined"),
		PollInterval:   getDuration("POLL_INTERVAL", 60*time.Second),
		ResendCooldown: getDuration("OTP_RESEND_COOLDOWN", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
