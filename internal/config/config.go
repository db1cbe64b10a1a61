// Package config reads runtime settings from the environment. A .env file in
// the working directory is loaded first when present; real environment
// variables win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const prefix = "TRUSTVAULT_"

type Config struct {
	Port     string
	DBPath   string
	LogLevel string
	// LogFormat is "text" or "json".
	LogFormat string
	Timezone  *time.Location
	Currency  string

	RolloverSchedule  string
	LowCreditSchedule string
	CleanupSchedule   string

	EmailProvider string
	FromEmail     string
	FromName      string
	PostmarkToken string
	SendGridKey   string

	AdminToken      string
	RedeemLimit     int
	RedeemWindow    time.Duration
	WSOrigins       []string
	ShutdownTimeout time.Duration
}

// Load reads .env (if any) and the TRUSTVAULT_ environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DBPath:            getEnv("DB_PATH", "trustvault.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
		Currency:          strings.ToUpper(getEnv("CURRENCY", "KES")),
		RolloverSchedule:  getEnv("ROLLOVER_SCHEDULE", "@every 60s"),
		LowCreditSchedule: getEnv("LOW_CREDIT_SCHEDULE", "@every 30s"),
		CleanupSchedule:   getEnv("CLEANUP_SCHEDULE", "@every 10m"),
		EmailProvider:     strings.ToLower(getEnv("EMAIL_PROVIDER", "none")),
		FromEmail:         getEnv("FROM_EMAIL", "noreply@trustvault.local"),
		FromName:          getEnv("FROM_NAME", "Trustvault"),
		PostmarkToken:     os.Getenv(prefix + "POSTMARK_TOKEN"),
		SendGridKey:       os.Getenv(prefix + "SENDGRID_API_KEY"),
		AdminToken:        os.Getenv(prefix + "ADMIN_TOKEN"),
		RedeemLimit:       getEnvInt("REDEEM_RATE_LIMIT", 10),
		RedeemWindow:      time.Second * time.Duration(getEnvInt("REDEEM_RATE_WINDOW_SECONDS", 60)),
		ShutdownTimeout:   time.Second * time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10)),
	}

	tz := getEnv("TIMEZONE", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%sTIMEZONE %q: %w", prefix, tz, err)
	}
	cfg.Timezone = loc

	if origins := os.Getenv(prefix + "WS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.WSOrigins = append(cfg.WSOrigins, o)
			}
		}
	}

	switch cfg.EmailProvider {
	case "none", "postmark", "sendgrid":
	default:
		return nil, fmt.Errorf("%sEMAIL_PROVIDER %q: want none, postmark or sendgrid", prefix, cfg.EmailProvider)
	}
	if cfg.EmailProvider == "postmark" && cfg.PostmarkToken == "" {
		return nil, fmt.Errorf("%sPOSTMARK_TOKEN is required for the postmark provider", prefix)
	}
	if cfg.EmailProvider == "sendgrid" && cfg.SendGridKey == "" {
		return nil, fmt.Errorf("%sSENDGRID_API_KEY is required for the sendgrid provider", prefix)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(prefix + key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(prefix + key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
