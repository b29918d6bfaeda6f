package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeHTTP   = "http"
	ModeMemory = "memory"
)

type Config struct {
	Port             string
	CRMMode          string
	CRMBaseURL       string
	CRMToken         string
	CRMSeedPath      string
	FetchRetries     int
	HTTPTimeout      time.Duration
	LogLevel         slog.Level
	CatalogPath      string
	Location         *time.Location
	SnapshotSchedule string
	SyncSchedule     string
	SyncDryRun       bool
	AllowedOrigins   []string
}

// FromEnv reads the environment, loading a .env file first when present.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	to := 15 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			to = d
		}
	}
	lvl := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		lvl = slog.LevelDebug
	}
	loc, err := time.LoadLocation(envOr("DASHBOARD_TZ", "UTC"))
	if err != nil {
		return Config{}, fmt.Errorf("DASHBOARD_TZ: %w", err)
	}
	mode := strings.ToLower(envOr("CRM_MODE", ModeHTTP))
	if mode != ModeHTTP && mode != ModeMemory {
		return Config{}, fmt.Errorf("CRM_MODE: unknown mode %q", mode)
	}
	token := os.Getenv("CRM_ACCESS_TOKEN")
	if token == "" {
		token = os.Getenv("PRIVATE_APP_ACCESS_TOKEN")
	}
	schedule := "@every 15m"
	if v, ok := os.LookupEnv("SNAPSHOT_SCHEDULE"); ok {
		schedule = strings.TrimSpace(v)
	}
	sync := "0 6 * * *"
	if v, ok := os.LookupEnv("SYNC_SCHEDULE"); ok {
		sync = strings.TrimSpace(v)
	}
	dry := false
	if v := os.Getenv("SYNC_DRY_RUN"); v != "" {
		if dry, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("SYNC_DRY_RUN: %w", err)
		}
	}
	return Config{
		Port:             envOr("PORT", "8080"),
		CRMMode:          mode,
		CRMBaseURL:       envOr("CRM_API_URL", "https://api.hubapi.com"),
		CRMToken:         token,
		CRMSeedPath:      os.Getenv("CRM_SEED_PATH"),
		FetchRetries:     atoiDef(os.Getenv("FETCH_RETRIES"), 2),
		HTTPTimeout:      to,
		LogLevel:         lvl,
		CatalogPath:      os.Getenv("CATALOG_PATH"),
		Location:         loc,
		SnapshotSchedule: schedule,
		SyncSchedule:     sync,
		SyncDryRun:       dry,
		AllowedOrigins:   csv(envOr("CORS_ALLOWED_ORIGINS", "*")),
	}, nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return d
	}
	return v
}

func csv(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
