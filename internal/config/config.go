// Package config provides process configuration from the environment and the
// per-difficulty game tuning tables.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process-level settings.
type Config struct {
	DBPath        string
	Seed          int64
	Difficulty    string
	MaxWeeks      int
	APIPort       int // 0 disables the HTTP API
	AdminKey      string
	RandomOrgKey  string
	AutoplayWeeks int
	LogLevel      slog.Level
	CatalogPath   string // Optional JSON event catalog replacing the built-in one
	StartLocation string
	CORSOrigins   []string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func int64env(key string, def int64) int64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func levelenv(key string, def slog.Level) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(getenv(key, ""))); err != nil {
		return def
	}
	return lvl
}

func listenv(key string) []string {
	var out []string
	for _, s := range strings.Split(getenv(key, ""), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory.
func Load() Config {
	_ = godotenv.Load()

	maxWeeks := atoienv("TRADESIM_MAX_WEEKS", 52)
	if maxWeeks <= 0 {
		maxWeeks = 52
	}
	difficulty := strings.ToLower(getenv("TRADESIM_DIFFICULTY", "normal"))
	if _, ok := presets[difficulty]; !ok {
		difficulty = "normal"
	}

	return Config{
		DBPath:        getenv("TRADESIM_DB", "data/tradesim.db"),
		Seed:          int64env("TRADESIM_SEED", 42),
		Difficulty:    difficulty,
		MaxWeeks:      maxWeeks,
		APIPort:       atoienv("TRADESIM_API_PORT", 8080),
		AdminKey:      getenv("TRADESIM_ADMIN_KEY", ""),
		RandomOrgKey:  getenv("RANDOM_ORG_API_KEY", ""),
		AutoplayWeeks: atoienv("TRADESIM_AUTOPLAY_WEEKS", 0),
		LogLevel:      levelenv("TRADESIM_LOG_LEVEL", slog.LevelInfo),
		CatalogPath:   getenv("TRADESIM_CATALOG", ""),
		StartLocation: getenv("TRADESIM_START_LOCATION", "harbor"),
		CORSOrigins:   listenv("CORS_ORIGINS"),
	}
}
