// Package config loads Handspread's runtime settings from the environment,
// the way cmd/pipeline loads DEEPSEEK_API_KEY: a best-effort .env load
// followed by plain os.Getenv reads with defaults.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/samay58/handspread/internal/valuemodel"
)

// Config bundles everything AnalyzeComps needs to build its collaborators.
type Config struct {
	FinnhubAPIKey     string
	EdgarUserAgent    string
	MarketTTL         time.Duration
	MarketConcurrency int
}

// Load reads FINNHUB_API_KEY and EDGARPACK_USER_AGENT (both required),
// plus the optional MARKET_TTL_SECONDS (default 300) and
// MARKET_CONCURRENCY (default 8). A missing .env file is not an error —
// the process may already have its environment set by the caller.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("handspread: no .env file found, assuming environment variables are set")
	}

	apiKey := os.Getenv("FINNHUB_API_KEY")
	if apiKey == "" {
		return Config{}, newInvalidInput("FINNHUB_API_KEY is required")
	}
	userAgent := os.Getenv("EDGARPACK_USER_AGENT")
	if userAgent == "" {
		return Config{}, newInvalidInput("EDGARPACK_USER_AGENT is required (SEC requires a contact-identifying User-Agent)")
	}

	ttlSeconds := envInt("MARKET_TTL_SECONDS", 300)
	concurrency := envInt("MARKET_CONCURRENCY", 8)

	return Config{
		FinnhubAPIKey:     apiKey,
		EdgarUserAgent:    userAgent,
		MarketTTL:         time.Duration(ttlSeconds) * time.Second,
		MarketConcurrency: concurrency,
	}, nil
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("handspread: invalid %s=%q, using default %d", key, raw, def)
		return def
	}
	return v
}

// InvalidInputError is the error config.Load returns for missing required
// settings; it carries valuemodel.ErrInvalidInput so callers can route it
// through the same error taxonomy the engine uses.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string { return e.Message }

func newInvalidInput(msg string) error { return &InvalidInputError{Message: msg} }

// Kind reports the error taxonomy kind, always valuemodel.ErrInvalidInput.
func (e *InvalidInputError) Kind() valuemodel.ErrorKind { return valuemodel.ErrInvalidInput }
