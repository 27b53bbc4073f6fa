// Package environment reads daemon configuration from the process
// environment, with a .env file as a development convenience.
package environment

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/rsalesc/robox.io/internal/xdg"
)

type Config struct {
	AWSRegion       string
	SubmReqQueueURL string
	NATSUrl         string
	NATSSubject     string
	CacheDir        string
	SandboxBackend  string // "isolate" or "proc"
	Parallelism     int
}

func Read() (*Config, error) {
	// a missing .env file is fine in production
	_ = godotenv.Load()

	cfg := &Config{
		AWSRegion:       getenvDefault("AWS_REGION", "eu-central-1"),
		SubmReqQueueURL: os.Getenv("SUBM_REQ_QUEUE_URL"),
		NATSUrl:         os.Getenv("NATS_URL"),
		NATSSubject:     getenvDefault("NATS_SUBJECT", "judge.results"),
		CacheDir:        getenvDefault("CACHE_DIR", xdg.AppCacheDir("robox-judge")),
		SandboxBackend:  getenvDefault("SANDBOX_BACKEND", "isolate"),
	}

	if cfg.SubmReqQueueURL == "" {
		return nil, fmt.Errorf("SUBM_REQ_QUEUE_URL is not set")
	}
	if cfg.SandboxBackend != "isolate" && cfg.SandboxBackend != "proc" {
		return nil, fmt.Errorf("invalid SANDBOX_BACKEND %q", cfg.SandboxBackend)
	}

	parallelism := getenvDefault("PARALLELISM", "1")
	n, err := strconv.Atoi(parallelism)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("invalid PARALLELISM %q", parallelism)
	}
	cfg.Parallelism = n

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
