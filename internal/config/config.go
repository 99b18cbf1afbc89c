package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var envOnce sync.Once

// loadEnvOnce loads the first .env file found under a handful of
// conventional locations, once per process. Grounded on the teacher's
// internal/config/env.go search order, trimmed to the lookup this
// core actually relies on (no container-detection branching: the
// fields Load reads all have sane defaults regardless of where the
// process runs).
func loadEnvOnce() {
	envOnce.Do(func() {
		candidates := []string{".env", "../.env", "../../.env"}
		if root := os.Getenv("APP_ROOT"); root != "" {
			candidates = append(candidates, filepath.Join(root, ".env"))
		}
		for _, path := range candidates {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := godotenv.Load(path); err == nil {
				logrus.WithField("path", path).Debug("loaded .env file")
				return
			}
		}
	})
}

// getEnv reads key from the environment, falling back to fallback.
func getEnv(key, fallback string) string {
	loadEnvOnce()
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Config is the deploy ingestion core's runtime configuration, loaded
// from the environment (ambient concern; fields follow the
// collaborators named in spec §6 External Interfaces).
type Config struct {
	Port string

	// LogLevel is a logrus level name (spec §1 ambient logging).
	LogLevel string

	// StagingRoot is the local-disk root for per-deploy staging
	// directories (spec §4.2).
	StagingRoot string
	// BlobRoot is the local-disk root the erasure-coded blob store
	// writes published artifacts under (spec §6 "Blob store").
	BlobRoot string

	DatabaseURL string
	RedisURL    string

	// SessionSecret signs the session cookie JWT (spec §3 "Session
	// state").
	SessionSecret string
	SessionTTL    time.Duration

	// CentralSearchURL is the Maven Central search endpoint probed by
	// the central-shadow check (spec §4.3.4). Empty uses
	// central.DefaultSearchURL.
	CentralSearchURL string
	// CentralAllowlist is a "group:artifact" set permitted to shadow
	// an upstream Central release without failing validation.
	CentralAllowlist map[string]bool

	ErasureDataShards   int
	ErasureParityShards int

	RequestTimeout time.Duration
}

// Load reads Config from the environment, applying defaults for every
// field not explicitly set.
func Load() (*Config, error) {
	loadEnvOnce()

	dataShards, _ := strconv.Atoi(getEnv("ERASURE_DATA_SHARDS", "4"))
	parityShards, _ := strconv.Atoi(getEnv("ERASURE_PARITY_SHARDS", "2"))
	sessionTTLSeconds, _ := strconv.Atoi(getEnv("SESSION_TTL_SECONDS", "86400"))
	requestTimeoutSeconds, _ := strconv.Atoi(getEnv("REQUEST_TIMEOUT_SECONDS", "30"))

	return &Config{
		Port: getEnv("PORT", "8080"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		StagingRoot: getEnv("STAGING_ROOT", "./data/staging"),
		BlobRoot:    getEnv("BLOB_ROOT", "./data/blobs"),

		DatabaseURL: getEnv("DATABASE_URL", "postgresql://localhost:5432/deploy_ingest?sslmode=disable"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		SessionSecret: getEnv("SESSION_SECRET", "development-only-secret"),
		SessionTTL:    time.Duration(sessionTTLSeconds) * time.Second,

		CentralSearchURL: getEnv("CENTRAL_SEARCH_URL", ""),
		CentralAllowlist: parseAllowlist(getEnv("CENTRAL_ALLOWLIST", "")),

		ErasureDataShards:   dataShards,
		ErasureParityShards: parityShards,

		RequestTimeout: time.Duration(requestTimeoutSeconds) * time.Second,
	}, nil
}

// parseAllowlist reads a comma-separated "group:artifact,group:artifact"
// list into a set, matching the teacher's config-driven policy-table
// pattern (internal/service/security_policies.go).
func parseAllowlist(raw string) map[string]bool {
	set := map[string]bool{}
	if raw == "" {
		return set
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			set[entry] = true
		}
	}
	return set
}
