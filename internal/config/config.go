/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

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

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Lock backend selection for cascade serialization.
type LockBackend string

const (
	LockLocal LockBackend = "local"
	LockRedis LockBackend = "redis"
)

// Config holds runtime configuration.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string

	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheEnabled  bool
	CalendarTTL   time.Duration

	LockBackend   LockBackend
	LockLease     time.Duration
	LockWait      time.Duration
	InstanceID    string
	NATSURL       string // empty keeps events in-process
	NATSToken     string

	SlotSearchLimit       int // candidates tried per available-slot search
	WorkingDaySearchLimit int // days scanned for the next working day
	ScheduleScanDays      int // days walked before a schedule is declared unreachable

	LegacyEnvWarnings []string
}

// Load reads configuration from the environment, after merging a .env file from the
// working directory when one exists. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	legacyDSN := os.Getenv("SUPABASE_DB_URL")
	defaultBackend := DatabaseSQLite
	if legacyDSN != "" {
		defaultBackend = DatabasePostgres
	}

	cfg := &Config{
		Environment: getEnvAny([]string{"SHOPFLOOR_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"SHOPFLOOR_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"SHOPFLOOR_HTTP_PORT"}, 8080),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"SHOPFLOOR_DB_BACKEND"}, string(defaultBackend))),
		DBDSN:       getEnvAny([]string{"SHOPFLOOR_DB_DSN", "SUPABASE_DB_URL"}, "production.db"),
		MetricsBind: getEnvAny([]string{"SHOPFLOOR_METRICS_BIND"}, "127.0.0.1:9000"),

		TracingEnabled:    getEnvBoolAny([]string{"SHOPFLOOR_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SHOPFLOOR_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"SHOPFLOOR_TRACING_SAMPLE_RATE"}, 1.0),

		RedisAddr:     getEnvAny([]string{"SHOPFLOOR_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"SHOPFLOOR_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"SHOPFLOOR_REDIS_DB"}, 0),
		CacheEnabled:  getEnvBoolAny([]string{"SHOPFLOOR_CACHE_ENABLED"}, false),
		CalendarTTL:   time.Duration(getEnvIntAny([]string{"SHOPFLOOR_CALENDAR_TTL_SECONDS"}, 600)) * time.Second,

		LockBackend: LockBackend(getEnvAny([]string{"SHOPFLOOR_LOCK_BACKEND"}, string(LockLocal))),
		LockLease:   time.Duration(getEnvIntAny([]string{"SHOPFLOOR_LOCK_LEASE_SECONDS"}, 30)) * time.Second,
		LockWait:    time.Duration(getEnvIntAny([]string{"SHOPFLOOR_LOCK_WAIT_SECONDS"}, 10)) * time.Second,
		InstanceID:  getEnvAny([]string{"SHOPFLOOR_INSTANCE_ID"}, ""),
		NATSURL:     getEnvAny([]string{"SHOPFLOOR_NATS_URL"}, ""),
		NATSToken:   getEnvAny([]string{"SHOPFLOOR_NATS_TOKEN"}, ""),

		SlotSearchLimit:       getEnvIntAny([]string{"SHOPFLOOR_SLOT_SEARCH_LIMIT"}, 100),
		WorkingDaySearchLimit: getEnvIntAny([]string{"SHOPFLOOR_WORKING_DAY_SEARCH_LIMIT"}, 30),
		ScheduleScanDays:      getEnvIntAny([]string{"SHOPFLOOR_SCHEDULE_SCAN_DAYS"}, 1096),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.DBBackend {
	case DatabasePostgres, DatabaseMySQL, DatabaseSQLite:
	default:
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("SHOPFLOOR_DB_DSN must be provided")
	}
	switch c.LockBackend {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("unsupported lock backend %q", c.LockBackend)
	}
	if c.LockBackend == LockRedis && c.RedisAddr == "" {
		return fmt.Errorf("SHOPFLOOR_REDIS_ADDR is required for the redis lock backend")
	}
	if c.SlotSearchLimit <= 0 || c.WorkingDaySearchLimit <= 0 || c.ScheduleScanDays <= 0 {
		return fmt.Errorf("search limits must be positive")
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("SHOPFLOOR_TRACING_SAMPLE_RATE must be between 0 and 1")
	}
	return nil
}

// HTTPAddr is the listen address of the API server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"SUPABASE_DB_URL": "use SHOPFLOOR_DB_DSN with SHOPFLOOR_DB_BACKEND=postgres",
		"DATABASE_URL":    "use SHOPFLOOR_DB_DSN",
		"REDIS_URL":       "use SHOPFLOOR_REDIS_ADDR",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
