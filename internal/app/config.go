package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// State backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds the process settings. The routing configuration (providers,
// aliases, buckets) lives in its own file or env blob and is loaded
// separately; this struct only covers how the process runs.
type Config struct {
	ListenAddr string
	LogLevel   string

	// ConfigPath is the routing config file; LLM_ROUTER_CONFIG_JSON
	// overrides it with an inline blob.
	ConfigPath string

	// MasterKeyHash is the bcrypt hash of the master key. When set it wins
	// over the plaintext key from the routing config.
	MasterKeyHash string

	StateBackend      string
	StateFilePath     string
	SQLiteDSN         string
	CandidateStateTTL time.Duration

	DebugRouting        bool
	OriginRetryAttempts int
	MaxRequestBodyBytes int64
	RequestTimeout      time.Duration

	CORSOrigins    []string // allowed CORS origins; empty = ["*"]
	RateLimitRPS   int      // inbound requests per second per IP
	RateLimitBurst int      // burst capacity per IP

	IdempotencyTTL        time.Duration
	IdempotencyMaxEntries int

	OtelEnabled  bool
	OtelEndpoint string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr: getEnv("LLM_ROUTER_LISTEN_ADDR", ":8080"),
		LogLevel:   getEnv("LLM_ROUTER_LOG_LEVEL", "info"),
		ConfigPath: getEnv("LLM_ROUTER_CONFIG", "config.json"),

		MasterKeyHash: getEnv("LLM_ROUTER_MASTER_KEY_HASH", ""),

		StateBackend:      getEnv("LLM_ROUTER_STATE_BACKEND", BackendMemory),
		StateFilePath:     getEnv("LLM_ROUTER_STATE_FILE_PATH", "llmrouter-state.json"),
		SQLiteDSN:         getEnv("LLM_ROUTER_SQLITE_DSN", "file:llmrouter.sqlite"),
		CandidateStateTTL: time.Duration(getEnvInt("LLM_ROUTER_CANDIDATE_STATE_TTL_MS", 24*60*60*1000)) * time.Millisecond,

		DebugRouting:        getEnvBool("LLM_ROUTER_DEBUG_ROUTING", false),
		OriginRetryAttempts: getEnvInt("LLM_ROUTER_ORIGIN_RETRY_ATTEMPTS", 1),
		MaxRequestBodyBytes: getEnvInt64("LLM_ROUTER_MAX_REQUEST_BODY_BYTES", 1<<20),
		RequestTimeout:      time.Duration(getEnvInt("LLM_ROUTER_REQUEST_TIMEOUT_MS", 90000)) * time.Millisecond,

		CORSOrigins:    getEnvStringSlice("LLM_ROUTER_CORS_ORIGINS", nil),
		RateLimitRPS:   getEnvInt("LLM_ROUTER_RATE_LIMIT_RPS", 60),
		RateLimitBurst: getEnvInt("LLM_ROUTER_RATE_LIMIT_BURST", 120),

		IdempotencyTTL:        time.Duration(getEnvInt("LLM_ROUTER_IDEMPOTENCY_TTL_MS", 60000)) * time.Millisecond,
		IdempotencyMaxEntries: getEnvInt("LLM_ROUTER_IDEMPOTENCY_MAX_ENTRIES", 1024),

		OtelEnabled:  getEnvBool("LLM_ROUTER_OTEL_ENABLED", false),
		OtelEndpoint: getEnv("LLM_ROUTER_OTEL_ENDPOINT", "localhost:4318"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values for obviously invalid settings.
func (c Config) Validate() error {
	switch c.StateBackend {
	case BackendMemory, BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("LLM_ROUTER_STATE_BACKEND must be memory, file, or sqlite, got %q", c.StateBackend)
	}
	if c.StateBackend == BackendFile && c.StateFilePath == "" {
		return fmt.Errorf("LLM_ROUTER_STATE_FILE_PATH must be set for the file backend")
	}
	if c.CandidateStateTTL <= 0 {
		return fmt.Errorf("LLM_ROUTER_CANDIDATE_STATE_TTL_MS must be > 0, got %v", c.CandidateStateTTL)
	}
	if c.OriginRetryAttempts < 1 {
		return fmt.Errorf("LLM_ROUTER_ORIGIN_RETRY_ATTEMPTS must be >= 1, got %d", c.OriginRetryAttempts)
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("LLM_ROUTER_MAX_REQUEST_BODY_BYTES must be > 0, got %d", c.MaxRequestBodyBytes)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("LLM_ROUTER_REQUEST_TIMEOUT_MS must be > 0, got %v", c.RequestTimeout)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("LLM_ROUTER_RATE_LIMIT_RPS must be > 0, got %d", c.RateLimitRPS)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("LLM_ROUTER_RATE_LIMIT_BURST must be > 0, got %d", c.RateLimitBurst)
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("LLM_ROUTER_IDEMPOTENCY_TTL_MS must be > 0, got %v", c.IdempotencyTTL)
	}
	if c.IdempotencyMaxEntries <= 0 {
		return fmt.Errorf("LLM_ROUTER_IDEMPOTENCY_MAX_ENTRIES must be > 0, got %d", c.IdempotencyMaxEntries)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvStringSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}
