package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RequireServiceToken makes the flow API demand a bearer token signed
	// with ServiceSigningKey.
	RequireServiceToken bool
}

// Verification configures the remote verification service client.
type Verification struct {
	BaseURL           string
	Timeout           time.Duration
	EnableDocumentOCR bool
	FailureThreshold  int
	Cooldown          time.Duration
}

// Camera selects the capture device. Directories take precedence over URLs
// when both are set for a facing mode.
type Camera struct {
	UserDir        string
	EnvironmentDir string
	UserURL        string
	EnvironmentURL string
}

// Redis backs the session store. Empty URL means in-memory sessions.
type Redis struct {
	URL          string
	SessionTTL   time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres backs the report archive. Empty DSN means an in-memory archive.
type Postgres struct {
	DSN string
}

// Kafka receives audit events. No brokers means audit stays in memory.
type Kafka struct {
	Brokers     []string
	Topic       string
	Partitions  int
	Replication int
}

// Flow selects the flow configuration source. ConfigURL wins over
// ConfigFile; with neither set the static default flow is served.
type Flow struct {
	ConfigURL  string
	ConfigFile string
}

// Audit configures pseudonymization and buffering of audit events.
type Audit struct {
	HashKey    string
	BufferSize int
}

// RateLimit caps API requests per client IP. Zero requests disables it.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

type Log struct {
	Level  string
	Format string
}

// Config is the full process configuration.
type Config struct {
	Server            Server
	Verification      Verification
	Camera            Camera
	Redis             Redis
	Postgres          Postgres
	Kafka             Kafka
	Flow              Flow
	Audit             Audit
	RateLimit         RateLimit
	Log               Log
	ServiceSigningKey string
	ServiceIssuer     string
	ServiceAudience   string
	ServiceTokenTTL   time.Duration
}

// FromEnv builds the configuration from environment variables so main stays
// lean. Every setting has a development default.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:                envString("KYCFLOW_ADDR", ":8080"),
			ReadTimeout:         envDuration("KYCFLOW_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:        envDuration("KYCFLOW_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout:     envDuration("KYCFLOW_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequireServiceToken: envBool("KYCFLOW_REQUIRE_TOKEN", false),
		},
		Verification: Verification{
			BaseURL:           envString("VERIFICATION_BASE_URL", "http://localhost:8000/api"),
			Timeout:           envDuration("VERIFICATION_TIMEOUT", 30*time.Second),
			EnableDocumentOCR: envBool("VERIFICATION_DOCUMENT_OCR", true),
			FailureThreshold:  envInt("VERIFICATION_BREAKER_THRESHOLD", 5),
			Cooldown:          envDuration("VERIFICATION_BREAKER_COOLDOWN", 30*time.Second),
		},
		Camera: Camera{
			UserDir:        os.Getenv("CAMERA_USER_DIR"),
			EnvironmentDir: os.Getenv("CAMERA_ENVIRONMENT_DIR"),
			UserURL:        os.Getenv("CAMERA_USER_URL"),
			EnvironmentURL: os.Getenv("CAMERA_ENVIRONMENT_URL"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			SessionTTL:   envDuration("REDIS_SESSION_TTL", 24*time.Hour),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: Postgres{
			DSN: os.Getenv("POSTGRES_DSN"),
		},
		Kafka: Kafka{
			Brokers:     envList("KAFKA_BROKERS"),
			Topic:       envString("KAFKA_AUDIT_TOPIC", "kycflow.audit"),
			Partitions:  envInt("KAFKA_AUDIT_PARTITIONS", 3),
			Replication: envInt("KAFKA_AUDIT_REPLICATION", 1),
		},
		Flow: Flow{
			ConfigURL:  os.Getenv("FLOW_CONFIG_URL"),
			ConfigFile: os.Getenv("FLOW_CONFIG_FILE"),
		},
		Audit: Audit{
			// Use a default for development - should be overridden in production
			HashKey:    envString("AUDIT_HASH_KEY", "dev-audit-key-change-in-production"),
			BufferSize: envInt("AUDIT_BUFFER_SIZE", 1024),
		},
		RateLimit: RateLimit{
			Requests: envInt("RATELIMIT_REQUESTS", 120),
			Window:   envDuration("RATELIMIT_WINDOW", time.Minute),
		},
		Log: Log{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		// Use a default for development - should be overridden in production
		ServiceSigningKey: envString("SERVICE_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ServiceIssuer:     envString("SERVICE_TOKEN_ISSUER", "kycflow"),
		ServiceAudience:   envString("SERVICE_TOKEN_AUDIENCE", "verification-service"),
		ServiceTokenTTL:   envDuration("SERVICE_TOKEN_TTL", 5*time.Minute),
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
