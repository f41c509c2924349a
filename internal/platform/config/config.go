package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	liststr "pushgate/pkg/platform/strings"
)

// Push backends.
const (
	PushBackendLog   = "log"
	PushBackendFCM   = "fcm"
	PushBackendKafka = "kafka"
)

// Config is the full process configuration.
type Config struct {
	Server    Server
	Postgres  PostgresConfig
	Redis     RedisConfig
	Push      PushConfig
	WebSocket WebSocketConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr               string
	LogLevel           string
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string
}

// PostgresConfig selects durable account and transaction storage. An empty
// URL keeps everything in memory.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig selects the Redis transaction store. An empty URL disables it.
type RedisConfig struct {
	URL            string
	PoolSize       int
	MinIdleConns   int
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TransactionTTL time.Duration
}

// PushConfig controls how approval requests reach enrolled devices.
type PushConfig struct {
	Backend          string
	Workers          int
	QueueSize        int
	Timeout          time.Duration
	FailureThreshold int
	FCMCredentials   string // base64 encoded service account JSON
	FCMProjectID     string
	KafkaBrokers     []string
	KafkaTopic       string
}

// WebSocketConfig controls the subscriber endpoint.
type WebSocketConfig struct {
	AllowedOrigins []string
	WriteTimeout   time.Duration
	ReadLimit      int64
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []error
	d := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	n := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := Config{
		Server: Server{
			Addr:               envString("PUSHGATE_ADDR", ":3000"),
			LogLevel:           envString("LOG_LEVEL", "info"),
			ShutdownTimeout:    d("SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    n("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    n("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: d("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:            os.Getenv("REDIS_URL"),
			PoolSize:       n("REDIS_POOL_SIZE", 10),
			MinIdleConns:   n("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:    d("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:    d("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:   d("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TransactionTTL: d("TRANSACTION_TTL", 24*time.Hour),
		},
		Push: PushConfig{
			Backend:          strings.ToLower(envString("PUSH_BACKEND", PushBackendLog)),
			Workers:          n("PUSH_WORKERS", 4),
			QueueSize:        n("PUSH_QUEUE_SIZE", 256),
			Timeout:          d("PUSH_TIMEOUT", 10*time.Second),
			FailureThreshold: n("PUSH_FAILURE_THRESHOLD", 5),
			FCMCredentials:   os.Getenv("FCM_CREDENTIALS"),
			FCMProjectID:     os.Getenv("FCM_PROJECT_ID"),
			KafkaBrokers:     envList("KAFKA_BROKERS", nil),
			KafkaTopic:       envString("KAFKA_PUSH_TOPIC", "pushgate.push-requests"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: envList("WS_ALLOWED_ORIGINS", nil),
			WriteTimeout:   d("WS_WRITE_TIMEOUT", 5*time.Second),
			ReadLimit:      int64(n("WS_READ_LIMIT", 4096)),
		},
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("PUSHGATE_ADDR must not be empty"))
	}
	switch c.Push.Backend {
	case PushBackendLog:
	case PushBackendFCM:
		if c.Push.FCMCredentials == "" {
			errs = append(errs, errors.New("FCM_CREDENTIALS is required for the fcm push backend"))
		}
	case PushBackendKafka:
		if len(c.Push.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka push backend"))
		}
		if c.Push.KafkaTopic == "" {
			errs = append(errs, errors.New("KAFKA_PUSH_TOPIC must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PUSH_BACKEND %q", c.Push.Backend))
	}
	if c.Push.Workers <= 0 {
		errs = append(errs, errors.New("PUSH_WORKERS must be positive"))
	}
	if c.Push.QueueSize <= 0 {
		errs = append(errs, errors.New("PUSH_QUEUE_SIZE must be positive"))
	}
	if c.Redis.URL != "" && c.Redis.TransactionTTL <= 0 {
		errs = append(errs, errors.New("TRANSACTION_TTL must be positive when REDIS_URL is set"))
	}
	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return dur, nil
}

func envList(key string, def []string) []string {
	if list := liststr.SplitList(os.Getenv(key)); len(list) > 0 {
		return list
	}
	return def
}
