package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends understood by the API server.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// DefaultPort is used when neither -port nor PORT is set.
const DefaultPort = 4000

type Config struct {
	HTTPPort     int
	StoreBackend string
	RedisURL     string

	// AdminHost, when set, grants the user-write capability to requests whose
	// Host header matches it.
	AdminHost string

	SubscriberBuffer int
	RequestTimeout   time.Duration
	ShutdownTimeout  time.Duration
}

// Load reads application flags (via a local FlagSet) and environment
// variables, strips out any -test.* flags, and validates the result.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	// Build a fresh FlagSet so we don't collide with `go test` flags
	fs := flag.NewFlagSet("config", flag.ContinueOnError)

	var (
		httpPort int
		backend  string
		redisURL string
	)
	fs.IntVar(&httpPort, "port", DefaultPort, "HTTP listen port")
	fs.StringVar(&backend, "store", getEnvOrDefault("STORE_BACKEND", BackendMemory), "record store backend: memory, postgres or redis")
	fs.StringVar(&redisURL, "redis", os.Getenv("REDIS_URL"), "Redis connection URL")

	var appArgs []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-test.") {
			continue
		}
		appArgs = append(appArgs, arg)
	}
	if err := fs.Parse(appArgs); err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:         httpPort,
		StoreBackend:     strings.ToLower(strings.TrimSpace(backend)),
		RedisURL:         redisURL,
		AdminHost:        strings.TrimSpace(os.Getenv("ADMIN_HOST")),
		SubscriberBuffer: getIntEnvOrDefault("SUBSCRIBER_BUFFER", 16),
		RequestTimeout:   getDurationEnvOrDefault("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout:  getDurationEnvOrDefault("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	// PORT env var overrides the flag default when the flag wasn't given
	if portEnv := os.Getenv("PORT"); portEnv != "" && !flagSet(fs, "port") {
		portVal, err := strconv.Atoi(portEnv)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT env var: %v", err)
		}
		cfg.HTTPPort = portVal
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid port %d", c.HTTPPort)
	}
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("missing required config: REDIS_URL or -redis for redis store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.SubscriberBuffer < 1 {
		return fmt.Errorf("SUBSCRIBER_BUFFER must be positive, got %d", c.SubscriberBuffer)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnvOrDefault returns environment variable as duration or default
func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
