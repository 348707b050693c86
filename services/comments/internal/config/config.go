// Package config loads the comment service settings from a YAML file,
// with environment variables taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultPath = "oration.yaml"

type Author struct {
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
	Website string `yaml:"website"`
}

type Notifications struct {
	NewComment bool     `yaml:"new_comment"`
	Recipients []string `yaml:"recipients"`
}

// PathCheck tunes the circuit breaker around blog post lookups.
type PathCheck struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

// RateLimit bounds write requests per client address.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type Config struct {
	Host          string        `yaml:"host"`
	BlogName      string        `yaml:"blog_name"`
	NestingLimit  int           `yaml:"nesting_limit"`
	EditTimeout   time.Duration `yaml:"edit_timeout"`
	Author        Author        `yaml:"author"`
	Notifications Notifications `yaml:"notifications"`
	DatabaseURL   string        `yaml:"database_url"`
	RedisURL      string        `yaml:"redis_url"`
	NATSURL       string        `yaml:"nats_url"`
	GRPCAddr      string        `yaml:"grpc_addr"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	PathCheck     PathCheck     `yaml:"path_check"`
	RateLimit     RateLimit     `yaml:"rate_limit"`
	// TrustProxy reads client addresses from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `yaml:"trust_proxy"`
}

func defaults() Config {
	return Config{
		NestingLimit: 3,
		EditTimeout:  5 * time.Minute,
		GRPCAddr:     ":9095",
		CacheTTL:     10 * time.Minute,
		PathCheck: PathCheck{
			Timeout:          5 * time.Second,
			MaxRequests:      5,
			Interval:         60 * time.Second,
			OpenTimeout:      30 * time.Second,
			FailureThreshold: 5,
		},
		RateLimit: RateLimit{PerSecond: 1, Burst: 10},
	}
}

// Load reads path, or ORATION_CONFIG, or oration.yaml. A missing file
// leaves the defaults in place.
func Load(path string) (Config, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv("ORATION_CONFIG"))
	}
	if path == "" {
		path = defaultPath
	}

	cfg := defaults()
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, err
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envString("ORATION_HOST", &cfg.Host)
	envString("BLOG_NAME", &cfg.BlogName)
	envString("DATABASE_URL", &cfg.DatabaseURL)
	envString("REDIS_URL", &cfg.RedisURL)
	envString("NATS_URL", &cfg.NATSURL)
	envString("GRPC_ADDR", &cfg.GRPCAddr)

	if v := strings.TrimSpace(os.Getenv("NESTING_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NESTING_LIMIT: %w", err)
		}
		cfg.NestingLimit = n
	}
	if err := envDuration("EDIT_TIMEOUT", &cfg.EditTimeout); err != nil {
		return err
	}
	if err := envDuration("CACHE_TTL", &cfg.CacheTTL); err != nil {
		return err
	}
	if v := strings.TrimSpace(os.Getenv("TRUST_PROXY")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRUST_PROXY: %w", err)
		}
		cfg.TrustProxy = b
	}
	if v := strings.TrimSpace(os.Getenv("NOTIFY_NEW_COMMENT")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("NOTIFY_NEW_COMMENT: %w", err)
		}
		cfg.Notifications.NewComment = b
	}
	if v := strings.TrimSpace(os.Getenv("NOTIFY_RECIPIENTS")); v != "" {
		cfg.Notifications.Recipients = splitList(v)
	}
	return nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host is required")
	}
	if c.NestingLimit < 0 {
		return fmt.Errorf("nesting_limit must not be negative, got %d", c.NestingLimit)
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate_limit per_second and burst must be positive")
	}
	if c.EditTimeout <= 0 {
		return fmt.Errorf("edit_timeout must be positive, got %s", c.EditTimeout)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
