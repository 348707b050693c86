package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/oration/services/notifier/internal/mailer"
)

type Config struct {
	NATSURL      string
	SMTP         mailer.Config
	Recipients   []string
	BatchSize    int
	FetchMaxWait time.Duration
}

func Load() Config {
	port := strings.TrimSpace(os.Getenv("SMTP_PORT"))
	if port == "" {
		port = "587"
	}
	return Config{
		NATSURL: strings.TrimSpace(os.Getenv("NATS_URL")),
		SMTP: mailer.Config{
			Host:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
			Port:     port,
			Username: strings.TrimSpace(os.Getenv("SMTP_USERNAME")),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     strings.TrimSpace(os.Getenv("SMTP_FROM")),
		},
		Recipients:   splitList(os.Getenv("NOTIFY_RECIPIENTS")),
		BatchSize:    envInt("WORKER_BATCH_SIZE", 20),
		FetchMaxWait: envDuration("WORKER_FETCH_WAIT", 2*time.Second),
	}
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

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
