package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration shared by the server and worker
// binaries.
type Server struct {
	Addr        string
	Environment string

	DatabaseURL string
	RedisAddr   string

	KafkaBrokers string
	TaskTopic    string
	TaskGroupID  string

	ChallengeTTL time.Duration
	WaitlistBase int
}

const (
	defaultAddr         = ":8080"
	defaultTaskTopic    = "spothot.waitlist.tasks"
	defaultTaskGroupID  = "spothot-worker"
	defaultChallengeTTL = 10 * time.Minute
	// First waitlist entry lands at 99; every later entry goes strictly behind it.
	defaultWaitlistBase = 99
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:         envOr("SPOTHOT_ADDR", defaultAddr),
		Environment:  envOr("SPOTHOT_ENV", "development"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		TaskTopic:    envOr("SPOTHOT_TASK_TOPIC", defaultTaskTopic),
		TaskGroupID:  envOr("SPOTHOT_TASK_GROUP", defaultTaskGroupID),
		ChallengeTTL: defaultChallengeTTL,
		WaitlistBase: defaultWaitlistBase,
	}

	if raw := os.Getenv("SPOTHOT_CHALLENGE_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.ChallengeTTL = d
		}
	}
	if raw := os.Getenv("SPOTHOT_WAITLIST_BASE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.WaitlistBase = n
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
