package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     string
	MongoURI string
	MongoDB  string

	RedisAddr string

	RabbitURL      string
	RabbitExchange string
	TaskQueue      string

	JWTSecret string
	AccessTTL time.Duration
	VaultKey  string
	VaultSalt string
	StateKey  string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	AllowedDomains  []string
	RateLimitPerMin int

	ScraperURL string

	SyncJobTimeout    time.Duration
	SyncPollInterval  time.Duration
	AutoSyncEnabled   bool
	QueueDispatch     bool
	WorkerConcurrency int
}

func Load() Config {
	return Config{
		Port:     getenv("APP_PORT", "8080"),
		MongoURI: getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  getenv("MONGO_DB", "sync_db"),

		RedisAddr: getenv("REDIS_ADDR", ""),

		RabbitURL:      getenv("RABBIT_URL", ""),
		RabbitExchange: getenv("RABBIT_EXCHANGE", "sync.events"),
		TaskQueue:      getenv("SYNC_TASK_QUEUE", "sync.tasks"),

		JWTSecret: getenv("JWT_SECRET", "default_secret_key"),
		AccessTTL: minutes(getenv("ACCESS_TTL_MIN", "15")),
		VaultKey:  getenv("VAULT_KEY", ""),
		VaultSalt: getenv("VAULT_KEY_SALT", "sync-service/v1"),
		StateKey:  getenv("OAUTH_STATE_SECRET", "default_state_key"),

		GoogleClientID:     getenv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getenv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getenv("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/auth/google/callback"),

		AllowedDomains:  split(getenv("ALLOWED_DOMAINS", "bgu.ac.il,post.bgu.ac.il,tau.ac.il,mail.huji.ac.il")),
		RateLimitPerMin: atoi(getenv("RATE_LIMIT_PER_MIN", "5")),

		ScraperURL: getenv("SCRAPER_URL", "http://localhost:8090"),

		SyncJobTimeout:    minutes(getenv("SYNC_JOB_TIMEOUT_MIN", "15")),
		SyncPollInterval:  seconds(getenv("SYNC_POLL_INTERVAL_SEC", "3")),
		AutoSyncEnabled:   getenv("AUTO_SYNC_ENABLED", "true") == "true",
		QueueDispatch:     getenv("SYNC_DISPATCH", "inline") == "queue",
		WorkerConcurrency: atoi(getenv("WORKER_CONCURRENCY", "4")),
	}
}

// GoogleEnabled reports whether identity-provider login can be offered.
// Missing credentials disable the provider instead of failing startup.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func atoi(s string) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return 0
}

func minutes(s string) time.Duration { return time.Duration(atoi(s)) * time.Minute }
func seconds(s string) time.Duration { return time.Duration(atoi(s)) * time.Second }

func split(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
