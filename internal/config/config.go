// Package config loads the relay's environment-driven settings, with
// an optional CONFIG_JSON blob (e.g. mounted from a secrets manager)
// overriding individual fields by path via gjson, so operators aren't
// forced to plumb one env var per setting.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

type Config struct {
	Host string
	Port string

	FrameTimeout         time.Duration
	MaxFrameAge          time.Duration
	WatchdogInterval     time.Duration
	IceTimeout           time.Duration
	MaxBitrate           int
	MinBitrate           int
	WidthLow             int
	WidthMedium          int
	WidthHigh            int
	MaxSessions          int
	MaxViewersPerSession int

	InferenceInterval time.Duration
	InferenceTTL      time.Duration
	SessionTimeout    time.Duration

	MaxMessagesPerConnection int
	RateLimitWindow          time.Duration
	MaxConnectionsPerIP      int

	StatsDBPath string
	CascadeFile string
	StunURLs    []string
}

// Load reads environment variables, falling back to sensible defaults
// wherever a variable is unset or unparsable, then applies any
// CONFIG_JSON overrides on top.
func Load() Config {
	cfg := loadFromEnv()
	applyJSONOverrides(&cfg, os.Getenv("CONFIG_JSON"))
	return cfg
}

func loadFromEnv() Config {
	return Config{
		Host: getEnv("SERVER_HOST", "0.0.0.0"),
		Port: getEnv("SERVER_PORT", "8080"),

		FrameTimeout:         getDuration("FRAME_TIMEOUT", 500*time.Millisecond),
		MaxFrameAge:          getDuration("MAX_FRAME_AGE", 100*time.Millisecond),
		WatchdogInterval:     getDuration("WATCHDOG_INTERVAL", 250*time.Millisecond),
		IceTimeout:           getDuration("ICE_TIMEOUT", 2*time.Second),
		MaxBitrate:           getInt("MAX_BITRATE", 2_500_000),
		MinBitrate:           getInt("MIN_BITRATE", 150_000),
		WidthLow:             getInt("WIDTH_LOW", 160),
		WidthMedium:          getInt("WIDTH_MEDIUM", 320),
		WidthHigh:            getInt("WIDTH_HIGH", 480),
		MaxSessions:          getInt("MAX_SESSIONS", 256),
		MaxViewersPerSession: getInt("MAX_VIEWERS_PER_SESSION", 10),

		InferenceInterval: getDuration("INFERENCE_INTERVAL", 100*time.Millisecond),
		InferenceTTL:      getDuration("INFERENCE_TTL", 120*time.Second),
		SessionTimeout:    getDuration("SESSION_TIMEOUT", 5*time.Minute),

		MaxMessagesPerConnection: getInt("MAX_MESSAGES_PER_CONNECTION", 120),
		RateLimitWindow:          getSeconds("RATE_LIMIT_WINDOW_SECONDS", 10*time.Second),
		MaxConnectionsPerIP:      getInt("MAX_CONNECTIONS_PER_IP", 8),

		StatsDBPath: getEnv("STATS_DB_PATH", "relay-stats.db"),
		CascadeFile: getEnv("CASCADE_FILE", ""),
		StunURLs:    getList("STUN_URLS", []string{"stun:stun.l.google.com:19302"}),
	}
}

// applyJSONOverrides patches cfg in place from a handful of top-level
// paths in raw, skipping any path that's absent. Scalar values are
// coerced by gjson (a non-numeric max_sessions becomes 0); stun_urls is
// applied only when it is a non-empty array.
// gjson's path lookups avoid defining a full overlay struct for a
// blob that's usually empty.
func applyJSONOverrides(cfg *Config, raw string) {
	if raw == "" {
		return
	}
	if host := gjson.Get(raw, "host"); host.Exists() {
		cfg.Host = host.String()
	}
	if port := gjson.Get(raw, "port"); port.Exists() {
		cfg.Port = port.String()
	}
	if v := gjson.Get(raw, "max_sessions"); v.Exists() {
		cfg.MaxSessions = int(v.Int())
	}
	if v := gjson.Get(raw, "max_viewers_per_session"); v.Exists() {
		cfg.MaxViewersPerSession = int(v.Int())
	}
	if v := gjson.Get(raw, "cascade_file"); v.Exists() {
		cfg.CascadeFile = v.String()
	}
	if v := gjson.Get(raw, "stats_db_path"); v.Exists() {
		cfg.StatsDBPath = v.String()
	}
	if v := gjson.Get(raw, "stun_urls"); v.IsArray() {
		urls := make([]string, 0, len(v.Array()))
		for _, u := range v.Array() {
			if s := u.String(); s != "" {
				urls = append(urls, s)
			}
		}
		if len(urls) > 0 {
			cfg.StunURLs = urls
		}
	}
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c Config) TargetWidth(q string) int {
	switch q {
	case "low":
		return c.WidthLow
	case "high":
		return c.WidthHigh
	default:
		return c.WidthMedium
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// getSeconds is getDuration with bare integers read as seconds instead
// of milliseconds.
func getSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if n, err := strconv.Atoi(v); v != "" && err == nil {
		return time.Duration(n) * time.Second
	}
	return getDuration(key, def)
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
