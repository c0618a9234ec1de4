package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	if cfg.Host != "0.0.0.0" || cfg.Port != "8080" {
		t.Errorf("unexpected default addr: %s:%s", cfg.Host, cfg.Port)
	}
	if cfg.FrameTimeout != 500*time.Millisecond {
		t.Errorf("unexpected default FrameTimeout: %v", cfg.FrameTimeout)
	}
	if cfg.MaxFrameAge != 100*time.Millisecond {
		t.Errorf("unexpected default MaxFrameAge: %v", cfg.MaxFrameAge)
	}
	if cfg.MaxViewersPerSession != 10 {
		t.Errorf("unexpected default MaxViewersPerSession: %d", cfg.MaxViewersPerSession)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MAX_SESSIONS", "42")
	t.Setenv("STUN_URLS", "stun:a.example.com:3478, stun:b.example.com:3478")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("SERVER_PORT override not applied: %s", cfg.Port)
	}
	if cfg.MaxSessions != 42 {
		t.Errorf("MAX_SESSIONS override not applied: %d", cfg.MaxSessions)
	}
	if len(cfg.StunURLs) != 2 || cfg.StunURLs[0] != "stun:a.example.com:3478" {
		t.Errorf("STUN_URLS not parsed correctly: %v", cfg.StunURLs)
	}
}

func TestLoadJSONOverrideTakesPrecedenceOverEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_SESSIONS", "42")
	t.Setenv("CONFIG_JSON", `{"max_sessions": 99, "host": "127.0.0.1"}`)

	cfg := Load()
	if cfg.MaxSessions != 99 {
		t.Errorf("CONFIG_JSON override not applied: %d", cfg.MaxSessions)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("CONFIG_JSON host override not applied: %s", cfg.Host)
	}
}

func TestApplyJSONOverridesIgnoresUnknownAndEmpty(t *testing.T) {
	cfg := Config{Host: "unchanged"}
	applyJSONOverrides(&cfg, "")
	if cfg.Host != "unchanged" {
		t.Error("empty CONFIG_JSON must not modify cfg")
	}
	applyJSONOverrides(&cfg, `{"totally_unknown_field": 1}`)
	if cfg.Host != "unchanged" {
		t.Error("unknown JSON fields must not modify cfg")
	}
}

func TestApplyJSONOverridesStunURLsReplacesWholeList(t *testing.T) {
	cfg := Config{StunURLs: []string{"stun:default.example.com:3478"}}
	applyJSONOverrides(&cfg, `{"stun_urls": ["stun:a.example.com:3478", "stun:b.example.com:3478"]}`)

	want := []string{"stun:a.example.com:3478", "stun:b.example.com:3478"}
	if diff := cmp.Diff(want, cfg.StunURLs); diff != "" {
		t.Errorf("StunURLs mismatch (-want +got):\n%s", diff)
	}
}

func TestTargetWidth(t *testing.T) {
	cfg := Config{WidthLow: 160, WidthMedium: 320, WidthHigh: 480}
	cases := map[string]int{"low": 160, "medium": 320, "high": 480, "": 320, "bogus": 320}
	for q, want := range cases {
		if got := cfg.TargetWidth(q); got != want {
			t.Errorf("TargetWidth(%q) = %d, want %d", q, got, want)
		}
	}
}

// clearEnv removes every env var Load() reads so tests don't leak
// state from the host environment or from each other.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SERVER_HOST", "SERVER_PORT", "FRAME_TIMEOUT", "MAX_FRAME_AGE", "WATCHDOG_INTERVAL",
		"ICE_TIMEOUT", "MAX_BITRATE", "MIN_BITRATE", "WIDTH_LOW", "WIDTH_MEDIUM",
		"WIDTH_HIGH", "MAX_SESSIONS", "MAX_VIEWERS_PER_SESSION", "INFERENCE_INTERVAL",
		"INFERENCE_TTL", "SESSION_TIMEOUT", "MAX_MESSAGES_PER_CONNECTION",
		"RATE_LIMIT_WINDOW_SECONDS", "MAX_CONNECTIONS_PER_IP", "STATS_DB_PATH",
		"CASCADE_FILE", "STUN_URLS", "CONFIG_JSON",
	} {
		t.Setenv(k, "")
	}
}
