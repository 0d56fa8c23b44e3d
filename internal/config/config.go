// Package config loads the gateway's runtime configuration from environment
// variables, falling back to sensible defaults. File-based config (policy,
// prompts) is handled by the policy and prompt packages, which re-read their
// source files on every request so edits are visible without a restart.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the BlackRoad gateway.
type Config struct {
	Bind         string
	Port         int
	PolicyPath   string
	PromptPath   string
	LogPath      string
	MaxBodyBytes int64
	AllowRemote  bool
	JournalPath  string
	JournalDSN   string
	ContextPath  string
	WorldsURL    string
	Telemetry    TelemetryConfig
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}

	return &Config{
		Bind:         envStr("BLACKROAD_GATEWAY_BIND", "127.0.0.1"),
		Port:         envInt("BLACKROAD_GATEWAY_PORT", 8787),
		PolicyPath:   envStr("BLACKROAD_GATEWAY_POLICY_PATH", "policies/agent-permissions.json"),
		PromptPath:   envStr("BLACKROAD_GATEWAY_PROMPT_PATH", "gateway/system-prompts.json"),
		LogPath:      envStr("BLACKROAD_GATEWAY_LOG_PATH", "gateway/logs/gateway.jsonl"),
		MaxBodyBytes: envInt64("BLACKROAD_GATEWAY_MAX_BODY_BYTES", 1048576),
		AllowRemote:  envBool("BLACKROAD_GATEWAY_ALLOW_REMOTE", false),
		JournalPath:  envStr("BLACKROAD_GATEWAY_JOURNAL_PATH", home+"/.blackroad/gateway-memory/journal.jsonl"),
		JournalDSN:   envStr("BLACKROAD_GATEWAY_JOURNAL_DSN", ""),
		ContextPath:  envStr("BLACKROAD_GATEWAY_CONTEXT_PATH", home+"/.blackroad/gateway-memory/context.json"),
		WorldsURL:    envStr("BLACKROAD_GATEWAY_WORLDS_URL", ""),
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "blackroad-gateway"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
