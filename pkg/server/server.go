// Package server provides the public entry point for initializing the
// BlackRoad gateway.
//
// This package lives in pkg/ (not internal/) so downstream deployments can
// import it and wrap the handler with their own middleware before serving.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"fmt"
	"os"

	"net/http"

	"github.com/blackroad-ai/gateway/internal/api"
	"github.com/blackroad-ai/gateway/internal/config"
	"github.com/blackroad-ai/gateway/internal/journal"
	"github.com/blackroad-ai/gateway/internal/pipeline"
	"github.com/blackroad-ai/gateway/internal/providers"
	"github.com/blackroad-ai/gateway/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Journal is the hash-chained memory journal.
	Journal *journal.Journal

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all gateway components from environment configuration and
// returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the gateway with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var mirror journal.Mirror
	if cfg.JournalDSN != "" {
		pgMirror, err := journal.NewPGMirror(ctx, cfg.JournalDSN)
		if err != nil {
			log.Warn().Err(err).Msg("journal postgres mirror disabled: connect failed")
		} else {
			mirror = pgMirror
			log.Info().Msg("journal postgres mirror initialized")
		}
	}

	j, err := journal.Open(cfg.JournalPath, mirror)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	log.Info().Str("path", cfg.JournalPath).Msg("memory journal opened")

	registry := buildRegistry()
	log.Info().Strs("providers", registry.List()).Msg("provider registry initialized")

	gw := pipeline.New(cfg, registry, j)
	router := api.NewRouter(gw)

	return &Server{
		Handler:      router,
		Journal:      j,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// buildRegistry wires the built-in provider adapters, each configurable by
// environment variable so a deployment can point "openai" at a compatible
// gateway (vLLM, LiteLLM, ...) without code changes. Endpoints and models
// fall back to the real upstream defaults.
func buildRegistry() *providers.Registry {
	registry := providers.NewRegistry()

	registry.Register("openai", providers.NewOpenAIAdapter(
		"openai",
		envDefault("BLACKROAD_OPENAI_MODEL", "gpt-4o-mini"),
		envDefault("BLACKROAD_OPENAI_ENDPOINT", "https://api.openai.com/v1"),
		"OPENAI_API_KEY",
	))
	registry.Register("azure-openai", providers.NewOpenAIAdapter(
		"azure-openai",
		envDefault("BLACKROAD_AZURE_OPENAI_MODEL", "gpt-4o-mini"),
		envDefault("BLACKROAD_AZURE_OPENAI_ENDPOINT", ""),
		"AZURE_OPENAI_API_KEY",
	))
	registry.Register("ollama", providers.NewOpenAIAdapter(
		"ollama",
		envDefault("BLACKROAD_OLLAMA_MODEL", "llama3"),
		envDefault("BLACKROAD_OLLAMA_ENDPOINT", "http://localhost:11434/v1"),
		"",
	))
	registry.Register("anthropic", providers.NewAnthropicAdapter(
		envDefault("BLACKROAD_ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		envDefault("BLACKROAD_ANTHROPIC_ENDPOINT", "https://api.anthropic.com"),
		"ANTHROPIC_API_KEY",
	))

	registry.Alias("claude", "anthropic")
	registry.Alias("gpt", "openai")

	return registry
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
