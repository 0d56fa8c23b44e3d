// Package policy loads and resolves the declarative agent/intent/provider
// permission matrix. Documents are read fresh from disk on every call — a
// cache with mtime invalidation would be a legitimate optimization, but
// edits must stay visible without a restart.
package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/expr-lang/expr"
)

// RoutingRule is an optional expression-evaluated override consulted before
// the default pickProvider algorithm.
type RoutingRule struct {
	When     string `json:"when"`
	Provider string `json:"provider"`
}

// AgentPolicy is the permission and budget envelope for one agent.
type AgentPolicy struct {
	Description         string        `json:"description"`
	AllowedIntents      []string      `json:"allowed_intents"`
	AllowedProviders    []string      `json:"allowed_providers"`
	DefaultProvider     string        `json:"default_provider"`
	FallbackChain       []string      `json:"fallback_chain"`
	MaxInputBytes       int           `json:"max_input_bytes"`
	RateLimitPerMinute  int           `json:"rate_limit_per_minute"`
	RoutingRules        []RoutingRule `json:"routing_rules,omitempty"`
}

// Document is the top-level policy document.
type Document struct {
	Version        int                    `json:"version"`
	Global         GlobalConfig           `json:"global"`
	Agents         map[string]AgentPolicy `json:"agents"`
	IntentRoutes   map[string]string      `json:"intent_routes"`
	DefaultProvider string                `json:"default_provider"`
	CostTiers      map[string]interface{} `json:"cost_tiers"`
}

type GlobalConfig struct {
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
}

// Errors distinguishing the two authorization failure kinds.
var (
	ErrAgentNotAllowed  = fmt.Errorf("agent not allowed")
	ErrIntentNotAllowed = fmt.Errorf("intent not allowed")
)

// Load reads and parses the policy file at path. It fails if the document
// lacks an "agents" object.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if doc.Agents == nil {
		return nil, fmt.Errorf("policy document missing agents object")
	}
	return &doc, nil
}

// Resolve returns the AgentPolicy for agent/intent, or a distinct error for
// "agent not allowed" vs. "intent not allowed".
func (d *Document) Resolve(agent, intent string) (*AgentPolicy, error) {
	ap, ok := d.Agents[agent]
	if !ok {
		return nil, ErrAgentNotAllowed
	}
	if !containsStr(ap.AllowedIntents, intent) {
		return nil, ErrIntentNotAllowed
	}
	return &ap, nil
}

// RateLimitFor returns the effective per-minute limit for an agent policy,
// falling back to the document's global default when the agent omits one.
func (d *Document) RateLimitFor(ap *AgentPolicy) int {
	if ap.RateLimitPerMinute != 0 {
		return ap.RateLimitPerMinute
	}
	return d.Global.RateLimitPerMinute
}

// PickProvider implements the provider-selection algorithm: requested (if
// non-empty) → policy.intent_routes[intent] → default_provider → ""
// (none). The dispatcher separately verifies the result is in
// allowed_providers.
//
// When no provider is requested, routing_rules (if any) are evaluated in
// order against a small expression environment before intent_routes; the
// first rule whose "when" expression evaluates truthy wins. This is purely
// additive — a policy without routing_rules behaves exactly per the base
// algorithm above.
func PickProvider(requested string, ap *AgentPolicy, doc *Document, intent string, agent string, inputBytes int, reqContext map[string]interface{}) string {
	if requested != "" {
		return requested
	}

	if provider := evalRoutingRules(ap.RoutingRules, agent, intent, inputBytes, reqContext); provider != "" {
		return provider
	}

	if doc.IntentRoutes != nil {
		if p, ok := doc.IntentRoutes[intent]; ok && p != "" {
			return p
		}
	}

	return doc.DefaultProvider
}

func evalRoutingRules(rules []RoutingRule, agent, intent string, inputBytes int, reqContext map[string]interface{}) string {
	if len(rules) == 0 {
		return ""
	}
	env := map[string]interface{}{
		"agent":       agent,
		"intent":      intent,
		"input_bytes": inputBytes,
		"context":     reqContext,
	}
	for _, rule := range rules {
		if rule.When == "" || rule.Provider == "" {
			continue
		}
		program, err := expr.Compile(rule.When, expr.Env(env), expr.AsBool())
		if err != nil {
			continue
		}
		out, err := expr.Run(program, env)
		if err != nil {
			continue
		}
		if truthy, ok := out.(bool); ok && truthy {
			return rule.Provider
		}
	}
	return ""
}

// AllowedProvider reports whether provider is in the agent policy's
// allowed_providers set.
func (ap *AgentPolicy) AllowedProvider(provider string) bool {
	return containsStr(ap.AllowedProviders, provider)
}

func containsStr(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
