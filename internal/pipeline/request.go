// Package pipeline implements the HTTP request-pipeline engine: a state
// machine that parses, validates, authorizes, rate-checks, dispatches, and
// responds to every /v1/agent call, plus the supporting non-agent admin
// endpoints and the /v1/verify sub-protocol.
package pipeline

import (
	"encoding/json"
	"fmt"
)

// AgentRequest is the inbound request envelope for /v1/agent.
type AgentRequest struct {
	Agent    string                 `json:"agent"`
	Intent   string                 `json:"intent"`
	Input    string                 `json:"input"`
	Context  map[string]interface{} `json:"context,omitempty"`
	Provider string                 `json:"provider,omitempty"`
}

// validationError carries the exact message to surface at 400.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

// parseAgentRequest unmarshals and validates an inbound envelope.
// agent/intent/input must be strings; context, if present, must be an
// object. Returns a *validationError describing the specific schema
// violation.
func parseAgentRequest(body []byte) (*AgentRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &validationError{msg: "Invalid JSON"}
	}

	req := &AgentRequest{}

	if err := requireString(raw, "agent", &req.Agent); err != nil {
		return nil, err
	}
	if err := requireString(raw, "intent", &req.Intent); err != nil {
		return nil, err
	}
	if err := requireString(raw, "input", &req.Input); err != nil {
		return nil, err
	}

	if v, ok := raw["provider"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, &validationError{msg: "Field 'provider' must be a string"}
		}
		req.Provider = s
	}

	if v, ok := raw["context"]; ok {
		var ctx map[string]interface{}
		if err := json.Unmarshal(v, &ctx); err != nil {
			return nil, &validationError{msg: "Field 'context' must be an object"}
		}
		req.Context = ctx
	}

	return req, nil
}

func requireString(raw map[string]json.RawMessage, field string, out *string) error {
	v, ok := raw[field]
	if !ok {
		return &validationError{msg: fmt.Sprintf("Field '%s' is required", field)}
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return &validationError{msg: fmt.Sprintf("Field '%s' must be a string", field)}
	}
	*out = s
	return nil
}
