package pipeline

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/blackroad-ai/gateway/internal/dispatch"
	"github.com/blackroad-ai/gateway/internal/journal"
	"github.com/blackroad-ai/gateway/internal/policy"
	"github.com/blackroad-ai/gateway/internal/prompt"
	"github.com/blackroad-ai/gateway/internal/providers"
	"github.com/rs/zerolog/log"
)

// HandleAgent implements the request pipeline's state machine:
//
//	parse → validate → authorize-agent → authorize-intent → byte-check
//	     → rate-check (reserve) → select-provider → authorize-provider
//	     → compose-prompt → dispatch (release reservation on failure) → respond
//	     → (finally) metrics.record + journal.record + log.append
func (g *Gateway) HandleAgent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := newRequestID()

	outcome := &agentOutcome{requestID: requestID}
	defer func() {
		g.finishAgentRequest(r, start, outcome)
	}()

	// ── parse ──────────────────────────────────────────────
	r.Body = http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes+1)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.respondError(w, outcome, http.StatusRequestEntityTooLarge, "Input too large", nil)
		return
	}

	req, err := parseAgentRequest(body)
	if err != nil {
		var verr *validationError
		msg := "Invalid JSON"
		if errors.As(err, &verr) {
			msg = verr.msg
		}
		g.respondError(w, outcome, http.StatusBadRequest, msg, nil)
		return
	}
	outcome.agent = req.Agent
	outcome.intent = req.Intent

	// ── authorize-agent / authorize-intent ────────────────
	doc, err := g.loadPolicy()
	if err != nil {
		g.respondError(w, outcome, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	agentPolicy, err := doc.Resolve(req.Agent, req.Intent)
	if err != nil {
		switch {
		case errors.Is(err, policy.ErrAgentNotAllowed):
			g.respondError(w, outcome, http.StatusForbidden, "Agent not allowed", nil)
		case errors.Is(err, policy.ErrIntentNotAllowed):
			g.respondError(w, outcome, http.StatusForbidden, "Intent not allowed", nil)
		default:
			g.respondError(w, outcome, http.StatusInternalServerError, err.Error(), nil)
		}
		return
	}

	// ── byte-check ─────────────────────────────────────────
	inputBytes := len(req.Input)
	if agentPolicy.MaxInputBytes > 0 && inputBytes > agentPolicy.MaxInputBytes {
		g.respondError(w, outcome, http.StatusRequestEntityTooLarge, "Input too large", nil)
		return
	}

	// ── rate-check ─────────────────────────────────────────
	// Reserve the slot atomically now, before dispatch's network I/O, so two
	// concurrent requests for the same agent can't both pass a separate
	// check and then both record — Release gives the slot back below if
	// dispatch fails, since failures shouldn't consume quota.
	limit := doc.RateLimitFor(agentPolicy)
	reserved, reservation := g.limiter.Reserve(req.Agent, limit)
	if !reserved {
		g.respondError(w, outcome, http.StatusTooManyRequests, "Rate limit exceeded", map[string]interface{}{
			"limit_per_minute":    limit,
			"retry_after_seconds": 60,
		})
		return
	}

	// ── select-provider / authorize-provider ──────────────
	providerName := policy.PickProvider(req.Provider, agentPolicy, doc, req.Intent, req.Agent, inputBytes, req.Context)
	if providerName == "" {
		g.limiter.Release(req.Agent, reservation)
		g.respondError(w, outcome, http.StatusBadRequest, "Provider not configured", nil)
		return
	}
	if !agentPolicy.AllowedProvider(providerName) {
		g.limiter.Release(req.Agent, reservation)
		g.respondError(w, outcome, http.StatusForbidden, "Provider not allowed", nil)
		return
	}

	// ── compose-prompt ─────────────────────────────────────
	promptsDoc, err := g.loadPrompts()
	if err != nil {
		promptsDoc = nil // prompt composition degrades to "" rather than failing the request
	}
	system := prompt.Compose(promptsDoc, req.Agent, req.Intent, req.Context)

	// ── dispatch ───────────────────────────────────────────
	result, err := dispatch.InvokeWithFallback(g.registry, providerName, agentPolicy.FallbackChain, providers.InvokeArgs{
		Input:     req.Input,
		System:    system,
		Context:   req.Context,
		RequestID: requestID,
		Agent:     req.Agent,
		Intent:    req.Intent,
	})
	if err != nil {
		g.limiter.Release(req.Agent, reservation)
		g.respondError(w, outcome, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	outcome.provider = result.Provider

	// ── respond ────────────────────────────────────────────
	resp := AgentResponse{
		Status:    "ok",
		Provider:  result.Provider,
		Output:    result.Output,
		RequestID: requestID,
		Metadata: map[string]interface{}{
			"latency_ms": time.Since(start).Milliseconds(),
			"fallback":   result.Fallback,
		},
	}
	outcome.ok = true
	outcome.responseBody = resp
	outcome.status = http.StatusOK
	outcome.requestBody = req
	writeJSON(w, http.StatusOK, resp)
}

// agentOutcome captures what the finally block needs, independent of which
// pipeline stage produced the response: agent, provider, intent, status,
// and the request/response payloads. Latency is computed from the request's
// start time in finishAgentRequest.
type agentOutcome struct {
	requestID    string
	agent        string
	provider     string
	intent       string
	ok           bool
	status       int
	requestBody  interface{}
	responseBody interface{}
}

func (g *Gateway) respondError(w http.ResponseWriter, outcome *agentOutcome, status int, message string, metadata map[string]interface{}) {
	outcome.ok = false
	outcome.status = status
	body := ErrorResponse{Status: "error", Error: message, RequestID: outcome.requestID, Metadata: metadata}
	outcome.responseBody = body
	writeJSON(w, status, body)
}

// finishAgentRequest is the cross-cutting finally block: metrics, journal,
// and access log all run regardless of success or failure, and journal /
// log failures are swallowed rather than surfaced to the client.
func (g *Gateway) finishAgentRequest(r *http.Request, start time.Time, outcome *agentOutcome) {
	latency := time.Since(start).Milliseconds()

	g.metrics.Record(outcome.agent, outcome.provider, outcome.ok)

	status := "error"
	if outcome.ok {
		status = "ok"
	}

	go func() {
		if g.journal == nil {
			return
		}
		_, err := g.journal.Record(journal.Entry{
			Type:     "agent_call",
			Agent:    outcome.agent,
			Provider: outcome.provider,
			Intent:   outcome.intent,
			Status:   status,
		})
		if err != nil {
			log.Warn().Err(err).Str("request_id", outcome.requestID).Msg("journal append failed")
		}
	}()

	g.accessLog.Append(r.RemoteAddr, outcome.requestBody, outcome.responseBody, latency)
}
