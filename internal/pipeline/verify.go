package pipeline

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/blackroad-ai/gateway/internal/dispatch"
	"github.com/blackroad-ai/gateway/internal/journal"
	"github.com/blackroad-ai/gateway/internal/policy"
	"github.com/blackroad-ai/gateway/internal/prompt"
	"github.com/blackroad-ai/gateway/internal/providers"
	"github.com/blackroad-ai/gateway/internal/verify"
	"github.com/rs/zerolog/log"
)

type verifyRequest struct {
	Claim               string   `json:"claim"`
	Sources             []string `json:"sources,omitempty"`
	ConfidenceThreshold float64  `json:"confidence_threshold,omitempty"`
}

type verifyResponse struct {
	Status         string   `json:"status"`
	Verdict        string   `json:"verdict"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	AgentUsed      string   `json:"agent_used"`
	SourcesChecked []string `json:"sources_checked"`
	Flags          []string `json:"flags"`
	Timestamp      string   `json:"timestamp"`
}

// HandleVerify implements the verify sub-protocol: route the claim to
// cipher/audit or prism/analyze, build the fixed verification prompt,
// dispatch via the normal fallback path, and parse the model's output with
// the balanced-brace scanner.
func (g *Gateway) HandleVerify(w http.ResponseWriter, r *http.Request) {
	requestID := newRequestID()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, requestID, "Invalid JSON", nil)
		return
	}
	if req.Claim == "" {
		writeError(w, http.StatusBadRequest, requestID, "Field 'claim' is required", nil)
		return
	}

	agentName, intentName := verify.Route(req.Claim)

	doc, err := g.loadPolicy()
	if err != nil {
		writeError(w, http.StatusInternalServerError, requestID, err.Error(), nil)
		return
	}
	agentPolicy, err := doc.Resolve(agentName, intentName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, requestID, "verify routing misconfigured: "+err.Error(), nil)
		return
	}

	providerName := policy.PickProvider("", agentPolicy, doc, intentName, agentName, len(req.Claim), nil)
	if providerName == "" || !agentPolicy.AllowedProvider(providerName) {
		writeError(w, http.StatusBadRequest, requestID, "Provider not configured", nil)
		return
	}

	promptsDoc, _ := g.loadPrompts()
	system := prompt.Compose(promptsDoc, agentName, intentName, nil)
	userPrompt := verify.BuildPrompt(req.Claim, req.Sources, req.ConfidenceThreshold)

	result, err := dispatch.InvokeWithFallback(g.registry, providerName, agentPolicy.FallbackChain, providers.InvokeArgs{
		Input:     userPrompt,
		System:    system,
		RequestID: requestID,
		Agent:     agentName,
		Intent:    intentName,
	})

	var verdict verify.Verdict
	if err != nil {
		verdict = verify.Verdict{Verdict: "unverified", Confidence: 0.5, Reasoning: err.Error(), Flags: []string{}}
	} else {
		verdict = verify.ParseModelOutput(result.Output)
	}

	resp := verifyResponse{
		Status:         "ok",
		Verdict:        verdict.Verdict,
		Confidence:     verdict.Confidence,
		Reasoning:      verdict.Reasoning,
		AgentUsed:      agentName,
		SourcesChecked: req.Sources,
		Flags:          verdict.Flags,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	if g.journal != nil {
		go func() {
			if _, err := g.journal.Record(journal.Entry{
				Type:    "verify",
				Agent:   agentName,
				Intent:  intentName,
				Verdict: verdict.Verdict,
			}); err != nil {
				log.Warn().Err(err).Str("request_id", requestID).Msg("journal append failed")
			}
		}()
	}

	writeJSON(w, http.StatusOK, resp)
}
