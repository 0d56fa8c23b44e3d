package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errWorldsUpstream = errors.New("worlds feed returned a server error")

const gatewayVersion = "1.0.0"

// HandleHealthz and HandleHealth are the open liveness probes:
// `{status,gateway,version,providers,uptime,timestamp}`, no auth, no
// journal access.
func (g *Gateway) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	g.health(w)
}

func (g *Gateway) HandleHealth(w http.ResponseWriter, r *http.Request) {
	g.health(w)
}

func (g *Gateway) health(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"gateway":   "blackroad-gateway",
		"version":   gatewayVersion,
		"providers": g.registry.List(),
		"uptime":    int64(time.Since(g.startedAt).Seconds()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleMetrics is loopback-only (AllowRemote gating): `{status,metrics:{…}}`.
func (g *Gateway) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if !g.allowed(r) {
		writeError(w, http.StatusForbidden, newRequestID(), "Forbidden", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"metrics": g.metrics.Snapshot(),
	})
}

type agentSummary struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Intents         []string `json:"intents"`
	Providers       []string `json:"providers"`
	DefaultProvider string   `json:"default_provider"`
	RateLimit       int      `json:"rate_limit"`
	UsageLastMinute int      `json:"usage_last_minute"`
}

// HandleAgents is loopback-only: `{status,agents:[...]}`, each entry
// carrying its live rate-limiter usage for the current window.
func (g *Gateway) HandleAgents(w http.ResponseWriter, r *http.Request) {
	if !g.allowed(r) {
		writeError(w, http.StatusForbidden, newRequestID(), "Forbidden", nil)
		return
	}

	doc, err := g.loadPolicy()
	if err != nil {
		writeError(w, http.StatusInternalServerError, newRequestID(), err.Error(), nil)
		return
	}

	agents := make([]agentSummary, 0, len(doc.Agents))
	for name, ap := range doc.Agents {
		agents = append(agents, agentSummary{
			Name:            name,
			Description:     ap.Description,
			Intents:         ap.AllowedIntents,
			Providers:       ap.AllowedProviders,
			DefaultProvider: ap.DefaultProvider,
			RateLimit:       doc.RateLimitFor(&ap),
			UsageLastMinute: g.limiter.Usage(name),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"agents": agents,
	})
}

// HandleProviders is loopback-only: `{status,providers:[...]}`.
func (g *Gateway) HandleProviders(w http.ResponseWriter, r *http.Request) {
	if !g.allowed(r) {
		writeError(w, http.StatusForbidden, newRequestID(), "Forbidden", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"providers": g.registry.List(),
	})
}

// HandleMemory is loopback-only: `{status,memory}` — journal stats plus the
// context store's key count.
func (g *Gateway) HandleMemory(w http.ResponseWriter, r *http.Request) {
	if !g.allowed(r) {
		writeError(w, http.StatusForbidden, newRequestID(), "Forbidden", nil)
		return
	}
	ctx := g.readContextFile()
	var stats interface{}
	if g.journal != nil {
		stats = g.journal.Stats(len(ctx))
	} else {
		stats = map[string]interface{}{"entry_count": 0, "context_keys": len(ctx)}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"memory": stats,
	})
}

// HandleMemoryRecent is loopback-only: `{status,entries:[...]}`, newest
// first, limited by ?limit=N.
func (g *Gateway) HandleMemoryRecent(w http.ResponseWriter, r *http.Request) {
	if !g.allowed(r) {
		writeError(w, http.StatusForbidden, newRequestID(), "Forbidden", nil)
		return
	}
	if g.journal == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "entries": []interface{}{}})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := g.journal.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, newRequestID(), err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"entries": records,
	})
}

// HandleWorlds proxies an external stats feed, retrying a fixed small
// number of times with increasing delay and giving up cleanly rather than
// hanging the client request.
func (g *Gateway) HandleWorlds(w http.ResponseWriter, r *http.Request) {
	if g.cfg.WorldsURL == "" {
		writeError(w, http.StatusBadGateway, newRequestID(), "Worlds feed not configured", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var body []byte
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.WorldsURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return errWorldsUpstream
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(errWorldsUpstream)
		}
		buf, err := decodeBody(resp)
		if err != nil {
			return backoff.Permanent(err)
		}
		body = buf
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		writeError(w, http.StatusBadGateway, newRequestID(), "Worlds feed unavailable", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"worlds": json.RawMessage(body),
	})
}

func decodeBody(resp *http.Response) ([]byte, error) {
	var out json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// allowed implements the loopback-or-AllowRemote gate shared by every admin
// endpoint.
func (g *Gateway) allowed(r *http.Request) bool {
	return g.cfg.AllowRemote || isLoopback(r)
}
