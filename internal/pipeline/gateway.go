package pipeline

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/blackroad-ai/gateway/internal/config"
	"github.com/blackroad-ai/gateway/internal/journal"
	"github.com/blackroad-ai/gateway/internal/metrics"
	"github.com/blackroad-ai/gateway/internal/policy"
	"github.com/blackroad-ai/gateway/internal/prompt"
	"github.com/blackroad-ai/gateway/internal/providers"
	"github.com/blackroad-ai/gateway/internal/ratelimit"
	"github.com/google/uuid"
)

// Gateway wires every request-pipeline component together and exposes the
// HTTP handlers mounted by the api package's router.
type Gateway struct {
	cfg       *config.Config
	registry  *providers.Registry
	limiter   *ratelimit.Limiter
	metrics   *metrics.Registry
	journal   *journal.Journal
	accessLog *AccessLog
	startedAt time.Time

	ctxMu   sync.Mutex
	ctxPath string
}

// New creates a Gateway. The journal is opened once at startup (its state
// persists across restarts); policy and prompt documents are intentionally
// NOT loaded here — they're re-read from disk on every request.
func New(cfg *config.Config, registry *providers.Registry, j *journal.Journal) *Gateway {
	return &Gateway{
		cfg:       cfg,
		registry:  registry,
		limiter:   ratelimit.New(),
		metrics:   metrics.New(),
		journal:   j,
		accessLog: NewAccessLog(cfg.LogPath),
		startedAt: time.Now(),
		ctxPath:   cfg.ContextPath,
	}
}

func (g *Gateway) loadPolicy() (*policy.Document, error) {
	return policy.Load(g.cfg.PolicyPath)
}

func (g *Gateway) loadPrompts() (*prompt.Document, error) {
	return prompt.Load(g.cfg.PromptPath)
}

func newRequestID() string {
	return uuid.New().String()
}

// isLoopback reports whether the request originated from the loopback
// interface, used for loopback-only gating of admin endpoints.
func isLoopback(r *http.Request) bool {
	host := r.RemoteAddr
	// RemoteAddr is "host:port"; strip the port.
	if idx := lastColon(host); idx != -1 {
		host = host[:idx]
	}
	// IPv6 hosts arrive bracketed ("[::1]:port").
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	switch host {
	case "127.0.0.1", "::1", "localhost":
		return true
	}
	return false
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

// readContextFile reads the whole context.json file. Read failures
// (including "file does not exist") are treated as an empty map.
func (g *Gateway) readContextFile() map[string]interface{} {
	g.ctxMu.Lock()
	defer g.ctxMu.Unlock()

	data, err := os.ReadFile(g.ctxPath)
	if err != nil {
		return map[string]interface{}{}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}
