package pipeline_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blackroad-ai/gateway/internal/config"
	"github.com/blackroad-ai/gateway/internal/journal"
	"github.com/blackroad-ai/gateway/internal/pipeline"
	"github.com/blackroad-ai/gateway/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	output string
	err    error
	calls  int
}

func (s *stubAdapter) Invoke(providers.InvokeArgs) (string, error) {
	s.calls++
	return s.output, s.err
}

// slowAdapter holds dispatch open for a moment, widening the window in
// which concurrent requests for the same agent would race the rate limiter
// if it weren't reserving the slot before dispatch.
type slowAdapter struct {
	delay int64 // calls, used only to count atomically
}

func (s *slowAdapter) Invoke(providers.InvokeArgs) (string, error) {
	atomic.AddInt64(&s.delay, 1)
	time.Sleep(5 * time.Millisecond)
	return "hello", nil
}

const testPolicy = `{
  "version": 1,
  "global": {"rate_limit_per_minute": 100},
  "default_provider": "ollama",
  "agents": {
    "planner": {
      "description": "plans",
      "allowed_intents": ["analyze"],
      "allowed_providers": ["ollama"],
      "default_provider": "ollama",
      "max_input_bytes": 1048576,
      "rate_limit_per_minute": 5
    }
  }
}`

const testPrompts = `{"default":"system","agents":{},"intents":{}}`

func newTestGateway(t *testing.T, registry *providers.Registry) *pipeline.Gateway {
	t.Helper()
	dir := t.TempDir()

	policyPath := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policyPath, []byte(testPolicy), 0o644))
	promptPath := filepath.Join(dir, "prompts.json")
	require.NoError(t, os.WriteFile(promptPath, []byte(testPrompts), 0o644))

	cfg := &config.Config{
		PolicyPath:   policyPath,
		PromptPath:   promptPath,
		LogPath:      filepath.Join(dir, "access.jsonl"),
		MaxBodyBytes: 1048576,
		ContextPath:  filepath.Join(dir, "context.json"),
	}

	j, err := journal.Open(filepath.Join(dir, "journal.jsonl"), nil)
	require.NoError(t, err)

	return pipeline.New(cfg, registry, j)
}

func doAgentRequest(gw *pipeline.Gateway, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/agent", strings.NewReader(body))
	w := httptest.NewRecorder()
	gw.HandleAgent(w, req)
	return w
}

func TestHandleAgentHappyPath(t *testing.T) {
	ollama := &stubAdapter{output: "hello"}
	registry := providers.NewRegistry()
	registry.Register("ollama", ollama)

	gw := newTestGateway(t, registry)
	w := doAgentRequest(gw, `{"agent":"planner","intent":"analyze","input":"hi"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp pipeline.AgentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ollama", resp.Provider)
	assert.Equal(t, "hello", resp.Output)
	assert.Equal(t, 1, ollama.calls)
}

func TestHandleAgentUnknownAgentForbidden(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register("ollama", &stubAdapter{output: "hello"})
	gw := newTestGateway(t, registry)

	w := doAgentRequest(gw, `{"agent":"ghost","intent":"analyze","input":"hi"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	var resp pipeline.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Agent not allowed", resp.Error)
}

func TestHandleAgentIntentNotAllowed(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register("ollama", &stubAdapter{output: "hello"})
	gw := newTestGateway(t, registry)

	w := doAgentRequest(gw, `{"agent":"planner","intent":"forbidden","input":"x"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	var resp pipeline.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Intent not allowed", resp.Error)
}

func TestHandleAgentInputTooLarge(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register("ollama", &stubAdapter{output: "hello"})
	gw := newTestGateway(t, registry)

	big := make([]byte, 2*1024*1024)
	for i := range big {
		big[i] = 'a'
	}
	body, err := json.Marshal(map[string]string{
		"agent": "planner", "intent": "analyze", "input": string(big),
	})
	require.NoError(t, err)

	w := doAgentRequest(gw, string(body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandleAgentRateLimitExceeded(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register("ollama", &stubAdapter{output: "hello"})
	gw := newTestGateway(t, registry)

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = doAgentRequest(gw, `{"agent":"planner","intent":"analyze","input":"hi"}`)
	}

	require.Equal(t, http.StatusTooManyRequests, last.Code)
	var resp pipeline.ErrorResponse
	require.NoError(t, json.Unmarshal(last.Body.Bytes(), &resp))
	assert.Equal(t, "Rate limit exceeded", resp.Error)
	assert.EqualValues(t, 60, resp.Metadata["retry_after_seconds"])
}

func TestHandleAgentRateLimitIsEnforcedUnderConcurrency(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register("ollama", &slowAdapter{})
	gw := newTestGateway(t, registry)

	const requests = 20 // planner's limit is 5 in testPolicy
	var wg sync.WaitGroup
	codes := make([]int, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := doAgentRequest(gw, `{"agent":"planner","intent":"analyze","input":"hi"}`)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	var ok int
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusTooManyRequests, code)
		}
	}
	assert.LessOrEqual(t, ok, 5, "no more than the per-agent limit should succeed within the window")
}

func TestHandleAgentDispatchFailureIsInternalError(t *testing.T) {
	registry := providers.NewRegistry()
	registry.Register("ollama", &stubAdapter{err: errors.New("upstream exploded")})
	gw := newTestGateway(t, registry)

	w := doAgentRequest(gw, `{"agent":"planner","intent":"analyze","input":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
