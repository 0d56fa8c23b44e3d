package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AccessLog appends one JSON line per request to the configured log path.
// Writes are best-effort: failures are logged to stderr but never
// propagate to the caller.
type AccessLog struct {
	mu   sync.Mutex
	path string
}

// NewAccessLog creates an access logger writing to path.
func NewAccessLog(path string) *AccessLog {
	return &AccessLog{path: path}
}

type accessRecord struct {
	Timestamp  string      `json:"timestamp"`
	Remote     string      `json:"remote_addr"`
	Request    interface{} `json:"request"`
	Response   interface{} `json:"response"`
	LatencyMs  int64       `json:"latency_ms"`
}

// Append writes one access log line. Never returns an error to the caller;
// failures are swallowed after being logged to stderr.
func (a *AccessLog) Append(remote string, request, response interface{}, latencyMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if dir := filepath.Dir(a.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn().Err(err).Msg("access log: create directory failed")
			return
		}
	}

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Msg("access log: open failed")
		return
	}
	defer f.Close()

	rec := accessRecord{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Remote:    remote,
		Request:   request,
		Response:  response,
		LatencyMs: latencyMs,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		log.Warn().Err(err).Msg("access log: marshal failed")
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Warn().Err(err).Msg("access log: write failed")
	}
}
