// Package journal implements an append-only, hash-chained record of agent
// calls and verify results. Each record's hash is computed over its
// predecessor's hash plus its own canonical JSON, so the file forms a
// tamper-evident chain; a single mutex guards both the in-memory chain head
// and the on-disk append so line order always matches hash order.
package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Genesis is the literal predecessor hash for the first journal record.
const Genesis = "GENESIS"

// hashLen truncates the SHA-256 hex digest to this many characters.
const hashLen = 16

// Record is one journal entry.
type Record struct {
	Timestamp string                 `json:"ts"`
	Prev      string                 `json:"prev"`
	Hash      string                 `json:"hash"`
	Type      string                 `json:"type"` // "agent_call" | "verify"
	Agent     string                 `json:"agent,omitempty"`
	Provider  string                 `json:"provider,omitempty"`
	Intent    string                 `json:"intent,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Verdict   string                 `json:"verdict,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
	Mirrored  bool                   `json:"mirrored,omitempty"`
}

// Entry is the caller-supplied payload for Record, before ts/prev/hash are
// computed.
type Entry struct {
	Type     string
	Agent    string
	Provider string
	Intent   string
	Status   string
	Verdict  string
	Extra    map[string]interface{}
}

// Mirror is an optional secondary sink for journal records (e.g. a
// Postgres mirror via pgx). Mirroring is best-effort and never affects the
// JSONL append or the in-memory chain.
type Mirror interface {
	Insert(rec Record) error
}

// Journal is the hash-chained, append-only record of agent calls and verify
// results.
type Journal struct {
	mu       sync.Mutex
	path     string
	lastHash string
	count    int
	sessions map[string]int
	mirror   Mirror
	now      func() time.Time
}

// Open opens (or creates) the journal file at path, replaying its last
// line's hash as the new chain head.
func Open(path string, mirror Mirror) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	j := &Journal{
		path:     path,
		lastHash: Genesis,
		sessions: make(map[string]int),
		mirror:   mirror,
		now:      time.Now,
	}

	if err := j.replay(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) replay() error {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	lines := splitNonEmptyLines(data)
	for _, line := range lines {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // tolerate a trailing partial write
		}
		j.lastHash = rec.Hash
		j.count++
		if rec.Agent != "" {
			j.sessions[rec.Agent]++
		}
	}
	return nil
}

func splitNonEmptyLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

// Record appends a new entry to the chain and returns its hash. Serialized
// globally: the hash computation and lastHash advance happen atomically
// relative to the next call's prev read, and the file append happens
// inside the same critical section so line order matches hash order.
func (j *Journal) Record(entry Entry) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec := Record{
		Timestamp: j.now().UTC().Format(time.RFC3339),
		Prev:      j.lastHash,
		Type:      entry.Type,
		Agent:     entry.Agent,
		Provider:  entry.Provider,
		Intent:    entry.Intent,
		Status:    entry.Status,
		Verdict:   entry.Verdict,
		Extra:     entry.Extra,
	}

	hash, err := computeHash(rec.Prev, rec)
	if err != nil {
		return "", err
	}
	rec.Hash = hash

	// Mirroring must be decided before appendLine so the persisted line's
	// mirrored field reflects the real outcome, not a guess made before the
	// insert ran. It's resolved after the hash so a flaky mirror write can
	// never change what gets hashed.
	if j.mirror != nil {
		rec.Mirrored = j.mirror.Insert(rec) == nil
	}

	if err := j.appendLine(rec); err != nil {
		return "", err
	}

	j.lastHash = hash
	j.count++
	if entry.Agent != "" {
		j.sessions[entry.Agent]++
	}

	return hash, nil
}

// computeHash = truncate(SHA-256(prev || canonical_json(record_without_hash_or_mirrored)), 16 hex chars).
// Mirrored is excluded along with Hash: it's resolved after the hash is
// computed (it needs the hash as the mirror table's key), so it can never be
// part of the chained payload.
func computeHash(prev string, rec Record) (string, error) {
	withoutHash := rec
	withoutHash.Hash = ""
	withoutHash.Mirrored = false
	canonical, err := json.Marshal(withoutHash)
	if err != nil {
		return "", fmt.Errorf("canonicalize record: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(prev))
	h.Write(canonical)
	digest := hex.EncodeToString(h.Sum(nil))
	if len(digest) > hashLen {
		digest = digest[:hashLen]
	}
	return digest, nil
}

func (j *Journal) appendLine(rec Record) error {
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal for append: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write journal line: %w", err)
	}
	return nil
}

// Recent returns the last limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	lines := splitNonEmptyLines(data)
	var records []Record
	for _, line := range lines {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}

	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	start := len(records) - limit
	out := make([]Record, limit)
	for i := 0; i < limit; i++ {
		out[i] = records[len(records)-1-i]
	}
	_ = start
	return out, nil
}

// Stats is the journal summary returned by Stats().
type Stats struct {
	EntryCount   int            `json:"entry_count"`
	LastHash     string         `json:"last_hash"`
	ContextKeys  int            `json:"context_keys"`
	SessionCalls map[string]int `json:"session_calls"`
}

// Stats returns entry count, last hash, and per-agent session call counts.
// contextKeyCount is supplied by the caller (it lives in the separate
// context.json file, outside the journal's own state).
func (j *Journal) Stats(contextKeyCount int) Stats {
	j.mu.Lock()
	defer j.mu.Unlock()

	sessions := make(map[string]int, len(j.sessions))
	for k, v := range j.sessions {
		sessions[k] = v
	}

	return Stats{
		EntryCount:   j.count,
		LastHash:     j.lastHash,
		ContextKeys:  contextKeyCount,
		SessionCalls: sessions,
	}
}
