package journal_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/blackroad-ai/gateway/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstRecordChainsFromGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := journal.Open(path, nil)
	require.NoError(t, err)

	hash, err := j.Record(journal.Entry{Type: "agent_call", Agent: "planner", Status: "ok"})
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	recent, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, journal.Genesis, recent[0].Prev)
	assert.Equal(t, hash, recent[0].Hash)
}

func TestChainLinksPrevToPriorHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := journal.Open(path, nil)
	require.NoError(t, err)

	h1, err := j.Record(journal.Entry{Type: "agent_call", Agent: "planner"})
	require.NoError(t, err)
	h2, err := j.Record(journal.Entry{Type: "verify", Agent: "prism"})
	require.NoError(t, err)

	recent, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Recent returns newest first.
	assert.Equal(t, h2, recent[0].Hash)
	assert.Equal(t, h1, recent[0].Prev)
	assert.Equal(t, h1, recent[1].Hash)
	assert.Equal(t, journal.Genesis, recent[1].Prev)
}

func TestReplayRecoversChainHeadAndCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j1, err := journal.Open(path, nil)
	require.NoError(t, err)

	_, err = j1.Record(journal.Entry{Type: "agent_call", Agent: "planner"})
	require.NoError(t, err)
	lastHash, err := j1.Record(journal.Entry{Type: "agent_call", Agent: "planner"})
	require.NoError(t, err)

	j2, err := journal.Open(path, nil)
	require.NoError(t, err)

	nextHash, err := j2.Record(journal.Entry{Type: "agent_call", Agent: "prism"})
	require.NoError(t, err)

	recent, err := j2.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, lastHash, recent[0].Prev)
	assert.Equal(t, nextHash, recent[0].Hash)

	stats := j2.Stats(0)
	assert.Equal(t, 3, stats.EntryCount)
	assert.Equal(t, 2, stats.SessionCalls["planner"])
	assert.Equal(t, 1, stats.SessionCalls["prism"])
}

func TestStatsCountsEntriesWithoutAgent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := journal.Open(path, nil)
	require.NoError(t, err)

	_, err = j.Record(journal.Entry{Type: "verify"})
	require.NoError(t, err)

	stats := j.Stats(0)
	assert.Equal(t, 1, stats.EntryCount)
	assert.Empty(t, stats.SessionCalls)
}

type fakeMirror struct {
	inserted []journal.Record
}

func (m *fakeMirror) Insert(rec journal.Record) error {
	m.inserted = append(m.inserted, rec)
	return nil
}

func TestMirrorReceivesEveryRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	mirror := &fakeMirror{}
	j, err := journal.Open(path, mirror)
	require.NoError(t, err)

	_, err = j.Record(journal.Entry{Type: "agent_call", Agent: "planner"})
	require.NoError(t, err)

	require.Len(t, mirror.inserted, 1)
	assert.Equal(t, "planner", mirror.inserted[0].Agent)
}

func TestMirrorSuccessMarksPersistedRecordMirrored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	mirror := &fakeMirror{}
	j, err := journal.Open(path, mirror)
	require.NoError(t, err)

	_, err = j.Record(journal.Entry{Type: "agent_call", Agent: "planner"})
	require.NoError(t, err)

	recent, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].Mirrored, "on-disk record should reflect a successful mirror insert")
}

type failingMirror struct{}

func (failingMirror) Insert(journal.Record) error {
	return fmt.Errorf("mirror unavailable")
}

func TestMirrorFailureLeavesPersistedRecordUnmirrored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := journal.Open(path, failingMirror{})
	require.NoError(t, err)

	hash, err := j.Record(journal.Entry{Type: "agent_call", Agent: "planner"})
	require.NoError(t, err, "a failed mirror insert must not fail the journal write")
	assert.NotEmpty(t, hash)

	recent, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Mirrored, "on-disk record should reflect a failed mirror insert")
}
