package metrics_test

import (
	"testing"

	"github.com/blackroad-ai/gateway/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func TestRecordAccumulatesByAgentAndProvider(t *testing.T) {
	r := metrics.New()

	r.Record("planner", "openai", true)
	r.Record("planner", "openai", false)
	r.Record("prism", "anthropic", true)

	snap := r.Snapshot()
	assert.EqualValues(t, 3, snap.TotalRequests)
	assert.EqualValues(t, 2, snap.TotalOK)
	assert.EqualValues(t, 1, snap.TotalErrors)

	assert.EqualValues(t, 2, snap.ByAgent["planner"].Total)
	assert.EqualValues(t, 1, snap.ByAgent["planner"].OK)
	assert.EqualValues(t, 1, snap.ByAgent["planner"].Error)
	assert.EqualValues(t, 1, snap.ByProvider["anthropic"].Total)
}

func TestDistinctAgentsReflectsByAgentKeys(t *testing.T) {
	r := metrics.New()
	r.Record("planner", "openai", true)
	r.Record("prism", "anthropic", true)
	r.Record("planner", "openai", true)

	snap := r.Snapshot()
	assert.Equal(t, 2, snap.DistinctAgents())
}

func TestRecordWithEmptyAgentOrProviderSkipsDimension(t *testing.T) {
	r := metrics.New()
	r.Record("", "", true)

	snap := r.Snapshot()
	assert.EqualValues(t, 1, snap.TotalRequests)
	assert.Empty(t, snap.ByAgent)
	assert.Empty(t, snap.ByProvider)
}
