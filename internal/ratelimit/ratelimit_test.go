package ratelimit_test

import (
	"testing"

	"github.com/blackroad-ai/gateway/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAllowsUpToLimit(t *testing.T) {
	l := ratelimit.New()

	for i := 0; i < 5; i++ {
		require.True(t, l.Check("planner", 5), "attempt %d should be allowed", i)
		l.Record("planner")
	}

	assert.False(t, l.Check("planner", 5), "sixth attempt should be denied")
}

func TestCheckZeroLimitDisablesLimiting(t *testing.T) {
	l := ratelimit.New()
	for i := 0; i < 100; i++ {
		require.True(t, l.Check("unbounded", 0))
		l.Record("unbounded")
	}
}

func TestUsageIsPerAgent(t *testing.T) {
	l := ratelimit.New()
	l.Record("alpha")
	l.Record("alpha")
	l.Record("beta")

	assert.Equal(t, 2, l.Usage("alpha"))
	assert.Equal(t, 1, l.Usage("beta"))
	assert.Equal(t, 0, l.Usage("unused"))
}

func TestCheckAndRecordIsAtomic(t *testing.T) {
	l := ratelimit.New()

	for i := 0; i < 3; i++ {
		require.True(t, l.CheckAndRecord("agent", 3))
	}
	assert.False(t, l.CheckAndRecord("agent", 3))
	assert.Equal(t, 3, l.Usage("agent"))
}
