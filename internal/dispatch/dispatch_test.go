package dispatch_test

import (
	"errors"
	"testing"

	"github.com/blackroad-ai/gateway/internal/dispatch"
	"github.com/blackroad-ai/gateway/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	output string
	err    error
}

func (s *stubAdapter) Invoke(providers.InvokeArgs) (string, error) {
	return s.output, s.err
}

func newRegistry(adapters map[string]*stubAdapter) *providers.Registry {
	r := providers.NewRegistry()
	for name, a := range adapters {
		r.Register(name, a)
	}
	return r
}

func TestPrimarySucceedsWithoutFallback(t *testing.T) {
	r := newRegistry(map[string]*stubAdapter{
		"ollama": {output: "hello"},
	})

	result, err := dispatch.InvokeWithFallback(r, "ollama", nil, providers.InvokeArgs{Input: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Output)
	assert.Equal(t, "ollama", result.Provider)
	assert.False(t, result.Fallback)
}

func TestFallsBackWhenPrimaryFails(t *testing.T) {
	r := newRegistry(map[string]*stubAdapter{
		"openai":    {err: errors.New("rate limited")},
		"anthropic": {output: "fallback response"},
	})

	result, err := dispatch.InvokeWithFallback(r, "openai", []string{"anthropic"}, providers.InvokeArgs{})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", result.Provider)
	assert.True(t, result.Fallback)
}

func TestPrimaryFailsWithEmptyFallbackReraisesVerbatim(t *testing.T) {
	primaryErr := errors.New("openai: 500 internal error")
	r := newRegistry(map[string]*stubAdapter{
		"openai": {err: primaryErr},
	})

	_, err := dispatch.InvokeWithFallback(r, "openai", nil, providers.InvokeArgs{})
	require.Error(t, err)
	assert.Equal(t, primaryErr.Error(), err.Error())
}

func TestPrimaryFailsWithUnresolvableFallbackReraisesVerbatim(t *testing.T) {
	primaryErr := errors.New("openai: 500 internal error")
	r := newRegistry(map[string]*stubAdapter{
		"openai": {err: primaryErr},
	})

	_, err := dispatch.InvokeWithFallback(r, "openai", []string{"nonexistent"}, providers.InvokeArgs{})
	require.Error(t, err)
	assert.Equal(t, primaryErr.Error(), err.Error())
}

func TestAllProvidersFailReturnsComposite(t *testing.T) {
	r := newRegistry(map[string]*stubAdapter{
		"openai":    {err: errors.New("boom1")},
		"anthropic": {err: errors.New("boom2")},
	})

	_, err := dispatch.InvokeWithFallback(r, "openai", []string{"anthropic"}, providers.InvokeArgs{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom1")
	assert.Contains(t, err.Error(), "boom2")
}

func TestPrimaryUnresolvedWithEmptyFallback(t *testing.T) {
	r := newRegistry(map[string]*stubAdapter{})

	_, err := dispatch.InvokeWithFallback(r, "missing", nil, providers.InvokeArgs{})
	require.Error(t, err)
	assert.Equal(t, "No provider available", err.Error())
}

func TestFallbackSkipsEntryEqualToPrimary(t *testing.T) {
	r := newRegistry(map[string]*stubAdapter{
		"openai": {err: errors.New("fail")},
	})

	_, err := dispatch.InvokeWithFallback(r, "openai", []string{"openai"}, providers.InvokeArgs{})
	require.Error(t, err)
	// Fallback chain has only the primary's own name, which is skipped,
	// so this degenerates to the verbatim-reraise case.
	assert.Equal(t, "fail", err.Error())
}
