package verify_test

import (
	"testing"

	"github.com/blackroad-ai/gateway/internal/verify"
	"github.com/stretchr/testify/assert"
)

func TestRouteSensitiveClaimGoesToCipherAudit(t *testing.T) {
	agent, intent := verify.Route("what is the admin password for the prod database?")
	assert.Equal(t, "cipher", agent)
	assert.Equal(t, "audit", intent)
}

func TestRouteOrdinaryClaimGoesToPrismAnalyze(t *testing.T) {
	agent, intent := verify.Route("the sky is green")
	assert.Equal(t, "prism", agent)
	assert.Equal(t, "analyze", intent)
}

func TestRouteIsCaseInsensitive(t *testing.T) {
	agent, _ := verify.Route("there was a SECURITY BREACH last week")
	assert.Equal(t, "cipher", agent)
}

func TestParseModelOutputWellFormed(t *testing.T) {
	v := verify.ParseModelOutput(`{"verdict":"false","confidence":0.9,"reasoning":"contradicts known facts","flags":[]}`)
	assert.Equal(t, "false", v.Verdict)
	assert.Equal(t, 0.9, v.Confidence)
	assert.Equal(t, "contradicts known facts", v.Reasoning)
	assert.Empty(t, v.Flags)
}

func TestParseModelOutputExtractsEmbeddedObject(t *testing.T) {
	raw := "Sure, here's my answer:\n" +
		`{"verdict":"true","confidence":0.8,"reasoning":"matches sources","flags":["low_confidence"]}` +
		"\nLet me know if you need more."
	v := verify.ParseModelOutput(raw)
	assert.Equal(t, "true", v.Verdict)
	assert.Equal(t, []string{"low_confidence"}, v.Flags)
}

func TestParseModelOutputToleratesBracesInsideStrings(t *testing.T) {
	raw := `{"verdict":"conflicting","confidence":0.4,"reasoning":"sources say {A} and {B} disagree","flags":[]}`
	v := verify.ParseModelOutput(raw)
	assert.Equal(t, "conflicting", v.Verdict)
	assert.Equal(t, "sources say {A} and {B} disagree", v.Reasoning)
}

func TestParseModelOutputFallsBackOnUnparseableText(t *testing.T) {
	v := verify.ParseModelOutput("I cannot verify this claim without more context.")
	assert.Equal(t, "unverified", v.Verdict)
	assert.Equal(t, 0.5, v.Confidence)
	assert.Equal(t, "I cannot verify this claim without more context.", v.Reasoning)
	assert.Empty(t, v.Flags)
}

func TestParseModelOutputClampsConfidence(t *testing.T) {
	v := verify.ParseModelOutput(`{"verdict":"true","confidence":1.8,"reasoning":"x","flags":[]}`)
	assert.Equal(t, 1.0, v.Confidence)
}

func TestParseModelOutputCollapsesUnrecognizedVerdict(t *testing.T) {
	v := verify.ParseModelOutput(`{"verdict":"maybe","confidence":0.5,"reasoning":"x","flags":[]}`)
	assert.Equal(t, "unverified", v.Verdict)
}

func TestBuildPromptIncludesSourcesAndThreshold(t *testing.T) {
	got := verify.BuildPrompt("the sky is green", []string{"nasa.gov"}, 0.75)
	assert.Contains(t, got, "the sky is green")
	assert.Contains(t, got, "nasa.gov")
	assert.Contains(t, got, "0.75")
}
