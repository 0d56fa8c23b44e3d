// Package verify implements the structured claim-verification sub-protocol:
// routing a claim to the right agent, building the fixed verification
// prompt, and scanning the model's raw output for an embedded JSON object
// rather than assuming the whole response is clean JSON.
package verify

import (
	"encoding/json"
	"regexp"
	"strings"
)

// sensitiveClaim routes a claim to the security-auditing agent when it
// looks like it concerns secrets or exploits.
var sensitiveClaim = regexp.MustCompile(`(?i)password|secret|key|token|vulnerability|exploit|breach|hack`)

// Route returns the (agent, intent) pair a claim should be dispatched to.
func Route(claim string) (agent, intent string) {
	if sensitiveClaim.MatchString(claim) {
		return "cipher", "audit"
	}
	return "prism", "analyze"
}

// BuildPrompt constructs the fixed instruction prompt sent as the user
// input for a verify request.
func BuildPrompt(claim string, sources []string, confidenceThreshold float64) string {
	var b strings.Builder
	b.WriteString("Verify the following claim and respond with ONLY a JSON object ")
	b.WriteString(`of the shape {"verdict":"true"|"false"|"unverified"|"conflicting","confidence":0..1,"reasoning":string,"flags":string[]}.`)
	b.WriteString("\n\nClaim: ")
	b.WriteString(claim)
	if len(sources) > 0 {
		b.WriteString("\n\nSources to consider:\n")
		for _, s := range sources {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	if confidenceThreshold > 0 {
		b.WriteString("\n\nOnly report verdict \"true\" or \"false\" if your confidence meets or exceeds ")
		b.WriteString(formatThreshold(confidenceThreshold))
		b.WriteString("; otherwise use \"unverified\".")
	}
	return b.String()
}

func formatThreshold(t float64) string {
	s := strings.TrimRight(strings.TrimRight(jsonNumber(t), "0"), ".")
	if s == "" {
		s = "0"
	}
	return s
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

// Verdict is the parsed (or synthesized) result of a verify call.
type Verdict struct {
	Verdict    string   `json:"verdict"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Flags      []string `json:"flags"`
}

var validVerdicts = map[string]bool{
	"true":        true,
	"false":       true,
	"unverified":  true,
	"conflicting": true,
}

// ParseModelOutput extracts the first balanced {...} substring from raw and
// parses it as a Verdict. On parse failure (no balanced object, or invalid
// JSON), it returns the spec's documented fallback: verdict="unverified",
// confidence=0.5, reasoning=raw, flags=[]. Confidence is clamped to [0,1];
// unrecognized verdicts collapse to "unverified".
func ParseModelOutput(raw string) Verdict {
	obj := extractBalancedObject(raw)
	if obj == "" {
		return fallback(raw)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return fallback(raw)
	}

	if !validVerdicts[v.Verdict] {
		v.Verdict = "unverified"
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	if v.Flags == nil {
		v.Flags = []string{}
	}
	return v
}

func fallback(raw string) Verdict {
	return Verdict{
		Verdict:    "unverified",
		Confidence: 0.5,
		Reasoning:  raw,
		Flags:      []string{},
	}
}

// extractBalancedObject scans s for the first top-level balanced {...}
// substring, tolerating nested objects and quoted braces inside strings
// (e.g. in a "reasoning" field). Returns "" if no balanced object is found.
func extractBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
