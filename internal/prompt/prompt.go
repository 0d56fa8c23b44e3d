// Package prompt composes the layered system prompt sent to a provider:
// default → agent → intent → context, in that order.
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document is the system-prompt fragment document.
type Document struct {
	Default string            `json:"default"`
	Agents  map[string]string `json:"agents"`
	Intents map[string]string `json:"intents"`
}

// Load reads and parses the prompt file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse prompt file: %w", err)
	}
	return &doc, nil
}

// Compose concatenates, separated by blank lines, in order: prompts.default,
// prompts.agents[agent], prompts.intents[intent], and — if context is a
// non-empty object — a "Context JSON:\n<json>" block. Missing fragments are
// skipped. Returns "" if prompts is nil.
func Compose(doc *Document, agent, intent string, reqContext map[string]interface{}) string {
	if doc == nil {
		return ""
	}

	var parts []string
	if doc.Default != "" {
		parts = append(parts, doc.Default)
	}
	if frag, ok := doc.Agents[agent]; ok && frag != "" {
		parts = append(parts, frag)
	}
	if frag, ok := doc.Intents[intent]; ok && frag != "" {
		parts = append(parts, frag)
	}
	if len(reqContext) > 0 {
		encoded, err := json.Marshal(reqContext)
		if err == nil {
			parts = append(parts, "Context JSON:\n"+string(encoded))
		}
	}

	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}
