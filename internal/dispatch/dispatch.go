// Package dispatch implements provider selection with fallback: try each
// provider in order, return on first success, and fail with a composite
// error if every attempt fails. The ordering is the policy-defined primary
// plus fallback chain.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/blackroad-ai/gateway/internal/providers"
)

// Result is what a successful dispatch returns.
type Result struct {
	Output   string
	Provider string
	Fallback bool
}

// InvokeWithFallback implements the dispatch algorithm:
//  1. If the registry resolves primary, call it; on success, fallback=false.
//  2. Otherwise (primary unresolved or failed) iterate fallbackChain in
//     order, skipping entries equal to primary and entries the registry
//     can't resolve; first success wins, fallback=true.
//  3. If every attempt failed, fail with a composite error joining each
//     attempted provider and its error message with "; ".
//
// Edge cases: a failing primary with an empty fallback chain re-raises the
// primary error verbatim, not the composite form. If primary is unresolved
// and fallbackChain is empty, fail with "No provider available".
func InvokeWithFallback(registry *providers.Registry, primary string, fallbackChain []string, args providers.InvokeArgs) (*Result, error) {
	primaryAdapter, primaryResolved := registry.Get(primary)

	var attempts []string // "name: error" for the composite failure message
	var primaryErr error

	if primaryResolved {
		output, err := primaryAdapter.Invoke(args)
		if err == nil {
			return &Result{Output: output, Provider: primary, Fallback: false}, nil
		}
		primaryErr = err
		attempts = append(attempts, fmt.Sprintf("%s: %s", primary, err.Error()))
	} else if len(fallbackChain) == 0 {
		return nil, fmt.Errorf("No provider available")
	}

	for _, name := range fallbackChain {
		if name == primary {
			continue // already tried
		}
		adapter, ok := registry.Get(name)
		if !ok {
			continue
		}
		output, err := adapter.Invoke(args)
		if err == nil {
			return &Result{Output: output, Provider: name, Fallback: true}, nil
		}
		attempts = append(attempts, fmt.Sprintf("%s: %s", name, err.Error()))
	}

	if !primaryResolved && len(attempts) == 0 {
		return nil, fmt.Errorf("No provider available")
	}

	if len(attempts) == 1 && primaryErr != nil {
		// Primary failed, fallback chain was empty or fully unresolvable:
		// re-raise the primary error verbatim.
		return nil, primaryErr
	}

	return nil, fmt.Errorf("%s", strings.Join(attempts, "; "))
}
