// Package strategy provides an ordered first-success combinator for the
// multi-candidate probes used across dependency checks, binary location,
// tool resolution, and download fallbacks.
package strategy

import (
	"context"
	"fmt"
	"strings"
)

// Strategy is one named candidate in an ordered attempt list.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// First evaluates strategies in order and returns the first success along
// with the winning strategy name. When all fail it returns an error that
// aggregates every attempt, wrapping the last cause.
func First[T any](ctx context.Context, candidates []Strategy[T]) (T, string, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, "", fmt.Errorf("no strategies configured")
	}

	failures := make([]string, 0, len(candidates))
	var lastErr error
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		value, err := candidate.Run(ctx)
		if err == nil {
			return value, candidate.Name, nil
		}
		lastErr = err
		failures = append(failures, fmt.Sprintf("%s: %v", candidate.Name, err))
	}

	return zero, "", fmt.Errorf("all strategies failed (%s): %w", strings.Join(failures, " | "), lastErr)
}
