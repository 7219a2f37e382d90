// Package keyword turns free-text feedback comments into a short list of
// salient phrases. The aggregator depends only on the Extractor contract;
// the statistical, HTTP and cached implementations are interchangeable.
package keyword

import (
	"context"
	"strings"
)

// Extractor maps text to at most topN phrases. Implementations must be
// deterministic for a given input and return an empty list for blank text.
// Callers treat the result as an unordered set.
type Extractor interface {
	Extract(ctx context.Context, text string, topN int) ([]string, error)
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, text string, topN int) ([]string, error)

func (f Func) Extract(ctx context.Context, text string, topN int) ([]string, error) {
	return f(ctx, text, topN)
}

// Normalize trims phrases, drops blanks and case-insensitive duplicates, and
// keeps the first spelling seen.
func Normalize(phrases []string) []string {
	if len(phrases) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
