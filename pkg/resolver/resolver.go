// Package resolver maps free-text name mentions to participant identities.
//
// Resolve always picks the best-scoring key; it never rejects a mention for
// scoring low. Callers that want a confidence cut-off apply it to Match.Score.
package resolver

import (
	"context"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/otherjamesbrown/groupprep/pkg/identity"
	"github.com/otherjamesbrown/groupprep/pkg/similarity"
)

// Match is the outcome of resolving one mention.
type Match struct {
	Mention string `json:"mention" yaml:"mention"`
	Key     string `json:"key" yaml:"key"`
	ID      int    `json:"id" yaml:"id"`
	Score   int    `json:"score" yaml:"score"`
}

// Confident reports whether the match scored at least min.
func (m Match) Confident(min int) bool {
	return m.ID != 0 && m.Score >= min
}

// Resolver scores mentions against a read-only identity map.
// It is safe for concurrent use.
type Resolver struct {
	keys   []string
	ids    []int
	scorer similarity.Scorer
}

// New creates a Resolver over m. The key order of m decides ties.
func New(m *identity.Map, scorer similarity.Scorer) *Resolver {
	keys := m.Keys()
	ids := make([]int, len(keys))
	for i, k := range keys {
		ids[i], _ = m.ID(k)
	}
	return &Resolver{keys: keys, ids: ids, scorer: scorer}
}

// Resolve returns the key with the highest score for mention. Equal scores
// keep the earliest key, so an empty mention, which ties everywhere,
// resolves to identity 1. On an empty map the zero Match is returned.
func (r *Resolver) Resolve(mention string) Match {
	best := Match{Mention: mention, Score: -1}
	for i, k := range r.keys {
		if s := r.scorer.Score(mention, k); s > best.Score {
			best.Key, best.ID, best.Score = k, r.ids[i], s
		}
	}
	if best.Score < 0 {
		return Match{Mention: mention}
	}
	return best
}

// Options controls ResolveAll.
type Options struct {
	// Concurrency bounds the number of goroutines; <= 0 uses GOMAXPROCS.
	Concurrency int
}

// ResolveAll resolves every mention list. Empty mentions are not scored and
// yield a zero Match. Each goroutine writes only its own result slot.
func (r *Resolver) ResolveAll(ctx context.Context, lists [][]string, opts Options) ([][]Match, error) {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	out := make([][]Match, len(lists))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, mentions := range lists {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			matches := make([]Match, len(mentions))
			for j, m := range mentions {
				if m == "" {
					matches[j] = Match{}
					continue
				}
				matches[j] = r.Resolve(m)
			}
			out[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SplitMentions splits free preference text on sep, trims each part and
// removes inner spaces so mentions line up with concatenated name keys.
// Empty parts are kept as "" to preserve positions.
func SplitMentions(text, sep string) []string {
	if sep == "" {
		sep = ","
	}
	parts := strings.Split(text, sep)
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.ReplaceAll(strings.TrimSpace(p), " ", "")
	}
	return out
}
