// SPDX-License-Identifier: MPL-2.0

package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

const (
	// MethodSession ranks by the session score.
	MethodSession Method = "session"
	// MethodSampling ranks by an external judgment.
	MethodSampling Method = "sampling"

	// MinSamplingCandidates is the smallest candidate count worth an
	// external judgment.
	MinSamplingCandidates = 3
)

// ErrDuplicateKey is returned when two candidates share a key.
var ErrDuplicateKey = errors.New("duplicate candidate key")

type (
	// Method names how a Ranking was produced.
	Method string

	// Sampler asks an external model to order keys for a query.
	Sampler interface {
		Available(ctx context.Context) bool
		Judge(ctx context.Context, query string, keys []string) (string, error)
	}

	// Candidate is one record competing for a query. Slice order is the
	// manifest order.
	Candidate struct {
		Key    string
		Module string
	}

	// Ranking is a total order over the candidate keys.
	Ranking struct {
		Keys   []string
		Method Method
		// Scores holds the session score of every key, even when the order
		// came from a Sampler.
		Scores map[string]float64
	}

	// Ranker combines a Tracker, Weights, and an optional Sampler.
	Ranker struct {
		tracker *Tracker
		weights Weights
		sampler Sampler
	}
)

// NewRanker creates a Ranker. sampler may be nil.
func NewRanker(tracker *Tracker, weights Weights, sampler Sampler) *Ranker {
	if tracker == nil {
		tracker = NewTracker(nil)
	}
	return &Ranker{tracker: tracker, weights: weights, sampler: sampler}
}

// WithSampler returns a copy of r that uses sampler.
func (r *Ranker) WithSampler(sampler Sampler) *Ranker {
	return &Ranker{tracker: r.tracker, weights: r.weights, sampler: sampler}
}

// Tracker returns the usage tracker.
func (r *Ranker) Tracker() *Tracker { return r.tracker }

// Score returns the session score of key at position i of n.
func (r *Ranker) Score(key, module string, i, n int) float64 {
	usage, _ := r.tracker.Get(key)
	return SessionScore(r.weights, usage, r.tracker.Now(), key, module, i, n)
}

// Rank orders candidates. A Sampler failure falls back to the session
// order with a warning; only invalid input is an error.
func (r *Ranker) Rank(ctx context.Context, candidates []Candidate, query string) (Ranking, error) {
	keys := make([]string, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		if _, dup := seen[c.Key]; dup {
			return Ranking{}, fmt.Errorf("%w: %q", ErrDuplicateKey, c.Key)
		}
		seen[c.Key] = struct{}{}
		keys[i] = c.Key
	}

	scores := make(map[string]float64, len(candidates))
	for i, c := range candidates {
		scores[c.Key] = r.Score(c.Key, c.Module, i, len(candidates))
	}

	if r.useSampler(ctx, len(candidates), query) {
		text, err := r.sampler.Judge(ctx, query, keys)
		if err == nil {
			decisionsTotal.WithLabelValues(string(MethodSampling)).Inc()
			return Ranking{Keys: ParseJudgment(text, keys), Method: MethodSampling, Scores: scores}, nil
		}
		samplerFallbacks.Inc()
		slog.Warn("sampling judgment failed, using session ranking", "error", err, "candidates", len(candidates))
	}

	ordered := slices.Clone(keys)
	pos := make(map[string]int, len(keys))
	for i, k := range keys {
		pos[k] = i
	}
	slices.SortStableFunc(ordered, func(a, b string) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		default:
			return pos[a] - pos[b]
		}
	})

	decisionsTotal.WithLabelValues(string(MethodSession)).Inc()
	return Ranking{Keys: ordered, Method: MethodSession, Scores: scores}, nil
}

func (r *Ranker) useSampler(ctx context.Context, n int, query string) bool {
	return r.sampler != nil &&
		n >= MinSamplingCandidates &&
		strings.TrimSpace(query) != "" &&
		r.sampler.Available(ctx)
}

// ParseJudgment turns a free-text ordering into a permutation of keys.
// Entries match keys exactly, then case-insensitively against the first
// unused key. Unknown and repeated entries are dropped; keys the text
// omits are appended in their original order.
func ParseJudgment(text string, keys []string) []string {
	exact := make(map[string]struct{}, len(keys))
	folded := make(map[string][]string, len(keys))
	for _, k := range keys {
		exact[k] = struct{}{}
		lk := strings.ToLower(k)
		folded[lk] = append(folded[lk], k)
	}

	out := make([]string, 0, len(keys))
	used := make(map[string]struct{}, len(keys))
	lookup := func(token string) (string, bool) {
		if _, ok := exact[token]; ok {
			_, dup := used[token]
			return token, !dup
		}
		for _, k := range folded[strings.ToLower(token)] {
			if _, dup := used[k]; !dup {
				return k, true
			}
		}
		return "", false
	}

	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == '\n' || r == '\r' })
	for _, f := range fields {
		k, ok := lookup(cleanToken(f))
		if !ok {
			continue
		}
		used[k] = struct{}{}
		out = append(out, k)
	}

	for _, k := range keys {
		if _, ok := used[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// cleanToken strips list markup: "1. ", "- ", "* ", quotes, and backticks.
func cleanToken(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*•> \t")
	if i := strings.IndexAny(s, ".)"); i > 0 && isDigits(s[:i]) {
		s = s[i+1:]
	}
	return strings.Trim(strings.TrimSpace(s), "\"'`")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
