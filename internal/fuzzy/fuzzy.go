// SPDX-License-Identifier: MPL-2.0

package fuzzy

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
)

const (
	// CorrectDistance is the largest edit distance that is corrected silently
	// when exactly one candidate is that close.
	CorrectDistance = 1
	// SuggestDistance is the largest edit distance that still yields
	// suggestions instead of a plain no-match.
	SuggestDistance = 3

	// MatchExact means the query named a candidate exactly (ignoring case).
	MatchExact MatchKind = "exact"
	// MatchCorrected means a single near miss was accepted.
	MatchCorrected MatchKind = "corrected"
)

var (
	// ErrAmbiguousMatch is the sentinel wrapped by AmbiguousMatchError.
	ErrAmbiguousMatch = errors.New("ambiguous match")
	// ErrNoMatch is the sentinel wrapped by NoMatchError.
	ErrNoMatch = errors.New("no match")
	// ErrNoCandidates is the sentinel wrapped by NoCandidatesError.
	ErrNoCandidates = errors.New("no candidates")
)

type (
	// MatchKind describes how a Result was reached.
	MatchKind string

	// Candidate is one name that a query may resolve to.
	Candidate struct {
		Name   string
		Module string
	}

	// Result is a successful resolution.
	Result struct {
		Candidate Candidate
		Kind      MatchKind
		Distance  int
	}

	// AmbiguousMatchError lists the closest candidates when no single one
	// can be chosen.
	AmbiguousMatchError struct {
		Query       string
		Suggestions []string
		// Hint is the command that lists every candidate.
		Hint string
	}

	// NoMatchError is returned when nothing is close to the query.
	NoMatchError struct {
		Query string
		Hint  string
	}

	// NoCandidatesError is returned when there is nothing to match against.
	NoCandidatesError struct {
		Source string
	}

	scored struct {
		cand Candidate
		dist int
	}
)

func (e *AmbiguousMatchError) Error() string {
	msg := fmt.Sprintf("%q is ambiguous; did you mean: %s", e.Query, strings.Join(e.Suggestions, ", "))
	if e.Hint != "" {
		msg += fmt.Sprintf(" (run %q to list all)", e.Hint)
	}
	return msg
}

func (e *AmbiguousMatchError) Unwrap() error { return ErrAmbiguousMatch }

func (e *NoMatchError) Error() string {
	msg := fmt.Sprintf("no match for %q", e.Query)
	if e.Hint != "" {
		msg += fmt.Sprintf(" (run %q to list all)", e.Hint)
	}
	return msg
}

func (e *NoMatchError) Unwrap() error { return ErrNoMatch }

func (e *NoCandidatesError) Error() string {
	if e.Source == "" {
		return "no agents found for this source"
	}
	return fmt.Sprintf("no agents found for this source (%s)", e.Source)
}

func (e *NoCandidatesError) Unwrap() error { return ErrNoCandidates }

// Qualified returns "module/name", or the name alone when there is no module.
func (c Candidate) Qualified() string {
	if c.Module == "" {
		return c.Name
	}
	return c.Module + "/" + c.Name
}

// Match resolves query against candidates. hint is the discovery command
// reported in errors. Only exact matches and a unique near miss succeed.
func Match(query string, candidates []Candidate, hint string) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, &NoCandidatesError{}
	}

	q := strings.ToLower(strings.TrimSpace(query))
	for _, c := range candidates {
		if strings.ToLower(c.Name) == q || strings.ToLower(c.Qualified()) == q {
			return Result{Candidate: c, Kind: MatchExact}, nil
		}
	}

	ranked := rank(q, candidates)
	best := ranked[0].dist
	tied := 0
	for _, s := range ranked {
		if s.dist == best {
			tied++
		}
	}

	if best <= CorrectDistance && tied == 1 {
		return Result{Candidate: ranked[0].cand, Kind: MatchCorrected, Distance: best}, nil
	}
	if best <= SuggestDistance {
		return Result{}, &AmbiguousMatchError{
			Query:       query,
			Suggestions: suggestions(ranked, SuggestDistance),
			Hint:        hint,
		}
	}
	return Result{}, &NoMatchError{Query: query, Hint: hint}
}

// Suggest returns candidate names within SuggestDistance of query, closest
// first and alphabetical within a distance.
func Suggest(query string, candidates []Candidate) []string {
	if len(candidates) == 0 {
		return nil
	}
	return suggestions(rank(strings.ToLower(strings.TrimSpace(query)), candidates), SuggestDistance)
}

// Distance is the case-insensitive Levenshtein distance between a and b.
func Distance(a, b string) int {
	return levenshtein.ComputeDistance(strings.ToLower(a), strings.ToLower(b))
}

func rank(q string, candidates []Candidate) []scored {
	out := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(q, strings.ToLower(c.Name))
		if c.Module != "" {
			d = min(d, levenshtein.ComputeDistance(q, strings.ToLower(c.Qualified())))
		}
		out = append(out, scored{cand: c, dist: d})
	}
	slices.SortStableFunc(out, func(a, b scored) int {
		if a.dist != b.dist {
			return a.dist - b.dist
		}
		return strings.Compare(a.cand.Name, b.cand.Name)
	})
	return out
}

func suggestions(ranked []scored, limit int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range ranked {
		if s.dist > limit {
			break
		}
		if _, ok := seen[s.cand.Name]; ok {
			continue
		}
		seen[s.cand.Name] = struct{}{}
		out = append(out, s.cand.Name)
	}
	return out
}
