// Package match reconciles a source ProjectKey against a set of target
// directory names using a cascade of decreasingly strict equality checks.
package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/hbomb79/galleria/internal/namekey"
)

// SuggestionCutoff is the minimum similarity for a candidate to be offered as a near miss.
const SuggestionCutoff = 0.6

type Tier int

const (
	NoMatch Tier = iota
	ExactTier
	NormalizedTier
	CaseInsensitiveTier
	SimplifiedTier
)

func (t Tier) String() string {
	return []string{"none", "exact", "normalized", "case-insensitive", "simplified"}[t]
}

type (
	// Result describes the candidate selected by Match and the tier which selected it.
	Result struct {
		Candidate string
		Tier      Tier
	}

	// Suggestion is a near-miss candidate, offered for human review only.
	Suggestion struct {
		Candidate  string  `json:"candidate"`
		Similarity float64 `json:"similarity"`
	}

	// AmbiguousMatchError is returned when the simplified tier matches
	// more than one distinct candidate.
	AmbiguousMatchError struct {
		Key        namekey.ProjectKey
		Candidates []string
	}
)

func (err *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match for %q: %d candidates simplify to the same name (%s)", err.Key, len(err.Candidates), strings.Join(err.Candidates, ", "))
}

// Match finds the candidate corresponding to the key provided. A nil result
// with a nil error means no candidate matched at any tier.
//
// Within the exact, normalized and case-insensitive tiers the first matching
// candidate (in input order) wins.
func Match(key namekey.ProjectKey, candidates []string) (*Result, error) {
	reconstructed := key.String()
	for _, c := range candidates {
		if c == reconstructed {
			return &Result{Candidate: c, Tier: ExactTier}, nil
		}
	}

	normalizedKey := namekey.Normalize(reconstructed)
	normalized := make([]string, len(candidates))
	for i, c := range candidates {
		normalized[i] = namekey.Normalize(c)
		if normalized[i] == normalizedKey {
			return &Result{Candidate: c, Tier: NormalizedTier}, nil
		}
	}

	for i, c := range candidates {
		if strings.EqualFold(normalized[i], normalizedKey) {
			return &Result{Candidate: c, Tier: CaseInsensitiveTier}, nil
		}
	}

	simplifiedKey := namekey.Simplify(normalizedKey)
	var hits []string
	seen := make(map[string]struct{})
	for i, c := range candidates {
		if namekey.Simplify(normalized[i]) != simplifiedKey {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}

		seen[c] = struct{}{}
		hits = append(hits, c)
	}

	switch len(hits) {
	case 0:
		return nil, nil
	case 1:
		return &Result{Candidate: hits[0], Tier: SimplifiedTier}, nil
	default:
		return nil, &AmbiguousMatchError{Key: key, Candidates: hits}
	}
}

// Suggest ranks candidates by Jaro-Winkler similarity of their simplified forms
// against the key, returning at most 'limit' candidates at or above SuggestionCutoff.
// Suggestions are never used to link directories.
func Suggest(key namekey.ProjectKey, candidates []string, limit int) []Suggestion {
	if limit <= 0 {
		return nil
	}

	metric := metrics.NewJaroWinkler()
	metric.CaseSensitive = false

	target := namekey.Simplify(namekey.Normalize(key.String()))
	suggestions := make([]Suggestion, 0)
	for _, c := range candidates {
		score := strutil.Similarity(target, namekey.Simplify(namekey.Normalize(c)), metric)
		if score >= SuggestionCutoff {
			suggestions = append(suggestions, Suggestion{Candidate: c, Similarity: score})
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool { return suggestions[i].Similarity > suggestions[j].Similarity })
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}

	return suggestions
}
