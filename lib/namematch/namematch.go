package namematch

import (
	"sort"

	"notion-helper/lib/textutil"

	"github.com/antzucaro/matchr"
)

type Candidate struct {
	// an opaque identifier the caller uses to find the candidate again
	Key     string
	Name    string
	Aliases []string
}

type Scored struct {
	Candidate Candidate
	Score     float64
	// the name or alias that produced the score
	MatchedOn string
}

type Options struct {
	// multiplies alias scores so that a primary name wins a tie
	AliasWeight float64
	// candidates scoring below this are dropped by Best
	MinScore float64
}

func DefaultOptions() Options {
	return Options{AliasWeight: 0.98, MinScore: 0.75}
}

// Similarity compares two names after normalization. Exact matches score 1.
func Similarity(a, b string) float64 {
	na := textutil.NormalizeName(a)
	nb := textutil.NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return matchr.JaroWinkler(na, nb, false)
}

func score(query string, c Candidate, opts Options) Scored {
	best := Scored{Candidate: c, Score: Similarity(query, c.Name), MatchedOn: c.Name}
	for _, alias := range c.Aliases {
		s := Similarity(query, alias) * opts.AliasWeight
		if s > best.Score {
			best.Score = s
			best.MatchedOn = alias
		}
	}
	return best
}

// Rank scores every candidate against query, highest first. Candidates with
// equal scores keep their original order.
func Rank(query string, candidates []Candidate, opts Options) []Scored {
	if opts.AliasWeight <= 0 {
		opts.AliasWeight = 1
	}
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = score(query, c, opts)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Best returns the highest ranked candidate if it reaches opts.MinScore.
func Best(query string, candidates []Candidate, opts Options) (Scored, bool) {
	ranked := Rank(query, candidates, opts)
	if len(ranked) == 0 || ranked[0].Score < opts.MinScore {
		return Scored{}, false
	}
	return ranked[0], true
}

// SnapToOptions replaces each value with the most similar entry of options
// when the similarity reaches minScore, otherwise the value is kept as is.
// Duplicates produced by snapping are removed.
func SnapToOptions(values, options []string, minScore float64) []string {
	if len(options) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		snapped := v
		var mostSimilarity float64
		for _, o := range options {
			similarity := Similarity(v, o)
			if similarity > mostSimilarity {
				mostSimilarity = similarity
				snapped = o
			}
		}
		if mostSimilarity < minScore {
			snapped = v
		}
		if _, dup := seen[snapped]; dup {
			continue
		}
		seen[snapped] = struct{}{}
		out = append(out, snapped)
	}
	return out
}
