// Package similarity scores query vectors against stored records and
// produces ranked, filtered, truncated result sets.
package similarity

import (
	"fmt"
	"math"
	"sort"

	"github.com/imgvec/imgvec/internal/record"
)

// Options controls a ranking pass.
type Options struct {
	// TopN bounds the returned ranked list. Zero or negative yields an
	// empty list while TotalMatches is still computed.
	TopN int

	// Threshold is the inclusive similarity cutoff: a candidate is a
	// match iff score >= Threshold.
	Threshold float64

	// Filter narrows which matches appear in the ranked list. It does
	// not affect TotalMatches.
	Filter record.Filter
}

// ValidateVector rejects vectors that cannot participate in cosine
// scoring: empty vectors and all-zero vectors, whose direction is
// undefined. Checked at insert and query time so the error surfaces to
// the caller instead of a NaN score.
func ValidateVector(v []float32) error {
	if len(v) == 0 {
		return &record.ValidationError{Reason: "empty vector"}
	}
	for _, f := range v {
		if f != 0 {
			return nil
		}
	}
	return &record.ValidationError{Reason: "zero-norm vector has no direction"}
}

// Cosine computes the cosine similarity of two vectors, accumulating in
// float64. It returns a validation error for mismatched lengths and for
// zero-norm operands rather than letting a NaN escape.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &record.ValidationError{Reason: fmt.Sprintf("vector length mismatch: %d vs %d", len(a), len(b))}
	}
	if len(a) == 0 {
		return 0, &record.ValidationError{Reason: "empty vector"}
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 || normB == 0 {
		return 0, &record.ValidationError{Reason: "zero-norm vector has no direction"}
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Rank scores every candidate against the query and assembles the
// result set.
//
// TotalMatches counts all candidates whose score met the threshold,
// before the metadata filter and before top-N truncation. The ranked
// list holds only filter-passing matches, in strictly descending score
// order; ties keep the candidates' storage order, so two identical
// queries over identical contents return identical lists.
func Rank(query []float32, candidates []record.Record, opts Options) (*record.ResultSet, error) {
	matches := make([]record.Match, 0, len(candidates))
	total := 0

	for _, cand := range candidates {
		score, err := Cosine(query, cand.Vector)
		if err != nil {
			return nil, fmt.Errorf("scoring %q: %w", cand.IdentityKey, err)
		}
		if score < opts.Threshold {
			continue
		}
		total++
		if !opts.Filter.Matches(cand.Metadata) {
			continue
		}
		matches = append(matches, record.Match{
			Score:       score,
			IdentityKey: cand.IdentityKey,
			Payload:     cand.Payload,
			Metadata:    cand.Metadata,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if opts.TopN <= 0 {
		matches = []record.Match{}
	} else if len(matches) > opts.TopN {
		matches = matches[:opts.TopN]
	}

	return &record.ResultSet{
		TotalMatches: total,
		Matches:      matches,
	}, nil
}
