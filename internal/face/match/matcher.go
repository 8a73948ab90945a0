// Package match implements the 1:N similarity algorithm: cosine scoring over
// a candidate set with precise threshold, ranking, and tie-break semantics.
//
// Thresholds are inclusive (>=) everywhere. Ties are broken by candidate
// insertion order via a stable sort, so results are deterministic for a given
// candidate ordering.
package match

import (
	"math"
	"sort"

	"faceledger/internal/face/models"
)

const (
	// topMatchCount limits the matches returned alongside the best hit.
	topMatchCount = 4

	// diagnosticCount limits the top-similarity diagnostics returned when
	// nothing clears the threshold. Diagnostics exist for calibration and are
	// never a match.
	diagnosticCount = 5
)

// Matcher scores query embeddings against enrolled candidates. It is
// stateless and safe for concurrent use.
type Matcher struct{}

// New returns a Matcher.
func New() *Matcher { return &Matcher{} }

// Cosine returns the cosine similarity of two vectors, defined as 0 when
// either has zero norm. It does not require unit-normalized input.
func Cosine(a, b models.Embedding) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, v := range a {
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// scored pairs a candidate with its similarity, keeping the original index
// for the stable tie break.
type scored struct {
	record     models.EnrollmentRecord
	similarity float64
}

// Verify scans candidates for the query embedding.
//
// The owner filter is applied BEFORE scoring so diagnostics reflect the
// filtered set. Matches are candidates with similarity >= threshold, ranked
// descending. When no candidate qualifies, the result carries a top-5
// diagnostic by similarity regardless of threshold; that path must never be
// treated as a match.
func (m *Matcher) Verify(query models.Embedding, candidates []models.EnrollmentRecord, threshold float64, filter models.OwnerFilter) models.VerificationResult {
	ranked := m.rank(query, candidates, filter)

	var matches []scored
	for _, s := range ranked {
		if s.similarity >= threshold {
			matches = append(matches, s)
		}
	}

	result := models.VerificationResult{
		StoreChecked: true,
		Candidates:   len(ranked),
	}

	if len(matches) == 0 {
		limit := diagnosticCount
		if len(ranked) < limit {
			limit = len(ranked)
		}
		for i := 0; i < limit; i++ {
			result.Diagnostic = append(result.Diagnostic, toMatchResult(ranked[i], uint(i)))
		}
		return result
	}

	result.Matched = true
	best := toMatchResult(matches[0], 0)
	result.Best = &best

	limit := topMatchCount
	if len(matches) < limit {
		limit = len(matches)
	}
	for i := 0; i < limit; i++ {
		result.TopMatches = append(result.TopMatches, toMatchResult(matches[i], uint(i)))
	}
	return result
}

// FindSimilar returns EVERY candidate at or above the threshold, ranked
// descending, excluding the given owner. Used for duplicate detection before
// enrollment; each hit carries a human-facing confidence tier.
func (m *Matcher) FindSimilar(query models.Embedding, candidates []models.EnrollmentRecord, threshold float64, excludeOwnerID string) []models.MatchResult {
	filtered := candidates
	if excludeOwnerID != "" {
		filtered = make([]models.EnrollmentRecord, 0, len(candidates))
		for _, c := range candidates {
			if c.OwnerID != excludeOwnerID {
				filtered = append(filtered, c)
			}
		}
	}

	ranked := m.rank(query, filtered, models.OwnerFilter{})

	var out []models.MatchResult
	for i, s := range ranked {
		if s.similarity < threshold {
			// ranked is sorted descending; nothing after this qualifies.
			break
		}
		mr := toMatchResult(s, uint(i))
		mr.Confidence = models.TierFor(s.similarity)
		out = append(out, mr)
	}
	return out
}

// rank filters, scores, and stable-sorts candidates descending by similarity.
func (m *Matcher) rank(query models.Embedding, candidates []models.EnrollmentRecord, filter models.OwnerFilter) []scored {
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if !filter.Matches(c) {
			continue
		}
		ranked = append(ranked, scored{record: c, similarity: Cosine(query, c.Embedding)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].similarity > ranked[j].similarity
	})
	return ranked
}

func toMatchResult(s scored, rank uint) models.MatchResult {
	return models.MatchResult{
		OwnerID:    s.record.OwnerID,
		OwnerName:  s.record.OwnerName,
		Similarity: s.similarity,
		Rank:       rank,
	}
}
