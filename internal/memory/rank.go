package memory

import (
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

type candidate struct {
	record    Record
	relevance float64
}

// terms splits text into lowercase word tokens.
func terms(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[f] = struct{}{}
	}
	return out
}

// lexicalOverlap is the fraction of query terms present in content.
func lexicalOverlap(query map[string]struct{}, content string) float64 {
	if len(query) == 0 {
		return 0
	}
	have := terms(content)
	hits := 0
	for t := range query {
		if _, ok := have[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// rankRecords orders records by relevance desc, then recency desc, then id,
// and returns at most limit of them. similarity maps record ids to vector
// similarity when an embedding search ran.
func rankRecords(records []Record, query string, similarity map[uuid.UUID]float64, limit int) []Record {
	qt := terms(query)
	cands := make([]candidate, 0, len(records))
	for _, rec := range records {
		rel := lexicalOverlap(qt, rec.Content)
		if sim, ok := similarity[rec.ID]; ok && sim > rel {
			rel = sim
		}
		cands = append(cands, candidate{record: rec, relevance: rel})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.relevance != b.relevance {
			return a.relevance > b.relevance
		}
		if !a.record.CreatedAt.Equal(b.record.CreatedAt) {
			return a.record.CreatedAt.After(b.record.CreatedAt)
		}
		return a.record.ID.String() < b.record.ID.String()
	})

	if len(cands) > limit {
		cands = cands[:limit]
	}
	out := make([]Record, len(cands))
	for i, c := range cands {
		out[i] = c.record
	}
	return out
}

// summarize renders records as "- <content>" lines.
func summarize(records []Record) string {
	lines := make([]string, len(records))
	for i, rec := range records {
		lines[i] = "- " + rec.Content
	}
	return strings.Join(lines, "\n")
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
