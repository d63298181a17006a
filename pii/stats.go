package pii

import (
	"math"
	"sort"
)

// StatEntry is one (original, substitute, context) triple for inspection.
type StatEntry struct {
	Original   string `json:"original"`
	Substitute string `json:"substitute"`
	Context    string `json:"context"`
}

// LabelCount pairs an entity type with its substitution count.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Stats summarizes a substitution record: totals, per-type counts, the
// inspection triples in document order, and a frequency ranking usable to
// drive a chart.
type Stats struct {
	Total   int            `json:"total"`
	ByLabel map[string]int `json:"by_label"`
	Entries []StatEntry    `json:"entries"`
	Ranking []LabelCount   `json:"ranking"`
}

// Summarize aggregates a completed substitution record. Pure function of
// the record: no side effects, no I/O.
func Summarize(record Record) Stats {
	stats := Stats{
		Total:   len(record),
		ByLabel: make(map[string]int),
		Entries: make([]StatEntry, 0, len(record)),
	}

	for _, s := range record {
		stats.ByLabel[s.Entity.Label]++
		stats.Entries = append(stats.Entries, StatEntry{
			Original:   s.Entity.Text,
			Substitute: s.Replacement,
			Context:    s.Context(),
		})
	}

	stats.Ranking = make([]LabelCount, 0, len(stats.ByLabel))
	for label, count := range stats.ByLabel {
		stats.Ranking = append(stats.Ranking, LabelCount{Label: label, Count: count})
	}
	sort.Slice(stats.Ranking, func(i, j int) bool {
		if stats.Ranking[i].Count != stats.Ranking[j].Count {
			return stats.Ranking[i].Count > stats.Ranking[j].Count
		}
		return stats.Ranking[i].Label < stats.Ranking[j].Label
	})

	return stats
}

// Density returns substitutions per byte of source text, rounded to three
// decimals. Zero for empty text.
func (s Stats) Density(textLen int) float64 {
	if textLen <= 0 {
		return 0
	}
	return math.Round(float64(s.Total)/float64(textLen)*1000) / 1000
}

// LabelDistribution counts substitutions per entity type, optionally
// filtered to the given types.
func LabelDistribution(record Record, labels ...string) map[string]int {
	var allowed map[string]bool
	if len(labels) > 0 {
		allowed = make(map[string]bool, len(labels))
		for _, l := range labels {
			allowed[l] = true
		}
	}

	dist := make(map[string]int)
	for _, s := range record {
		if allowed == nil || allowed[s.Entity.Label] {
			dist[s.Entity.Label]++
		}
	}
	return dist
}
