package pii

import (
	"testing"

	detectors "github.com/anonydoc/anonydoc/pii/detectors"
)

func sampleRecord() Record {
	return Record{
		{Entity: detectors.Entity{Text: "Alice", Label: "PERSON"}, Replacement: "PERSON_aaaaaaaa", Before: "", After: " met"},
		{Entity: detectors.Entity{Text: "Bob", Label: "PERSON"}, Replacement: "PERSON_bbbbbbbb", Before: "met ", After: " in"},
		{Entity: detectors.Entity{Text: "Paris", Label: "LOC"}, Replacement: "LOC_cccccccc", Before: "in ", After: "."},
	}
}

func TestSummarize(t *testing.T) {
	stats := Summarize(sampleRecord())

	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.ByLabel["PERSON"] != 2 || stats.ByLabel["LOC"] != 1 {
		t.Errorf("ByLabel = %v", stats.ByLabel)
	}
	if len(stats.Entries) != 3 {
		t.Fatalf("Entries = %d, want 3", len(stats.Entries))
	}
	if stats.Entries[0].Original != "Alice" || stats.Entries[0].Substitute != "PERSON_aaaaaaaa" {
		t.Errorf("first entry = %+v", stats.Entries[0])
	}
	if stats.Entries[1].Context != "met Bob in" {
		t.Errorf("Context = %q", stats.Entries[1].Context)
	}
}

func TestSummarize_RankingOrder(t *testing.T) {
	record := Record{
		{Entity: detectors.Entity{Text: "a", Label: "LOC"}},
		{Entity: detectors.Entity{Text: "b", Label: "PERSON"}},
		{Entity: detectors.Entity{Text: "c", Label: "PERSON"}},
		{Entity: detectors.Entity{Text: "d", Label: "ORG"}},
	}

	stats := Summarize(record)
	want := []LabelCount{
		{Label: "PERSON", Count: 2},
		{Label: "LOC", Count: 1},
		{Label: "ORG", Count: 1},
	}
	if len(stats.Ranking) != len(want) {
		t.Fatalf("Ranking = %v", stats.Ranking)
	}
	for i := range want {
		if stats.Ranking[i] != want[i] {
			t.Errorf("Ranking[%d] = %+v, want %+v", i, stats.Ranking[i], want[i])
		}
	}
}

func TestSummarize_EmptyRecord(t *testing.T) {
	stats := Summarize(nil)
	if stats.Total != 0 || len(stats.Entries) != 0 || len(stats.Ranking) != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Density(100) != 0 {
		t.Errorf("Density = %v, want 0", stats.Density(100))
	}
}

func TestDensity(t *testing.T) {
	stats := Summarize(sampleRecord())
	if got := stats.Density(1000); got != 0.003 {
		t.Errorf("Density(1000) = %v, want 0.003", got)
	}
	if got := stats.Density(0); got != 0 {
		t.Errorf("Density(0) = %v, want 0", got)
	}
}

func TestLabelDistribution(t *testing.T) {
	record := sampleRecord()

	all := LabelDistribution(record)
	if all["PERSON"] != 2 || all["LOC"] != 1 {
		t.Errorf("distribution = %v", all)
	}

	filtered := LabelDistribution(record, "LOC")
	if len(filtered) != 1 || filtered["LOC"] != 1 {
		t.Errorf("filtered distribution = %v", filtered)
	}
}
