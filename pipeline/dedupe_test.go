package pipeline

import (
	"testing"

	"ig_leadgen/models"
)

func TestDedupeEmpty(t *testing.T) {
	unique, duplicates := Dedupe(nil)
	if len(unique) != 0 {
		t.Fatalf("expected no uniques, got %d", len(unique))
	}
	if len(duplicates) != 0 {
		t.Fatalf("expected no duplicates, got %d", len(duplicates))
	}
}

func TestDedupeFirstWins(t *testing.T) {
	in := []models.Candidate{
		{Tag: "fitness", Username: "alice", SourceURL: "first"},
		{Tag: "fitness", Username: "bob"},
		{Tag: "fitness", Username: "alice", SourceURL: "second"},
	}

	unique, duplicates := Dedupe(in)

	if len(unique) != 2 {
		t.Fatalf("expected 2 uniques, got %d", len(unique))
	}
	if unique[0].Username != "alice" || unique[1].Username != "bob" {
		t.Fatalf("input order not preserved: %v", unique)
	}
	if unique[0].SourceURL != "first" {
		t.Fatalf("first occurrence should win, got source %q", unique[0].SourceURL)
	}
	if !duplicates["alice"] {
		t.Fatal("alice should be flagged as duplicate")
	}
	if duplicates["bob"] {
		t.Fatal("bob should not be flagged as duplicate")
	}
}

func TestDedupeSameUsernameDifferentTags(t *testing.T) {
	in := []models.Candidate{
		{Tag: "fitness", Username: "alice"},
		{Tag: "yoga", Username: "alice"},
	}

	unique, duplicates := Dedupe(in)

	if len(unique) != 2 {
		t.Fatalf("distinct tags form distinct keys, expected 2 uniques, got %d", len(unique))
	}
	if duplicates["alice"] {
		t.Fatal("alice recurred under different keys, should not be a duplicate")
	}
}

func TestDedupeIdempotent(t *testing.T) {
	in := []models.Candidate{
		{Tag: "fitness", Username: "alice"},
		{Tag: "fitness", Username: "alice"},
		{Tag: "fitness", Username: "bob"},
	}

	once, _ := Dedupe(in)
	twice, duplicates := Dedupe(once)

	if len(twice) != len(once) {
		t.Fatalf("second pass changed result: %d vs %d", len(twice), len(once))
	}
	if len(duplicates) != 0 {
		t.Fatalf("second pass found duplicates: %v", duplicates)
	}
}

func TestDedupeEmptyKeys(t *testing.T) {
	in := []models.Candidate{
		{Tag: "", Username: ""},
		{Tag: "", Username: ""},
		{Tag: "fitness", Username: "alice"},
	}

	unique, duplicates := Dedupe(in)

	// The degenerate key is still a key: the first malformed record survives,
	// the second collapses into it.
	if len(unique) != 2 {
		t.Fatalf("expected 2 uniques, got %d", len(unique))
	}
	if !duplicates[""] {
		t.Fatal("recurring empty key should be flagged")
	}
}
