package search

import (
	"testing"

	"github.com/onboardly/onboardly/internal/store"
)

func seedIndex(t *testing.T) *JobIndex {
	t.Helper()
	ji, err := NewJobIndex()
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	jobs := []store.JobPosting{
		{ID: 1, Title: "Backend Engineer", Department: "Engineering", Location: "Remote", Description: "Go services and Postgres"},
		{ID: 2, Title: "Product Designer", Department: "Design", Location: "Berlin", Description: "Figma and user research"},
		{ID: 3, Title: "Site Reliability Engineer", Department: "Engineering", Location: "Remote", Description: "Kubernetes and observability"},
	}
	for _, j := range jobs {
		if err := ji.Add(j); err != nil {
			t.Fatalf("add %d: %v", j.ID, err)
		}
	}
	return ji
}

func TestSearchMatchesTitleAndDescription(t *testing.T) {
	ji := seedIndex(t)

	hits, err := ji.Search("kubernetes", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 3 {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	hits, err = ji.Search("engineer", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected both engineer roles, got %+v", hits)
	}
}

func TestSearchNoMatches(t *testing.T) {
	ji := seedIndex(t)
	hits, err := ji.Search("astronaut", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %+v", hits)
	}
}

func TestRebuildReplacesContents(t *testing.T) {
	ji := seedIndex(t)
	if err := ji.Rebuild([]store.JobPosting{
		{ID: 9, Title: "Data Engineer", Department: "Data", Description: "Pipelines"},
	}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	hits, err := ji.Search("designer", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("old postings survived rebuild: %+v", hits)
	}
	hits, err = ji.Search("pipelines", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 9 {
		t.Fatalf("new posting not searchable: %+v", hits)
	}
}
