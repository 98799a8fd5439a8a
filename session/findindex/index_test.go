package findindex

import (
	"testing"
	"time"

	"github.com/osintlab/robin/session/session_models"
)

func seeded(t *testing.T) *Index {
	t.Helper()
	idx, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now().UTC()
	findings := []session_models.Finding{
		{ID: "f1", URL: "http://a.onion", Content: "lockbit ransomware negotiation portal", AddedAt: now.Add(-2 * time.Minute)},
		{ID: "f2", URL: "http://b.onion", Content: "marketplace escrow vendor listings", AddedAt: now.Add(-time.Minute)},
		{ID: "f3", URL: "http://c.onion", Content: "bitcoin wallet addresses from leak", AddedAt: now},
	}
	for _, f := range findings {
		if err := idx.Add(f); err != nil {
			t.Fatalf("Add %s: %v", f.ID, err)
		}
	}
	return idx
}

func TestSearchRanksByRelevance(t *testing.T) {
	idx := seeded(t)
	got, err := idx.Search("ransomware negotiation", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) == 0 || got[0].ID != "f1" {
		t.Errorf("top hit = %+v, want f1", got)
	}
}

func TestUnparseableQueryFallsBackToRecent(t *testing.T) {
	idx := seeded(t)
	// Free-form task text with an unbalanced quote does not parse as a
	// query string; the delegation still gets material.
	got, err := idx.Search(`analyze the "leak portal`, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d findings, want 2", len(got))
	}
	if got[0].ID != "f3" || got[1].ID != "f2" {
		t.Errorf("fallback order = [%s %s], want newest first [f3 f2]", got[0].ID, got[1].ID)
	}
}

func TestEmptyQueryReturnsRecent(t *testing.T) {
	idx := seeded(t)
	got, err := idx.Search("", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "f3" {
		t.Errorf("got %+v, want just f3", got)
	}
}
