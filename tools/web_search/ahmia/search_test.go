package ahmia

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const resultsPage = `<!doctype html>
<html><body><ol>
<li class="result">
  <h4><a href="/search/redirect?search_term=x&redirect_url=http://abc123.onion/leaks">LockBit leak portal</a></h4>
  <p>Victim listings and negotiation chats.</p>
  <cite>http://abc123.onion/leaks</cite>
</li>
<li class="result">
  <h4><a href="/search/redirect?redirect_url=http://def456.onion/">Market mirror</a></h4>
  <p>Mirrors and escrow info.</p>
  <cite></cite>
</li>
<li class="result">
  <h4><a href="/broken">No target</a></h4>
  <p>Should be skipped.</p>
</li>
</ol></body></html>`

func TestSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "lockbit" {
			t.Errorf("query param = %q", got)
		}
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	s := &Search{Client: srv.Client(), BaseURL: srv.URL}
	results, err := s.Search(context.Background(), "lockbit", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0].URL != "http://abc123.onion/leaks" || results[0].Title != "LockBit leak portal" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[0].Snippet != "Victim listings and negotiation chats." {
		t.Errorf("unexpected snippet: %q", results[0].Snippet)
	}
	// Second result had no cite text: the redirect link is unwrapped.
	if results[1].URL != "http://def456.onion/" {
		t.Errorf("redirect not unwrapped: %+v", results[1])
	}
}

func TestSearchHonorsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	s := &Search{Client: srv.Client(), BaseURL: srv.URL}
	results, err := s.Search(context.Background(), "lockbit", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestSearchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := &Search{Client: srv.Client(), BaseURL: srv.URL}
	if _, err := s.Search(context.Background(), "lockbit", 10); err == nil {
		t.Fatal("expected error on 502")
	}
}
