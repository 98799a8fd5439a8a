package web_fetch

import (
	"context"
	"testing"

	"github.com/osintlab/robin/tools/web_fetch/models"
)

type markerFetcher struct{ name string }

func (f markerFetcher) Fetch(ctx context.Context, url string) (models.Result, error) {
	return models.Result{URL: url, Title: f.name}, nil
}

func TestRouterSplitsByHost(t *testing.T) {
	r := &Router{
		Onion:    markerFetcher{name: "onion"},
		Clearnet: markerFetcher{name: "clearnet"},
	}

	cases := []struct {
		url  string
		want string
	}{
		{"http://abc123.onion/leaks", "onion"},
		{"http://abc123.onion:8080/leaks", "onion"},
		{"https://example.com/report", "clearnet"},
		{"not a url", "onion"}, // unparseable stays on the proxied path
	}
	for _, tc := range cases {
		res, err := r.Fetch(context.Background(), tc.url)
		if err != nil {
			t.Fatalf("Fetch(%q): %v", tc.url, err)
		}
		if res.Title != tc.want {
			t.Errorf("Fetch(%q) routed to %s, want %s", tc.url, res.Title, tc.want)
		}
	}
}

func TestRouterWithoutClearnetStaysProxied(t *testing.T) {
	r := &Router{Onion: markerFetcher{name: "onion"}}
	res, err := r.Fetch(context.Background(), "https://example.com/report")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Title != "onion" {
		t.Errorf("routed to %s, want onion", res.Title)
	}
}
