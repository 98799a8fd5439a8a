package web_scrape

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osintlab/robin/tools/web_fetch/models"
)

type stubFetcher struct {
	delay    time.Duration
	failFor  map[string]error
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (models.Result, error) {
	cur := f.inFlight.Add(1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.Result{}, &models.FetchError{Kind: models.KindTimeout, URL: url, Err: ctx.Err()}
		}
	}
	if err, ok := f.failFor[url]; ok {
		return models.Result{}, err
	}
	return models.Result{URL: url, Title: "Title", Text: "content of " + url, Status: 200}, nil
}

func TestScrapePartialFailure(t *testing.T) {
	fetcher := &stubFetcher{failFor: map[string]error{
		"http://dead.onion/": &models.FetchError{Kind: models.KindProxyUnreachable, URL: "http://dead.onion/"},
	}}
	scraper := NewScraper(fetcher, 3, nil)

	docs, err := scraper.Scrape(context.Background(), []string{
		"http://alpha.onion/", "http://dead.onion/", "http://beta.onion/",
	})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}

	var failed, ok int
	for _, doc := range docs {
		if doc.Error != "" {
			failed++
			if doc.URL != "http://dead.onion/" {
				t.Errorf("unexpected failed url %q", doc.URL)
			}
			if !strings.Contains(doc.Error, "proxy_unreachable") {
				t.Errorf("expected proxy error recorded, got %q", doc.Error)
			}
		} else {
			ok++
			if doc.Content == "" {
				t.Errorf("expected content for %q", doc.URL)
			}
		}
	}
	if failed != 1 || ok != 2 {
		t.Fatalf("expected 1 failed and 2 ok, got %d/%d", failed, ok)
	}
}

func TestScrapeBoundsWorkerPool(t *testing.T) {
	fetcher := &stubFetcher{delay: 30 * time.Millisecond}
	scraper := NewScraper(fetcher, 2, nil)

	urls := []string{
		"http://a.onion/", "http://b.onion/", "http://c.onion/",
		"http://d.onion/", "http://e.onion/", "http://f.onion/",
	}
	docs, err := scraper.Scrape(context.Background(), urls)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(docs) != len(urls) {
		t.Fatalf("expected %d documents, got %d", len(urls), len(docs))
	}
	if got := fetcher.maxSeen.Load(); got > 2 {
		t.Errorf("fetcher concurrency exceeded bound: %d in flight", got)
	}
}

func TestScrapeEmptyInput(t *testing.T) {
	scraper := NewScraper(&stubFetcher{}, 2, nil)
	if _, err := scraper.Scrape(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty url list")
	}
}

func TestScrapeCancellation(t *testing.T) {
	fetcher := &stubFetcher{delay: time.Second}
	scraper := NewScraper(fetcher, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	docs, err := scraper.Scrape(ctx, []string{"http://a.onion/", "http://b.onion/", "http://c.onion/"})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancellation did not interrupt workers, took %v", elapsed)
	}
	for _, doc := range docs {
		if doc.Error == "" {
			t.Errorf("expected cancellation error for %q", doc.URL)
		}
	}
}
