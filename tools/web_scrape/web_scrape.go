package web_scrape

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/osintlab/robin/tools/web_fetch"
)

const DefaultMaxWorkers = 5

// Document is the outcome of scraping one URL. A failed fetch sets Error and
// leaves Content empty; it never fails the batch.
type Document struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Truncated bool      `json:"truncated"`
	FetchedAt time.Time `json:"fetched_at"`
	Error     string    `json:"error,omitempty"`
}

// Scraper retrieves a batch of URLs through a bounded worker pool, one
// fetcher call per URL.
type Scraper struct {
	fetcher    web_fetch.WebFetcher
	maxWorkers int
	logger     *log.Logger
}

func NewScraper(fetcher web_fetch.WebFetcher, maxWorkers int, logger *log.Logger) *Scraper {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SCRAPE] ", log.LstdFlags)
	}
	return &Scraper{fetcher: fetcher, maxWorkers: maxWorkers, logger: logger}
}

// Scrape fetches every URL and returns one Document per URL in worker
// completion order.
func (s *Scraper) Scrape(ctx context.Context, urls []string) ([]Document, error) {
	if len(urls) == 0 {
		return nil, errors.New("no urls provided")
	}

	docs := make(chan Document, len(urls))
	semaphore := make(chan struct{}, s.maxWorkers)
	var wg sync.WaitGroup

	for _, u := range urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				docs <- Document{URL: u, FetchedAt: time.Now().UTC(), Error: ctx.Err().Error()}
				return
			}

			res, err := s.fetcher.Fetch(ctx, u)
			if err != nil {
				s.logger.Printf("scrape %s failed: %v", u, err)
				docs <- Document{URL: u, FetchedAt: time.Now().UTC(), Error: err.Error()}
				return
			}
			docs <- Document{
				URL:       res.URL,
				Title:     res.Title,
				Content:   res.Text,
				Truncated: res.Truncated,
				FetchedAt: time.Now().UTC(),
			}
		}(u)
	}

	go func() {
		wg.Wait()
		close(docs)
	}()

	out := make([]Document, 0, len(urls))
	for doc := range docs {
		out = append(out, doc)
	}
	return out, nil
}
