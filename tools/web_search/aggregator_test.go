package web_search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osintlab/robin/tools/web_search/models"
)

type stubEngine struct {
	name    string
	results []models.Result
	err     error
	delay   time.Duration

	inFlight *atomic.Int32
	maxSeen  *atomic.Int32
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Search(ctx context.Context, query string, limit int) ([]models.Result, error) {
	if s.inFlight != nil {
		cur := s.inFlight.Add(1)
		for {
			prev := s.maxSeen.Load()
			if cur <= prev || s.maxSeen.CompareAndSwap(prev, cur) {
				break
			}
		}
		defer s.inFlight.Add(-1)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.results, s.err
}

func result(engine, url, title string) models.Result {
	return models.Result{Engine: engine, URL: url, Title: title}
}

func TestSearchPartialFailure(t *testing.T) {
	engines := []Engine{
		&stubEngine{name: "a", results: []models.Result{result("a", "http://alpha.onion/x", "Alpha")}},
		&stubEngine{name: "b", err: errors.New("connection reset")},
		&stubEngine{name: "c", results: []models.Result{result("c", "http://gamma.onion/y", "Gamma")}},
	}
	agg := NewAggregator(engines, 3, time.Second, 10, nil)

	results, failures, err := agg.Search(context.Background(), "ransomware payments 2024")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(failures) != 1 || failures[0].Engine != "b" {
		t.Fatalf("expected failure recorded for engine b, got %+v", failures)
	}
}

func TestSearchEngineTimeoutIsRecorded(t *testing.T) {
	engines := []Engine{
		&stubEngine{name: "a", results: []models.Result{result("a", "http://alpha.onion/x", "Alpha")}},
		&stubEngine{name: "b", delay: time.Second},
		&stubEngine{name: "c", results: []models.Result{result("c", "http://gamma.onion/y", "Gamma")}},
	}
	agg := NewAggregator(engines, 3, 20*time.Millisecond, 10, nil)

	results, failures, err := agg.Search(context.Background(), "ransomware payments 2024")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected results from the two fast engines, got %d", len(results))
	}
	if len(failures) != 1 || failures[0].Engine != "b" {
		t.Fatalf("expected timeout failure for engine b, got %+v", failures)
	}
	if !errors.Is(failures[0].Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", failures[0].Err)
	}
}

func TestSearchAllEnginesFailed(t *testing.T) {
	engines := []Engine{
		&stubEngine{name: "a", err: errors.New("down")},
		&stubEngine{name: "b", err: errors.New("down")},
	}
	agg := NewAggregator(engines, 2, time.Second, 10, nil)

	_, failures, err := agg.Search(context.Background(), "q")
	if !errors.Is(err, ErrAllEnginesFailed) {
		t.Fatalf("expected ErrAllEnginesFailed, got %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}
}

func TestSearchDeduplicatesByCanonicalURL(t *testing.T) {
	// Same resource spelled differently by two engines.
	engines := []Engine{
		&stubEngine{name: "a", results: []models.Result{result("a", "http://market.onion/listing?id=42&utm_source=feed", "From A")}},
		&stubEngine{name: "b", delay: 50 * time.Millisecond, results: []models.Result{result("b", "market.onion:80/listing?id=42", "From B")}},
	}
	agg := NewAggregator(engines, 2, time.Second, 10, nil)

	results, _, err := agg.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 deduplicated result, got %d", len(results))
	}
	// Engine a completes first, so its spelling wins.
	if results[0].Engine != "a" {
		t.Errorf("expected first-completed engine to win, got %q", results[0].Engine)
	}
}

func TestSearchBoundsWorkerPool(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	var engines []Engine
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		engines = append(engines, &stubEngine{
			name:     name,
			delay:    30 * time.Millisecond,
			inFlight: &inFlight,
			maxSeen:  &maxSeen,
			results:  []models.Result{result(name, "http://"+name+".onion/", name)},
		})
	}
	agg := NewAggregator(engines, 2, time.Second, 10, nil)

	results, failures, err := agg.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	if got := maxSeen.Load(); got > 2 {
		t.Errorf("worker pool exceeded bound: %d engines in flight", got)
	}
}
