package web_search

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/osintlab/robin/internal/helpers"
	"github.com/osintlab/robin/tools/web_search/models"
)

const (
	DefaultMaxWorkers     = 5
	DefaultEngineTimeout  = 45 * time.Second
	DefaultPerEngineLimit = 30
)

// EngineFailure records one backend that contributed nothing to a search.
type EngineFailure struct {
	Engine string
	Err    error
}

var ErrAllEnginesFailed = errors.New("all search engines failed")

// Aggregator fans one query out to every configured engine through a bounded
// worker pool and merges the results. A failing engine is recorded, not
// fatal; the search fails only when every engine fails.
type Aggregator struct {
	engines        []Engine
	maxWorkers     int
	engineTimeout  time.Duration
	perEngineLimit int
	logger         *log.Logger
}

func NewAggregator(engines []Engine, maxWorkers int, engineTimeout time.Duration, perEngineLimit int, logger *log.Logger) *Aggregator {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if engineTimeout <= 0 {
		engineTimeout = DefaultEngineTimeout
	}
	if perEngineLimit <= 0 {
		perEngineLimit = DefaultPerEngineLimit
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	return &Aggregator{
		engines:        engines,
		maxWorkers:     maxWorkers,
		engineTimeout:  engineTimeout,
		perEngineLimit: perEngineLimit,
		logger:         logger,
	}
}

type engineOutcome struct {
	engine  string
	results []models.Result
	err     error
}

// Search runs the query across all engines. Output ordering is worker
// completion order; duplicate URLs keep the first completed occurrence.
func (a *Aggregator) Search(ctx context.Context, query string) ([]models.Result, []EngineFailure, error) {
	if len(a.engines) == 0 {
		return nil, nil, errors.New("no search engines configured")
	}

	outcomes := make(chan engineOutcome, len(a.engines))
	semaphore := make(chan struct{}, a.maxWorkers)
	var wg sync.WaitGroup

	for _, eng := range a.engines {
		wg.Add(1)
		go func(eng Engine) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				outcomes <- engineOutcome{engine: eng.Name(), err: ctx.Err()}
				return
			}

			engCtx, cancel := context.WithTimeout(ctx, a.engineTimeout)
			defer cancel()
			results, err := eng.Search(engCtx, query, a.perEngineLimit)
			outcomes <- engineOutcome{engine: eng.Name(), results: results, err: err}
		}(eng)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var (
		merged   []models.Result
		failures []EngineFailure
		seen     = make(map[string]struct{})
	)
	for outcome := range outcomes {
		if outcome.err != nil {
			a.logger.Printf("engine %s failed: %v", outcome.engine, outcome.err)
			failures = append(failures, EngineFailure{Engine: outcome.engine, Err: outcome.err})
			continue
		}
		for _, res := range outcome.results {
			key, err := helpers.CanonicalURL(res.URL)
			if err != nil {
				key = res.URL
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, res)
		}
	}

	if len(failures) == len(a.engines) {
		return nil, failures, ErrAllEnginesFailed
	}
	return merged, failures, nil
}
