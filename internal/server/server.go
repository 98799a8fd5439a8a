package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/osintlab/robin/config"
	agentcore "github.com/osintlab/robin/internal/agent/core"
	agenttele "github.com/osintlab/robin/internal/agent/telemetry"
	"github.com/osintlab/robin/internal/store"
	"github.com/osintlab/robin/session"
	"github.com/osintlab/robin/tools/web_fetch"
	"github.com/osintlab/robin/tools/web_fetch/torhttp"
	"github.com/osintlab/robin/tools/web_scrape"
	"github.com/osintlab/robin/tools/web_search"
)

// Run wires the full engine together and serves the investigation API.
func Run(cfg *appconfig.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })

	ctx := context.Background()

	var tele *agenttele.Telemetry
	if cfg.Telemetry.Enabled {
		tele = agenttele.New()
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(tele.Registry(), promhttp.HandlerOpts{})))
	}

	engine, err := BuildEngine(ctx, cfg, tele)
	if err != nil {
		return err
	}
	defer engine.Close()

	h := &InvestigationsHandler{Orchestrator: engine.Orchestrator, Sessions: engine.Sessions}
	h.Register(e.Group("/api/investigations"))

	return e.Start(cfg.Server.Address)
}

// Engine is the fully wired investigation stack shared by the server
// and the one-shot CLI.
type Engine struct {
	Orchestrator *agentcore.Orchestrator
	Sessions     session.Store
	archive      *store.Store
}

func (e *Engine) Close() {
	if e.archive != nil {
		e.archive.Close()
	}
}

// BuildEngine constructs the session store, collection tools, reasoning
// provider and orchestrator from config.
func BuildEngine(ctx context.Context, cfg *appconfig.Config, tele *agenttele.Telemetry) (*Engine, error) {
	baseLogger := log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)

	sessions, err := session.NewStore(session.StoreType(cfg.Storage.Session.Type), session.RedisOptions{
		Addr:     cfg.Storage.Session.Redis.Addr(),
		Password: cfg.Storage.Session.Redis.Password,
		DB:       cfg.Storage.Session.Redis.DB,
		TTL:      cfg.Storage.Session.Redis.TTL,
	})
	if err != nil {
		return nil, err
	}

	// The Postgres archive is optional; without it finished runs live
	// only in the session store.
	var archiver agentcore.Archiver
	var archive *store.Store
	if cfg.Storage.Postgres.Enabled() {
		archive, err = store.New(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, err
		}
		archiver = archive
	} else {
		baseLogger.Printf("postgres archive not configured; skipping")
	}

	fetcher, err := web_fetch.NewWebFetcher(web_fetch.TorHTTPFetcherType, web_fetch.Options{
		ProxyAddress: cfg.Proxy.Address,
		Timeout:      cfg.Proxy.FetchTimeout,
		MaxRetries:   cfg.Proxy.MaxRetries,
		RetryBackoff: cfg.Proxy.RetryBackoff,
		MaxBodyBytes: cfg.Proxy.MaxBodyBytes,
		MaxChars:     cfg.Proxy.MaxChars,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Proxy.ClearnetFetcher == string(web_fetch.ChromedpFetcherType) {
		clearnet, err := web_fetch.NewWebFetcher(web_fetch.ChromedpFetcherType, web_fetch.Options{
			Timeout:  cfg.Proxy.FetchTimeout,
			MaxChars: cfg.Proxy.MaxChars,
		})
		if err != nil {
			return nil, err
		}
		fetcher = &web_fetch.Router{Onion: fetcher, Clearnet: clearnet}
	}
	searchClient, err := torhttp.Client(cfg.Proxy.Address, cfg.Search.EngineTimeout)
	if err != nil {
		return nil, err
	}
	engines, err := web_search.NewEngines(cfg.Search.Engines, searchClient)
	if err != nil {
		return nil, err
	}

	searchLogger := log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	scrapeLogger := log.New(log.Writer(), "[SCRAPE] ", log.LstdFlags)
	aggregator := web_search.NewAggregator(engines, cfg.Agent.MaxSearchWorkers, cfg.Search.EngineTimeout, cfg.Search.ResultsPerEngine, searchLogger)
	scraper := web_scrape.NewScraper(fetcher, cfg.Agent.MaxScrapeWorkers, scrapeLogger)

	provider, err := agentcore.NewOpenAIProvider(cfg.LLM, log.New(log.Writer(), "[LLM] ", log.LstdFlags))
	if err != nil {
		return nil, err
	}
	registry := agentcore.NewToolRegistry(aggregator, scraper, sessions, cfg.Agent.ReportsDir, tele, log.New(log.Writer(), "[TOOLS] ", log.LstdFlags))
	dispatcher := agentcore.NewDispatcher(provider, registry, sessions, cfg.Agent.SubAgentMaxTurns, cfg.Agent.MaxParallelSubAgents, tele, log.New(log.Writer(), "[SUBAGENT] ", log.LstdFlags))
	orch := agentcore.NewOrchestrator(provider, registry, dispatcher, sessions, archiver, cfg.Agent.MaxTurns, tele, log.New(log.Writer(), "[ORCH] ", log.LstdFlags))

	return &Engine{Orchestrator: orch, Sessions: sessions, archive: archive}, nil
}
