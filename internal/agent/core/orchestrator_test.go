package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/osintlab/robin/internal/stream"
	"github.com/osintlab/robin/session"
	"github.com/osintlab/robin/session/inmemory"
	"github.com/osintlab/robin/session/session_models"
	fetchmodels "github.com/osintlab/robin/tools/web_fetch/models"
	searchmodels "github.com/osintlab/robin/tools/web_search/models"
	"github.com/osintlab/robin/tools/web_scrape"
	"github.com/osintlab/robin/tools/web_search"
)

// scriptProvider feeds a fixed decision sequence to the coordinator and
// answers every specialist turn with a canned analysis. Specialist turns
// are recognized by their reduced tool list.
type scriptProvider struct {
	mu       sync.Mutex
	script   []Decision
	pos      int
	analysis string
}

func (p *scriptProvider) NextDecision(ctx context.Context, messages []TurnMessage, tools []string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if len(tools) == 2 { // specialist loop: search + scrape only
		return Decision{Kind: DecisionDone, Text: p.analysis}, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pos >= len(p.script) {
		return Decision{}, errors.New("script exhausted")
	}
	d := p.script[p.pos]
	p.pos++
	return d, nil
}

type stubEngine struct {
	name    string
	results []searchmodels.Result
	err     error
}

func (e stubEngine) Name() string { return e.name }

func (e stubEngine) Search(ctx context.Context, query string, limit int) ([]searchmodels.Result, error) {
	return e.results, e.err
}

type stubFetcher struct{ err error }

func (f stubFetcher) Fetch(ctx context.Context, url string) (fetchmodels.Result, error) {
	if f.err != nil {
		return fetchmodels.Result{}, f.err
	}
	return fetchmodels.Result{
		URL:    url,
		Title:  "Leak portal",
		Text:   "lockbit ransomware payment wallet observed at bc1qexample with negotiation chat logs and victim listings",
		Status: 200,
	}, nil
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestOrchestrator(t *testing.T, provider ReasoningProvider, maxTurns int, engines []web_search.Engine, fetcherErr error) *Orchestrator {
	t.Helper()
	store := inmemory.NewStore()
	agg := web_search.NewAggregator(engines, 2, time.Second, 30, quietLogger())
	scraper := web_scrape.NewScraper(stubFetcher{err: fetcherErr}, 2, quietLogger())
	registry := NewToolRegistry(agg, scraper, store, t.TempDir(), nil, quietLogger())
	dispatcher := NewDispatcher(provider, registry, store, 5, 2, nil, quietLogger())
	return NewOrchestrator(provider, registry, dispatcher, store, nil, maxTurns, nil, quietLogger())
}

func collect(t *testing.T, events <-chan stream.Event) []stream.Event {
	t.Helper()
	var out []stream.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not close; got %d events", len(out))
		}
	}
}

func TestInvestigationRunsToCompletion(t *testing.T) {
	engines := []web_search.Engine{stubEngine{
		name:    "ahmia",
		results: []searchmodels.Result{{Engine: "ahmia", URL: "http://leaks.onion/lockbit", Title: "LockBit leaks"}},
	}}
	provider := &scriptProvider{
		script: []Decision{
			{Kind: DecisionText, Text: "Breaking the query into search angles."},
			{Kind: DecisionToolCall, CallID: "call-1", Tool: ToolDarkwebSearch, ToolInput: map[string]any{"query": "lockbit payments"}},
			{Kind: DecisionToolCall, CallID: "call-2", Tool: ToolDarkwebScrape, ToolInput: map[string]any{"urls": []any{"http://leaks.onion/lockbit"}}},
			{Kind: DecisionDelegate, CallID: "call-3", AgentTypes: []string{AgentIOCExtractor}, Task: "extract wallets"},
			{Kind: DecisionDone, Text: "Final report: payments traced."},
		},
		analysis: "Wallet bc1qexample extracted.",
	}
	o := newTestOrchestrator(t, provider, 10, engines, nil)

	id, events, err := o.Start(context.Background(), "How do LockBit victims pay ransoms?")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := collect(t, events)

	if len(got) == 0 {
		t.Fatal("no events emitted")
	}
	last := got[len(got)-1]
	if last.Type != stream.EventComplete {
		t.Fatalf("last event = %s, want complete", last.Type)
	}
	complete := last.Data.(stream.CompleteData)
	if complete.SessionID != id || complete.Text != "Final report: payments traced." {
		t.Errorf("unexpected complete payload: %+v", complete)
	}

	// tool_start/tool_end must pair by id, start first.
	starts := map[string]int{}
	for i, ev := range got {
		switch ev.Type {
		case stream.EventToolStart:
			starts[ev.Data.(stream.ToolStartData).ID] = i
		case stream.EventToolEnd:
			data := ev.Data.(stream.ToolEndData)
			at, ok := starts[data.ID]
			if !ok || at >= i {
				t.Errorf("tool_end %s has no preceding tool_start", data.ID)
			}
			if data.Error != "" {
				t.Errorf("tool %s failed: %s", data.Tool, data.Error)
			}
		}
	}
	if len(starts) != 2 {
		t.Errorf("expected 2 tool executions, saw %d", len(starts))
	}

	var sawAgentStart, sawAgentEnd bool
	for _, ev := range got {
		switch ev.Type {
		case stream.EventSubAgentStart:
			sawAgentStart = true
		case stream.EventSubAgentEnd:
			data := ev.Data.(stream.SubAgentEndData)
			if !data.Success || data.Analysis != "Wallet bc1qexample extracted." {
				t.Errorf("unexpected subagent_end: %+v", data)
			}
			sawAgentEnd = true
		}
	}
	if !sawAgentStart || !sawAgentEnd {
		t.Error("delegation events missing from stream")
	}
}

func TestTurnLimitEndsRunWithError(t *testing.T) {
	script := make([]Decision, 10)
	for i := range script {
		script[i] = Decision{Kind: DecisionText, Text: fmt.Sprintf("thinking %d", i)}
	}
	provider := &scriptProvider{script: script}
	o := newTestOrchestrator(t, provider, 3, nil, nil)

	_, events, err := o.Start(context.Background(), "endless query")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := collect(t, events)
	last := got[len(got)-1]
	if last.Type != stream.EventError {
		t.Fatalf("last event = %s, want error", last.Type)
	}
	data := last.Data.(stream.ErrorData)
	if data.Code != stream.CodeTurnLimitExceeded {
		t.Errorf("code = %s, want %s", data.Code, stream.CodeTurnLimitExceeded)
	}
	texts := 0
	for _, ev := range got {
		if ev.Type == stream.EventText {
			texts++
		}
	}
	if texts != 3 {
		t.Errorf("expected exactly 3 text events before the limit, got %d", texts)
	}
}

func TestToolFailureIsDataNotFatal(t *testing.T) {
	engines := []web_search.Engine{stubEngine{name: "torch", err: errors.New("proxy unreachable")}}
	provider := &scriptProvider{
		script: []Decision{
			{Kind: DecisionToolCall, CallID: "call-1", Tool: ToolDarkwebSearch, ToolInput: map[string]any{"query": "lockbit"}},
			{Kind: DecisionDone, Text: "Concluded despite search outage."},
		},
	}
	o := newTestOrchestrator(t, provider, 10, engines, nil)

	_, events, err := o.Start(context.Background(), "query")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := collect(t, events)

	var sawFailedEnd bool
	for _, ev := range got {
		if ev.Type == stream.EventToolEnd {
			if data := ev.Data.(stream.ToolEndData); data.Error != "" {
				sawFailedEnd = true
			}
		}
	}
	if !sawFailedEnd {
		t.Error("expected a failed tool_end event")
	}
	if last := got[len(got)-1]; last.Type != stream.EventComplete {
		t.Errorf("last event = %s, want complete", last.Type)
	}
}

// blockingProvider parks the run until released so lock behavior can be
// observed mid-run.
type blockingProvider struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *blockingProvider) NextDecision(ctx context.Context, messages []TurnMessage, tools []string) (Decision, error) {
	p.once.Do(func() { close(p.entered) })
	select {
	case <-p.release:
		return Decision{Kind: DecisionDone, Text: "done"}, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

func TestFollowUpConflictsWithActiveRun(t *testing.T) {
	provider := &blockingProvider{entered: make(chan struct{}), release: make(chan struct{})}
	o := newTestOrchestrator(t, provider, 10, nil, nil)

	id, events, err := o.Start(context.Background(), "initial query")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-provider.entered

	if _, err := o.FollowUp(context.Background(), id, "too early"); !session.IsRunActive(err) {
		t.Errorf("expected run-active conflict, got %v", err)
	}
	if _, err := o.FollowUp(context.Background(), "no-such-id", "hello"); !session.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}

	close(provider.release)
	collect(t, events)

	// Lock released: a follow-up is accepted now.
	followEvents, err := o.FollowUp(context.Background(), id, "what else?")
	if err != nil {
		t.Fatalf("FollowUp after completion: %v", err)
	}
	got := collect(t, followEvents)
	if last := got[len(got)-1]; last.Type != stream.EventComplete {
		t.Errorf("follow-up last event = %s, want complete", last.Type)
	}
}

// ctxStore refuses writes once the caller's context is done, the way a
// networked session backend does.
type ctxStore struct {
	session.Store
}

func (s ctxStore) SetStatus(ctx context.Context, id string, status session_models.InvestigationStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.SetStatus(ctx, id, status)
}

func (s ctxStore) AppendMessage(ctx context.Context, id string, msg session_models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.AppendMessage(ctx, id, msg)
}

func TestCancellationStillMarksInvestigationError(t *testing.T) {
	provider := &blockingProvider{entered: make(chan struct{}), release: make(chan struct{})}
	store := ctxStore{Store: inmemory.NewStore()}
	agg := web_search.NewAggregator(nil, 2, time.Second, 30, quietLogger())
	scraper := web_scrape.NewScraper(stubFetcher{}, 2, quietLogger())
	registry := NewToolRegistry(agg, scraper, store, t.TempDir(), nil, quietLogger())
	dispatcher := NewDispatcher(provider, registry, store, 5, 2, nil, quietLogger())
	o := NewOrchestrator(provider, registry, dispatcher, store, nil, 10, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	id, events, err := o.Start(ctx, "query")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-provider.entered
	cancel()
	collect(t, events)

	inv, err := store.GetInvestigation(context.Background(), id)
	if err != nil {
		t.Fatalf("GetInvestigation: %v", err)
	}
	if inv.Status != session_models.StatusError {
		t.Errorf("status after cancellation = %s, want %s", inv.Status, session_models.StatusError)
	}
}

func TestCancellationEmitsTerminalError(t *testing.T) {
	provider := &blockingProvider{entered: make(chan struct{}), release: make(chan struct{})}
	o := newTestOrchestrator(t, provider, 10, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, events, err := o.Start(ctx, "query")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-provider.entered
	cancel()

	got := collect(t, events)
	last := got[len(got)-1]
	if last.Type != stream.EventError {
		t.Fatalf("last event = %s, want error", last.Type)
	}
	if data := last.Data.(stream.ErrorData); data.Code != stream.CodeCancelled {
		t.Errorf("code = %s, want %s", data.Code, stream.CodeCancelled)
	}
}
