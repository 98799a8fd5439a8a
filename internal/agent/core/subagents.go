package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/osintlab/robin/internal/agent/telemetry"
	"github.com/osintlab/robin/internal/stream"
	"github.com/osintlab/robin/session"
	"github.com/osintlab/robin/session/session_models"
)

const (
	// subAgentContextFindings bounds how much collected material a
	// specialist sees. Findings are ranked against the delegated task.
	subAgentContextFindings = 8
	subAgentContextChars    = 4000
)

// Dispatcher runs specialist sub-agents against an investigation's
// collected findings. Each specialist gets its own bounded turn loop and
// a context assembled from the findings most relevant to the task.
type Dispatcher struct {
	provider    ReasoningProvider
	registry    *ToolRegistry
	store       session.Store
	maxTurns    int
	maxParallel int
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// SubAgentOutcome is one specialist's finished analysis.
type SubAgentOutcome struct {
	AgentType  string
	Analysis   string
	Success    bool
	DurationMS int64
}

func NewDispatcher(provider ReasoningProvider, registry *ToolRegistry, store session.Store, maxTurns, maxParallel int, tel *telemetry.Telemetry, logger *log.Logger) *Dispatcher {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	if maxParallel <= 0 {
		maxParallel = 4
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SUBAGENT] ", log.LstdFlags)
	}
	return &Dispatcher{
		provider:    provider,
		registry:    registry,
		store:       store,
		maxTurns:    maxTurns,
		maxParallel: maxParallel,
		telemetry:   tel,
		logger:      logger,
	}
}

// Delegate runs the named specialists in parallel, bounded by
// maxParallel, and emits subagent_start/subagent_end events as each one
// begins and finishes. Specialist failures are captured in their
// outcome; Delegate itself only fails on an empty agent list.
func (d *Dispatcher) Delegate(ctx context.Context, invID string, agentTypes []string, task string, emit func(stream.Event)) ([]SubAgentOutcome, error) {
	if len(agentTypes) == 0 {
		return nil, fmt.Errorf("no agent types specified; available specialists:\n%s", agentCatalog())
	}

	outcomes := make([]SubAgentOutcome, len(agentTypes))
	sem := make(chan struct{}, d.maxParallel)
	var wg sync.WaitGroup
	var mu sync.Mutex // serializes emit

	for i, agentType := range agentTypes {
		wg.Add(1)
		go func(i int, agentType string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			emit(stream.SubAgentStart(agentType, task))
			mu.Unlock()

			outcome := d.runOne(ctx, invID, agentType, task)
			outcomes[i] = outcome

			mu.Lock()
			emit(stream.SubAgentEnd(outcome.AgentType, outcome.Analysis, outcome.Success, outcome.DurationMS))
			mu.Unlock()
		}(i, agentType)
	}
	wg.Wait()
	return outcomes, nil
}

func (d *Dispatcher) runOne(ctx context.Context, invID, agentType, task string) SubAgentOutcome {
	started := time.Now()
	outcome := SubAgentOutcome{AgentType: agentType}

	prompt, ok := subAgentPrompts[agentType]
	if !ok {
		outcome.Analysis = fmt.Sprintf("Unknown agent type %q. Available specialists:\n%s", agentType, agentCatalog())
		outcome.DurationMS = time.Since(started).Milliseconds()
		d.record(ctx, invID, outcome)
		return outcome
	}

	messages := []TurnMessage{
		{Role: RoleSystem, Content: prompt},
		{Role: RoleUser, Content: subAgentTaskPrompt(task, d.contextFor(ctx, invID, task))},
	}

	analysis, err := d.loop(ctx, invID, messages)
	outcome.DurationMS = time.Since(started).Milliseconds()
	if err != nil {
		d.logger.Printf("%s failed: %v", agentType, err)
		outcome.Analysis = fmt.Sprintf("Analysis failed: %v", err)
	} else {
		outcome.Analysis = analysis
		outcome.Success = true
	}
	if d.telemetry != nil {
		d.telemetry.SubAgentRan(agentType, outcome.Success)
	}
	d.record(ctx, invID, outcome)
	return outcome
}

// loop drives one specialist to completion. Specialists may search and
// scrape but never delegate; the tool list enforces that.
func (d *Dispatcher) loop(ctx context.Context, invID string, messages []TurnMessage) (string, error) {
	tools := []string{ToolDarkwebSearch, ToolDarkwebScrape}
	for turn := 0; turn < d.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		decision, err := d.provider.NextDecision(ctx, messages, tools)
		if err != nil {
			return "", err
		}
		switch decision.Kind {
		case DecisionDone:
			return decision.Text, nil
		case DecisionText:
			messages = append(messages, TurnMessage{Role: RoleAssistant, Content: decision.Text})
		case DecisionToolCall:
			output, err := d.registry.Execute(ctx, invID, decision.Tool, decision.ToolInput)
			if err != nil {
				output = fmt.Sprintf("Tool %s failed: %v", decision.Tool, err)
			}
			messages = append(messages,
				TurnMessage{Role: RoleAssistant, CallID: decision.CallID, Tool: decision.Tool, ToolInput: decision.ToolInput},
				TurnMessage{Role: RoleTool, CallID: decision.CallID, Content: output},
			)
		case DecisionDelegate:
			messages = append(messages, TurnMessage{Role: RoleUser, Content: "Delegation is not available to specialists. Finish your own analysis."})
		}
	}
	return "", fmt.Errorf("specialist exceeded %d turns without concluding", d.maxTurns)
}

// contextFor assembles the bounded findings context for a task.
func (d *Dispatcher) contextFor(ctx context.Context, invID, task string) string {
	if d.store == nil || invID == "" {
		return ""
	}
	findings, err := d.store.SearchFindings(ctx, invID, task, subAgentContextFindings)
	if err != nil {
		d.logger.Printf("warn: searching findings: %v", err)
		return ""
	}
	var b strings.Builder
	for _, f := range findings {
		content := f.Content
		if len(content) > subAgentContextChars {
			content = content[:subAgentContextChars] + "..."
		}
		fmt.Fprintf(&b, "## Source: %s\n\n%s\n\n---\n", f.URL, content)
	}
	return b.String()
}

func (d *Dispatcher) record(ctx context.Context, invID string, outcome SubAgentOutcome) {
	if d.store == nil || invID == "" {
		return
	}
	now := time.Now().UTC()
	res := session_models.SubAgentResult{
		AgentType:   outcome.AgentType,
		Analysis:    outcome.Analysis,
		Success:     outcome.Success,
		StartedAt:   now.Add(-time.Duration(outcome.DurationMS) * time.Millisecond),
		CompletedAt: &now,
		DurationMS:  outcome.DurationMS,
	}
	if err := d.store.RecordSubAgentResult(ctx, invID, res); err != nil {
		d.logger.Printf("warn: recording %s result: %v", outcome.AgentType, err)
	}
}
