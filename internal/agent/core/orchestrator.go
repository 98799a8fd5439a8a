package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osintlab/robin/internal/agent/telemetry"
	"github.com/osintlab/robin/internal/stream"
	"github.com/osintlab/robin/session"
	"github.com/osintlab/robin/session/session_models"
)

var orchestratorTracer trace.Tracer = otel.Tracer("robin/internal/agent/orchestrator")

// Archiver persists finished investigation state to durable storage. It
// is optional: a nil Archiver disables archiving, and archive failures
// are logged, never fatal to a run.
type Archiver interface {
	ArchiveInvestigation(ctx context.Context, inv session_models.Investigation) error
	ArchiveMessage(ctx context.Context, invID string, msg session_models.Message) error
	ArchiveToolExecution(ctx context.Context, invID string, exec session_models.ToolExecution) error
	ArchiveSubAgentResult(ctx context.Context, invID string, res session_models.SubAgentResult) error
}

// Orchestrator runs the coordinator turn loop for investigations and
// emits the ordered event stream each run produces.
type Orchestrator struct {
	provider   ReasoningProvider
	registry   *ToolRegistry
	dispatcher *Dispatcher
	store      session.Store
	archiver   Archiver
	maxTurns   int
	telemetry  *telemetry.Telemetry
	logger     *log.Logger
}

func NewOrchestrator(provider ReasoningProvider, registry *ToolRegistry, dispatcher *Dispatcher, store session.Store, archiver Archiver, maxTurns int, tel *telemetry.Telemetry, logger *log.Logger) *Orchestrator {
	if maxTurns <= 0 {
		maxTurns = 30
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	return &Orchestrator{
		provider:   provider,
		registry:   registry,
		dispatcher: dispatcher,
		store:      store,
		archiver:   archiver,
		maxTurns:   maxTurns,
		telemetry:  tel,
		logger:     logger,
	}
}

// Create registers a new pending investigation without starting its
// run; Run (or a stream attach) starts it later.
func (o *Orchestrator) Create(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}
	now := time.Now().UTC()
	inv := session_models.Investigation{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    session_models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateInvestigation(ctx, inv); err != nil {
		return "", fmt.Errorf("creating investigation: %w", err)
	}
	return inv.ID, nil
}

// Start creates a new investigation for query and begins its run. The
// returned channel carries the run's ordered events and always ends
// with exactly one terminal event (complete or error), after which it
// is closed. Consumers must drain the channel until it closes.
func (o *Orchestrator) Start(ctx context.Context, query string) (string, <-chan stream.Event, error) {
	id, err := o.Create(ctx, query)
	if err != nil {
		return "", nil, err
	}
	events, err := o.Run(ctx, id, query)
	if err != nil {
		return "", nil, err
	}
	return id, events, nil
}

// Run starts a run for an existing investigation. It fails with
// session.ErrNotFound for unknown ids and session.ErrRunActive when a
// run already holds the investigation's lock.
func (o *Orchestrator) Run(ctx context.Context, invID, query string) (<-chan stream.Event, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if _, err := o.store.GetInvestigation(ctx, invID); err != nil {
		return nil, err
	}
	release, err := o.store.AcquireRun(ctx, invID)
	if err != nil {
		return nil, err
	}

	events := make(chan stream.Event, 64)
	go o.run(ctx, invID, query, release, events)
	return events, nil
}

// FollowUp resumes a completed investigation with a new query, folding
// the prior conversation into the run context.
func (o *Orchestrator) FollowUp(ctx context.Context, invID, query string) (<-chan stream.Event, error) {
	return o.Run(ctx, invID, query)
}

// run executes one coordinator run end to end. It owns the run lock and
// the event channel; both are always released, and the terminal event is
// always emitted, whatever happens inside the loop.
func (o *Orchestrator) run(ctx context.Context, invID, query string, release func(), events chan<- stream.Event) {
	started := time.Now()
	runCtx, span := orchestratorTracer.Start(ctx, "investigation.run",
		trace.WithAttributes(attribute.String("investigation.id", invID)))

	defer close(events)
	defer release()
	defer span.End()

	// Consumers must drain the channel until it closes, even after
	// cancelling: the terminal event is always delivered.
	emit := func(ev stream.Event) {
		if o.telemetry != nil {
			o.telemetry.EventEmitted(string(ev.Type))
		}
		events <- ev
	}

	if o.telemetry != nil {
		o.telemetry.RunStarted()
	}
	o.setStatus(runCtx, invID, session_models.StatusStreaming)
	o.appendMessage(runCtx, invID, session_models.RoleUser, query)

	final, runErr := o.loop(runCtx, invID, query, emit)

	// Terminal bookkeeping must land even when the run context was
	// cancelled, so it runs on a detached context. Without this a
	// context-honoring store would refuse the writes and leave the
	// investigation stuck in streaming.
	finCtx := context.WithoutCancel(runCtx)

	switch {
	case runErr == nil:
		o.appendMessage(finCtx, invID, session_models.RoleAssistant, final)
		o.setStatus(finCtx, invID, session_models.StatusCompleted)
		o.archive(finCtx, invID)
		emit(stream.Complete(final, invID, time.Since(started).Milliseconds()))
		if o.telemetry != nil {
			o.telemetry.RunFinished("completed")
		}
		span.SetStatus(codes.Ok, "")
		o.logger.Printf("investigation %s completed in %s", invID, time.Since(started).Round(time.Millisecond))
	default:
		code := stream.CodeInvestigationError
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			code = stream.CodeCancelled
		} else if errors.Is(runErr, errTurnLimit) {
			code = stream.CodeTurnLimitExceeded
		}
		o.setStatus(finCtx, invID, session_models.StatusError)
		o.archive(finCtx, invID)
		emit(stream.Error(runErr.Error(), code))
		if o.telemetry != nil {
			o.telemetry.RunFinished("error")
		}
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		o.logger.Printf("investigation %s failed: %v", invID, runErr)
	}
}

var errTurnLimit = errors.New("turn limit exceeded before the investigation concluded")

// loop drives coordinator turns until the model concludes, the turn
// budget runs out, or the context is cancelled.
func (o *Orchestrator) loop(ctx context.Context, invID, query string, emit func(stream.Event)) (string, error) {
	messages, err := o.buildContext(ctx, invID, query)
	if err != nil {
		return "", err
	}
	tools := []string{ToolDarkwebSearch, ToolDarkwebScrape, ToolSaveReport, ToolDelegateAnalysis}

	for turn := 0; turn < o.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if o.telemetry != nil {
			o.telemetry.Turn()
		}

		decision, err := o.provider.NextDecision(ctx, messages, tools)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("reasoning turn failed: %w", err)
		}

		switch decision.Kind {
		case DecisionDone:
			return decision.Text, nil

		case DecisionText:
			if decision.Text != "" {
				emit(stream.Text(decision.Text))
				messages = append(messages, TurnMessage{Role: RoleAssistant, Content: decision.Text})
			}

		case DecisionToolCall:
			messages = o.execTool(ctx, invID, decision, messages, emit)

		case DecisionDelegate:
			messages = o.delegate(ctx, invID, decision, messages, emit)

		default:
			return "", fmt.Errorf("provider returned unknown decision kind %q", decision.Kind)
		}
	}
	return "", errTurnLimit
}

// execTool runs one tool call, bracketed by a tool_start/tool_end event
// pair sharing the same execution id.
func (o *Orchestrator) execTool(ctx context.Context, invID string, decision Decision, messages []TurnMessage, emit func(stream.Event)) []TurnMessage {
	execID := decision.CallID
	if execID == "" {
		execID = uuid.NewString()
	}
	started := time.Now().UTC()
	emit(stream.ToolStart(execID, decision.Tool, decision.ToolInput))
	o.recordExecution(ctx, invID, session_models.ToolExecution{
		ID:        execID,
		Tool:      decision.Tool,
		Input:     decision.ToolInput,
		Status:    session_models.ExecutionRunning,
		StartedAt: started,
	})

	output, err := o.registry.Execute(ctx, invID, decision.Tool, decision.ToolInput)
	completed := time.Now().UTC()
	duration := completed.Sub(started)

	exec := session_models.ToolExecution{
		ID:          execID,
		Tool:        decision.Tool,
		Input:       decision.ToolInput,
		StartedAt:   started,
		CompletedAt: &completed,
		DurationMS:  duration.Milliseconds(),
	}
	toolResult := output
	if err != nil {
		exec.Status = session_models.ExecutionError
		exec.Error = err.Error()
		toolResult = fmt.Sprintf("Tool %s failed: %v", decision.Tool, err)
	} else {
		exec.Status = session_models.ExecutionCompleted
		exec.Output = output
	}
	o.recordExecution(ctx, invID, exec)
	if o.telemetry != nil {
		o.telemetry.ToolExecuted(decision.Tool, exec.Status, duration)
	}
	emit(stream.ToolEnd(execID, decision.Tool, duration.Milliseconds(), exec.Output, exec.Error))

	// Tool failure goes back into context as data; the coordinator
	// decides whether to retry, reroute, or give up.
	return append(messages,
		TurnMessage{Role: RoleAssistant, CallID: execID, Tool: decision.Tool, ToolInput: decision.ToolInput},
		TurnMessage{Role: RoleTool, CallID: execID, Content: toolResult},
	)
}

// delegate fans the decision out to specialists and folds their
// analyses back into the coordinator context as the tool result.
func (o *Orchestrator) delegate(ctx context.Context, invID string, decision Decision, messages []TurnMessage, emit func(stream.Event)) []TurnMessage {
	execID := decision.CallID
	if execID == "" {
		execID = uuid.NewString()
	}

	var result string
	outcomes, err := o.dispatcher.Delegate(ctx, invID, decision.AgentTypes, decision.Task, emit)
	if err != nil {
		result = fmt.Sprintf("Delegation failed: %v. Valid agent types: %s", err, strings.Join(AgentTypes, ", "))
	} else {
		var b strings.Builder
		for _, out := range outcomes {
			status := "completed"
			if !out.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "## %s (%s)\n\n%s\n\n", out.AgentType, status, out.Analysis)
		}
		result = b.String()
	}

	return append(messages,
		TurnMessage{Role: RoleAssistant, CallID: execID, AgentTypes: decision.AgentTypes, Task: decision.Task},
		TurnMessage{Role: RoleTool, CallID: execID, Content: result},
	)
}

// buildContext assembles the turn context: system prompt, prior
// conversation, and the new query last.
func (o *Orchestrator) buildContext(ctx context.Context, invID, query string) ([]TurnMessage, error) {
	messages := []TurnMessage{{Role: RoleSystem, Content: coordinatorPrompt}}

	prior, err := o.store.Messages(ctx, invID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	// The current query was already appended to the store by run();
	// strip that trailing copy so it lands exactly once, last.
	if n := len(prior); n > 0 && prior[n-1].Role == session_models.RoleUser && prior[n-1].Content == query {
		prior = prior[:n-1]
	}
	for _, msg := range prior {
		messages = append(messages, TurnMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, TurnMessage{Role: RoleUser, Content: query})
	return messages, nil
}

func (o *Orchestrator) setStatus(ctx context.Context, invID string, status session_models.InvestigationStatus) {
	if err := o.store.SetStatus(ctx, invID, status); err != nil {
		o.logger.Printf("warn: setting status %s on %s: %v", status, invID, err)
	}
}

func (o *Orchestrator) appendMessage(ctx context.Context, invID, role, content string) {
	msg := session_models.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.AppendMessage(ctx, invID, msg); err != nil {
		o.logger.Printf("warn: appending %s message on %s: %v", role, invID, err)
	}
}

func (o *Orchestrator) recordExecution(ctx context.Context, invID string, exec session_models.ToolExecution) {
	if err := o.store.RecordToolExecution(ctx, invID, exec); err != nil {
		o.logger.Printf("warn: recording execution %s: %v", exec.ID, err)
	}
}

// archive copies the finished run's state into the durable archive.
func (o *Orchestrator) archive(ctx context.Context, invID string) {
	if o.archiver == nil {
		return
	}
	inv, err := o.store.GetInvestigation(ctx, invID)
	if err != nil {
		o.logger.Printf("warn: archiving %s: %v", invID, err)
		return
	}
	if err := o.archiver.ArchiveInvestigation(ctx, inv); err != nil {
		o.logger.Printf("warn: archiving %s: %v", invID, err)
		return
	}
	if msgs, err := o.store.Messages(ctx, invID); err == nil {
		for _, msg := range msgs {
			if err := o.archiver.ArchiveMessage(ctx, invID, msg); err != nil {
				o.logger.Printf("warn: archiving message %s: %v", msg.ID, err)
			}
		}
	}
	if execs, err := o.store.ToolExecutions(ctx, invID); err == nil {
		for _, exec := range execs {
			if err := o.archiver.ArchiveToolExecution(ctx, invID, exec); err != nil {
				o.logger.Printf("warn: archiving execution %s: %v", exec.ID, err)
			}
		}
	}
	if results, err := o.store.SubAgentResults(ctx, invID); err == nil {
		for _, res := range results {
			if err := o.archiver.ArchiveSubAgentResult(ctx, invID, res); err != nil {
				o.logger.Printf("warn: archiving %s result: %v", res.AgentType, err)
			}
		}
	}
}
