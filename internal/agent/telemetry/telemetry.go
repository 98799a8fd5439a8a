package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry tracks investigation, tool and fetch activity. Collectors are
// registered on a dedicated registry so tests can construct as many instances
// as they need without duplicate-registration panics.
type Telemetry struct {
	registry *prometheus.Registry

	investigationsStarted prometheus.Counter
	investigationsDone    *prometheus.CounterVec
	turns                 prometheus.Counter

	toolExecutions *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec

	engineQueries  *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	subagentRuns   *prometheus.CounterVec
	eventsEmitted  *prometheus.CounterVec
}

func New() *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		investigationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "robin_investigations_started_total",
			Help: "Investigation runs started, including follow-ups.",
		}),
		investigationsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robin_investigations_finished_total",
			Help: "Investigation runs finished, by terminal status.",
		}, []string{"status"}),
		turns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "robin_coordinator_turns_total",
			Help: "Coordinator decision cycles executed.",
		}),
		toolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robin_tool_executions_total",
			Help: "Tool executions, by tool and final status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "robin_tool_duration_seconds",
			Help:    "Tool execution wall time.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"tool"}),
		engineQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robin_engine_queries_total",
			Help: "Search engine queries, by engine and outcome.",
		}, []string{"engine", "outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robin_fetches_total",
			Help: "Proxied fetches, by outcome.",
		}, []string{"outcome"}),
		subagentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robin_subagent_runs_total",
			Help: "Sub-agent delegations, by agent type and outcome.",
		}, []string{"agent_type", "outcome"}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "robin_stream_events_total",
			Help: "Stream events emitted to clients, by event type.",
		}, []string{"type"}),
	}
	t.registry.MustRegister(
		t.investigationsStarted, t.investigationsDone, t.turns,
		t.toolExecutions, t.toolDuration,
		t.engineQueries, t.fetches, t.subagentRuns, t.eventsEmitted,
	)
	return t
}

// Registry exposes the collectors for the /metrics endpoint.
func (t *Telemetry) Registry() *prometheus.Registry { return t.registry }

func (t *Telemetry) RunStarted() { t.investigationsStarted.Inc() }

func (t *Telemetry) RunFinished(status string) {
	t.investigationsDone.WithLabelValues(status).Inc()
}

func (t *Telemetry) Turn() { t.turns.Inc() }

func (t *Telemetry) ToolExecuted(tool, status string, d time.Duration) {
	t.toolExecutions.WithLabelValues(tool, status).Inc()
	t.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (t *Telemetry) EngineQueried(engine string, ok bool) {
	t.engineQueries.WithLabelValues(engine, outcome(ok)).Inc()
}

func (t *Telemetry) Fetched(ok bool) {
	t.fetches.WithLabelValues(outcome(ok)).Inc()
}

func (t *Telemetry) SubAgentRan(agentType string, ok bool) {
	t.subagentRuns.WithLabelValues(agentType, outcome(ok)).Inc()
}

func (t *Telemetry) EventEmitted(eventType string) {
	t.eventsEmitted.WithLabelValues(eventType).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
