package session_models

import (
	"errors"
	"time"
)

// InvestigationStatus transitions monotonically pending → streaming →
// {completed, error}; a follow-up reopens a completed investigation back to
// streaming.
type InvestigationStatus string

const (
	StatusPending   InvestigationStatus = "pending"
	StatusStreaming InvestigationStatus = "streaming"
	StatusCompleted InvestigationStatus = "completed"
	StatusError     InvestigationStatus = "error"
)

type Investigation struct {
	ID        string              `json:"id"`
	Query     string              `json:"query"`
	Status    InvestigationStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is immutable once appended; per-investigation ordering is
// chronological.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionError     = "error"
)

// ToolExecution transitions running → {completed, error} exactly once.
type ToolExecution struct {
	ID          string         `json:"id"`
	Tool        string         `json:"tool"`
	Input       map[string]any `json:"input"`
	Output      string         `json:"output,omitempty"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
}

// SubAgentResult records one delegation. Success=false marks a failed
// sub-task, which is never fatal for the parent run.
type SubAgentResult struct {
	AgentType   string     `json:"agent_type"`
	Analysis    string     `json:"analysis"`
	Success     bool       `json:"success"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms,omitempty"`
}

// Finding is a piece of collected intelligence (usually one scraped page)
// indexed for retrieval when building bounded sub-agent contexts.
type Finding struct {
	ID      string    `json:"id"`
	URL     string    `json:"url"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	AddedAt time.Time `json:"added_at"`
}

// Sentinel errors shared by every store implementation.
var (
	ErrNotFound  = errors.New("investigation not found")
	ErrRunActive = errors.New("investigation already has an active run")
)
