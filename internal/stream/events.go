package stream

import "encoding/json"

// EventType identifies a progress event emitted during an investigation run.
type EventType string

const (
	EventText          EventType = "text"
	EventToolStart     EventType = "tool_start"
	EventToolEnd       EventType = "tool_end"
	EventSubAgentStart EventType = "subagent_start"
	EventSubAgentEnd   EventType = "subagent_end"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
)

// Error codes carried by EventError payloads.
const (
	CodeInvestigationError = "INVESTIGATION_ERROR"
	CodeTurnLimitExceeded  = "TURN_LIMIT_EXCEEDED"
	CodeCancelled          = "CANCELLED"
	CodeRunActive          = "RUN_ACTIVE"
	CodeNotFound           = "NOT_FOUND"
)

// Event is one entry in an investigation's ordered event stream.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type TextData struct {
	Content string `json:"content"`
}

type ToolStartData struct {
	ID    string         `json:"id"`
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input,omitempty"`
}

type ToolEndData struct {
	ID         string `json:"id"`
	Tool       string `json:"tool"`
	DurationMS int64  `json:"duration_ms"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

type SubAgentStartData struct {
	AgentType string `json:"agent_type"`
	Task      string `json:"task,omitempty"`
}

type SubAgentEndData struct {
	AgentType  string `json:"agent_type"`
	Analysis   string `json:"analysis,omitempty"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
}

type CompleteData struct {
	Text       string `json:"text"`
	SessionID  string `json:"session_id"`
	DurationMS int64  `json:"duration_ms"`
}

type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func Text(content string) Event {
	return Event{Type: EventText, Data: TextData{Content: content}}
}

func ToolStart(id, tool string, input map[string]any) Event {
	return Event{Type: EventToolStart, Data: ToolStartData{ID: id, Tool: tool, Input: input}}
}

func ToolEnd(id, tool string, durationMS int64, output, errMsg string) Event {
	return Event{Type: EventToolEnd, Data: ToolEndData{ID: id, Tool: tool, DurationMS: durationMS, Output: output, Error: errMsg}}
}

func SubAgentStart(agentType, task string) Event {
	return Event{Type: EventSubAgentStart, Data: SubAgentStartData{AgentType: agentType, Task: task}}
}

func SubAgentEnd(agentType, analysis string, success bool, durationMS int64) Event {
	return Event{Type: EventSubAgentEnd, Data: SubAgentEndData{AgentType: agentType, Analysis: analysis, Success: success, DurationMS: durationMS}}
}

func Complete(text, sessionID string, durationMS int64) Event {
	return Event{Type: EventComplete, Data: CompleteData{Text: text, SessionID: sessionID, DurationMS: durationMS}}
}

func Error(message, code string) Event {
	if code == "" {
		code = CodeInvestigationError
	}
	return Event{Type: EventError, Data: ErrorData{Message: message, Code: code}}
}

// Terminal reports whether ev closes the stream.
func Terminal(ev Event) bool {
	return ev.Type == EventComplete || ev.Type == EventError
}

// MarshalData renders the event payload as JSON for the SSE data line.
func (e Event) MarshalData() ([]byte, error) {
	return json.Marshal(e.Data)
}
