package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/osintlab/robin/config"
)

// OpenAIProvider drives reasoning turns through the OpenAI chat
// completions API (or any compatible endpoint via base_url).
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	maxRetries  int
	timeout     time.Duration
	logger      *log.Logger
}

// NewOpenAIProvider builds a provider from config.
func NewOpenAIProvider(cfg config.LLMConfig, logger *log.Logger) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[LLM] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
		timeout:     timeout,
		logger:      logger,
	}, nil
}

// NextDecision sends the turn context and maps the completion back to a
// Decision. tool_calls become DecisionToolCall (or DecisionDelegate for
// delegate_analysis); a plain stop finish means the run is done.
func (p *OpenAIProvider) NextDecision(ctx context.Context, messages []TurnMessage, tools []string) (Decision, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		Messages:    toChatMessages(messages),
		Tools:       toolDefinitions(tools),
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		resp, err = p.client.CreateChatCompletion(callCtx, req)
		cancel()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		p.logger.Printf("chat completion attempt %d failed: %v", attempt+1, err)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Decision{}, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) > 0 {
		return decisionFromToolCall(choice.Message.ToolCalls[0])
	}
	text := strings.TrimSpace(choice.Message.Content)
	if choice.FinishReason == openai.FinishReasonStop {
		return Decision{Kind: DecisionDone, Text: text}, nil
	}
	return Decision{Kind: DecisionText, Text: text}, nil
}

func decisionFromToolCall(call openai.ToolCall) (Decision, error) {
	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return Decision{}, fmt.Errorf("decode %s arguments: %w", call.Function.Name, err)
		}
	}
	if call.Function.Name == ToolDelegateAnalysis {
		d := Decision{Kind: DecisionDelegate, CallID: call.ID}
		if task, ok := args["task"].(string); ok {
			d.Task = task
		}
		if raw, ok := args["agent_types"].([]any); ok {
			for _, v := range raw {
				if s, ok := v.(string); ok {
					d.AgentTypes = append(d.AgentTypes, s)
				}
			}
		}
		return d, nil
	}
	return Decision{
		Kind:      DecisionToolCall,
		CallID:    call.ID,
		Tool:      call.Function.Name,
		ToolInput: args,
	}, nil
}

func toChatMessages(messages []TurnMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		switch {
		case m.Role == RoleTool:
			msg.ToolCallID = m.CallID
		case m.Role == RoleAssistant && m.CallID != "":
			// Echo of a previous tool call: the API requires the
			// assistant message carrying the call to precede its result.
			name := m.Tool
			args := m.ToolInput
			if name == "" {
				name = ToolDelegateAnalysis
				args = map[string]any{"agent_types": m.AgentTypes, "task": m.Task}
			}
			raw, _ := json.Marshal(args)
			msg.Content = ""
			msg.ToolCalls = []openai.ToolCall{{
				ID:   m.CallID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      name,
					Arguments: string(raw),
				},
			}}
		}
		out = append(out, msg)
	}
	return out
}

func toolDefinitions(names []string) []openai.Tool {
	defs := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		def, ok := toolSchemas[name]
		if !ok {
			continue
		}
		defs = append(defs, openai.Tool{Type: openai.ToolTypeFunction, Function: def})
	}
	return defs
}

var toolSchemas = map[string]openai.FunctionDefinition{
	ToolDarkwebSearch: {
		Name:        ToolDarkwebSearch,
		Description: "Search dark web and clearnet index engines for onion sites and leaked content. Returns deduplicated results across engines.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query"},
			},
			"required": []string{"query"},
		},
	},
	ToolDarkwebScrape: {
		Name:        ToolDarkwebScrape,
		Description: "Fetch and extract readable text from one or more URLs through the anonymizing proxy. Onion and clearnet URLs are both supported.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"urls": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "URLs to scrape",
				},
			},
			"required": []string{"urls"},
		},
	},
	ToolSaveReport: {
		Name:        ToolSaveReport,
		Description: "Persist the final investigation report to disk as markdown. Call once, when the investigation is concluded.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{"type": "string", "description": "Full markdown report"},
			},
			"required": []string{"content"},
		},
	},
	ToolDelegateAnalysis: {
		Name:        ToolDelegateAnalysis,
		Description: "Delegate focused analysis of collected findings to specialist sub-agents. Use after material has been gathered.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_types": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string", "enum": AgentTypes},
					"description": "Specialists to engage",
				},
				"task": map[string]any{"type": "string", "description": "What the specialists should analyze"},
			},
			"required": []string{"agent_types", "task"},
		},
	},
}
