package core

// DecisionKind labels the action a coordinator turn resolved to.
type DecisionKind string

const (
	DecisionText     DecisionKind = "text"     // plain narrative for the stream
	DecisionToolCall DecisionKind = "tool"     // run an investigation tool
	DecisionDelegate DecisionKind = "delegate" // hand analysis to specialist sub-agents
	DecisionDone     DecisionKind = "done"     // final answer, investigation complete
)

// Decision is the outcome of one reasoning turn. Exactly one of the
// payload groups is populated, keyed by Kind.
type Decision struct {
	Kind DecisionKind

	// Text carries narrative for DecisionText and DecisionDone.
	Text string

	// Tool call payload (DecisionToolCall).
	CallID    string
	Tool      string
	ToolInput map[string]any

	// Delegation payload (DecisionDelegate).
	AgentTypes []string
	Task       string
}

// TurnMessage is one entry in the conversation context sent to the
// reasoning model.
type TurnMessage struct {
	Role       string // system, user, assistant, tool
	Content    string
	CallID     string         // set on tool-result messages and echoed assistant calls
	Tool       string         // tool name for assistant tool-call echoes
	ToolInput  map[string]any // arguments for assistant tool-call echoes
	AgentTypes []string       // set on assistant delegation echoes
	Task       string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool names the coordinator can invoke.
const (
	ToolDarkwebSearch    = "darkweb_search"
	ToolDarkwebScrape    = "darkweb_scrape"
	ToolSaveReport       = "save_report"
	ToolDelegateAnalysis = "delegate_analysis"
)

// Specialist sub-agent types.
const (
	AgentThreatActorProfiler     = "threat_actor_profiler"
	AgentIOCExtractor            = "ioc_extractor"
	AgentMalwareAnalyst          = "malware_analyst"
	AgentMarketplaceInvestigator = "marketplace_investigator"
)

// AgentTypes lists every specialist the coordinator may delegate to.
var AgentTypes = []string{
	AgentThreatActorProfiler,
	AgentIOCExtractor,
	AgentMalwareAnalyst,
	AgentMarketplaceInvestigator,
}

// KnownAgentType reports whether t names a registered specialist.
func KnownAgentType(t string) bool {
	for _, known := range AgentTypes {
		if known == t {
			return true
		}
	}
	return false
}
