package core

import (
	"context"
	"strings"
	"testing"
)

func TestExecuteUnknownToolListsAvailable(t *testing.T) {
	r := NewToolRegistry(nil, nil, nil, t.TempDir(), nil, quietLogger())
	_, err := r.Execute(context.Background(), "", "harvest_emails", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	for _, tool := range r.Names() {
		if !strings.Contains(err.Error(), tool) {
			t.Errorf("error %q does not mention %s", err, tool)
		}
	}
}

func TestDelegateWithoutAgentsListsSpecialists(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, 5, 2, nil, quietLogger())
	_, err := d.Delegate(context.Background(), "", nil, "task", nil)
	if err == nil {
		t.Fatal("expected error for empty agent list")
	}
	for _, agentType := range AgentTypes {
		if !strings.Contains(err.Error(), agentType) {
			t.Errorf("error does not name %s:\n%s", agentType, err)
		}
	}
}

func TestUnknownAgentTypeOutcomeNamesSpecialists(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, 5, 2, nil, quietLogger())
	outcome := d.runOne(context.Background(), "", "crypto_wizard", "task")
	if outcome.Success {
		t.Error("unknown agent type must not succeed")
	}
	if !strings.Contains(outcome.Analysis, AgentIOCExtractor) {
		t.Errorf("analysis does not list specialists:\n%s", outcome.Analysis)
	}
}
