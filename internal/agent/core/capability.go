package core

import "context"

// ReasoningProvider is the contract for the model that drives the
// coordinator and sub-agent loops. Each call resolves one turn of
// context into a single Decision. The same provider serves both loops;
// the tool list controls what the model may do on a given turn.
type ReasoningProvider interface {
	NextDecision(ctx context.Context, messages []TurnMessage, tools []string) (Decision, error)
}
