package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/osintlab/robin/session/inmemory"
	redis_session "github.com/osintlab/robin/session/redis"
	"github.com/osintlab/robin/session/session_models"
)

var (
	// ErrNotFound is returned for unknown investigation ids.
	ErrNotFound = session_models.ErrNotFound
	// ErrRunActive is returned when a run already holds the investigation's
	// exclusive lock.
	ErrRunActive = session_models.ErrRunActive
)

// Store holds per-investigation conversation and result state across the
// initial query and later follow-ups. All mutation of a given investigation
// happens from its single active run; AcquireRun enforces that invariant.
type Store interface {
	CreateInvestigation(ctx context.Context, inv session_models.Investigation) error
	GetInvestigation(ctx context.Context, id string) (session_models.Investigation, error)
	ListInvestigations(ctx context.Context) ([]session_models.Investigation, error)
	SetStatus(ctx context.Context, id string, status session_models.InvestigationStatus) error

	AppendMessage(ctx context.Context, id string, msg session_models.Message) error
	Messages(ctx context.Context, id string) ([]session_models.Message, error)

	RecordToolExecution(ctx context.Context, id string, exec session_models.ToolExecution) error
	ToolExecutions(ctx context.Context, id string) ([]session_models.ToolExecution, error)

	RecordSubAgentResult(ctx context.Context, id string, res session_models.SubAgentResult) error
	SubAgentResults(ctx context.Context, id string) ([]session_models.SubAgentResult, error)

	AddFinding(ctx context.Context, id string, finding session_models.Finding) error
	SearchFindings(ctx context.Context, id string, query string, k int) ([]session_models.Finding, error)

	// AcquireRun takes the per-investigation exclusive run lock. It fails
	// with ErrRunActive when a run is already active and returns a release
	// function otherwise.
	AcquireRun(ctx context.Context, id string) (func(), error)
}

type StoreType string

const (
	InMemoryStore StoreType = "inmemory"
	RedisStore    StoreType = "redis"
)

// RedisOptions configures the redis-backed store.
type RedisOptions = redis_session.Options

func NewStore(storeType StoreType, redisOpts RedisOptions) (Store, error) {
	switch storeType {
	case InMemoryStore:
		return inmemory.NewStore(), nil
	case RedisStore:
		return redis_session.NewStore(redisOpts)
	default:
		return nil, fmt.Errorf("unsupported session store type: %s", storeType)
	}
}

// IsNotFound reports whether err marks an unknown investigation id.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRunActive reports whether err marks a run-lock conflict.
func IsRunActive(err error) bool { return errors.Is(err, ErrRunActive) }
