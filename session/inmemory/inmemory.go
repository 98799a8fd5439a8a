package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/osintlab/robin/session/findindex"
	"github.com/osintlab/robin/session/session_models"
)

type record struct {
	inv       session_models.Investigation
	messages  []session_models.Message
	execs     map[string]session_models.ToolExecution
	execOrder []string
	subagents []session_models.SubAgentResult
	findings  *findindex.Index
	runActive bool
}

// Store keeps all investigation state in process memory. Suitable for a
// single-node deployment and for tests.
type Store struct {
	records map[string]*record
	mu      sync.RWMutex
}

func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

func (s *Store) CreateInvestigation(_ context.Context, inv session_models.Investigation) error {
	idx, err := findindex.New()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[inv.ID] = &record{
		inv:      inv,
		execs:    make(map[string]session_models.ToolExecution),
		findings: idx,
	}
	return nil
}

func (s *Store) GetInvestigation(_ context.Context, id string) (session_models.Investigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return session_models.Investigation{}, session_models.ErrNotFound
	}
	return rec.inv, nil
}

func (s *Store) ListInvestigations(_ context.Context) ([]session_models.Investigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session_models.Investigation, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.inv)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (s *Store) SetStatus(_ context.Context, id string, status session_models.InvestigationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return session_models.ErrNotFound
	}
	rec.inv.Status = status
	rec.inv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) AppendMessage(_ context.Context, id string, msg session_models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return session_models.ErrNotFound
	}
	rec.messages = append(rec.messages, msg)
	return nil
}

func (s *Store) Messages(_ context.Context, id string) ([]session_models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, session_models.ErrNotFound
	}
	return append([]session_models.Message(nil), rec.messages...), nil
}

func (s *Store) RecordToolExecution(_ context.Context, id string, exec session_models.ToolExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return session_models.ErrNotFound
	}
	if _, seen := rec.execs[exec.ID]; !seen {
		rec.execOrder = append(rec.execOrder, exec.ID)
	}
	rec.execs[exec.ID] = exec
	return nil
}

func (s *Store) ToolExecutions(_ context.Context, id string) ([]session_models.ToolExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, session_models.ErrNotFound
	}
	out := make([]session_models.ToolExecution, 0, len(rec.execOrder))
	for _, execID := range rec.execOrder {
		out = append(out, rec.execs[execID])
	}
	return out, nil
}

func (s *Store) RecordSubAgentResult(_ context.Context, id string, res session_models.SubAgentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return session_models.ErrNotFound
	}
	rec.subagents = append(rec.subagents, res)
	return nil
}

func (s *Store) SubAgentResults(_ context.Context, id string) ([]session_models.SubAgentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, session_models.ErrNotFound
	}
	return append([]session_models.SubAgentResult(nil), rec.subagents...), nil
}

func (s *Store) AddFinding(_ context.Context, id string, finding session_models.Finding) error {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return session_models.ErrNotFound
	}
	return rec.findings.Add(finding)
}

func (s *Store) SearchFindings(_ context.Context, id string, query string, k int) ([]session_models.Finding, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, session_models.ErrNotFound
	}
	return rec.findings.Search(query, k)
}

func (s *Store) AcquireRun(_ context.Context, id string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, session_models.ErrNotFound
	}
	if rec.runActive {
		return nil, session_models.ErrRunActive
	}
	rec.runActive = true
	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			rec.runActive = false
		})
	}
	return release, nil
}
