package redis_session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/osintlab/robin/session/findindex"
	"github.com/osintlab/robin/session/session_models"
)

// Options configures the redis-backed session store.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // key lifetime per investigation, 0 = no expiry
}

// Store keeps investigation state in redis so several API replicas can serve
// reads for the same investigation. The run lock is a SETNX lease, which also
// guards against a crashed run holding the lock forever. Findings are stored
// in redis and mirrored into a per-process BM25 index for context retrieval.
type Store struct {
	client *redis.Client
	ttl    time.Duration

	mu      sync.Mutex
	indexes map[string]*findindex.Index
}

const runLockTTL = 30 * time.Minute

func NewStore(opts Options) (*Store, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis session store requires an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Store{
		client:  client,
		ttl:     opts.TTL,
		indexes: make(map[string]*findindex.Index),
	}, nil
}

func (s *Store) key(id, kind string) string {
	return fmt.Sprintf("robin:investigation:%s:%s", id, kind)
}

func (s *Store) expire(ctx context.Context, keys ...string) {
	if s.ttl <= 0 {
		return
	}
	for _, k := range keys {
		_ = s.client.Expire(ctx, k, s.ttl).Err()
	}
}

func (s *Store) CreateInvestigation(ctx context.Context, inv session_models.Investigation) error {
	b, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	key := s.key(inv.ID, "meta")
	if err := s.client.Set(ctx, key, b, s.ttl).Err(); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, "robin:investigations", redis.Z{
		Score:  float64(inv.CreatedAt.UnixMilli()),
		Member: inv.ID,
	}).Err()
}

func (s *Store) GetInvestigation(ctx context.Context, id string) (session_models.Investigation, error) {
	val, err := s.client.Get(ctx, s.key(id, "meta")).Result()
	if err == redis.Nil {
		return session_models.Investigation{}, session_models.ErrNotFound
	}
	if err != nil {
		return session_models.Investigation{}, err
	}
	var inv session_models.Investigation
	if err := json.Unmarshal([]byte(val), &inv); err != nil {
		return session_models.Investigation{}, err
	}
	return inv, nil
}

func (s *Store) ListInvestigations(ctx context.Context) ([]session_models.Investigation, error) {
	ids, err := s.client.ZRevRange(ctx, "robin:investigations", 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]session_models.Investigation, 0, len(ids))
	for _, id := range ids {
		inv, err := s.GetInvestigation(ctx, id)
		if err == session_models.ErrNotFound {
			continue // expired
		}
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status session_models.InvestigationStatus) error {
	inv, err := s.GetInvestigation(ctx, id)
	if err != nil {
		return err
	}
	inv.Status = status
	inv.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(id, "meta"), b, s.ttl).Err()
}

func (s *Store) AppendMessage(ctx context.Context, id string, msg session_models.Message) error {
	return s.push(ctx, id, "messages", msg)
}

func (s *Store) Messages(ctx context.Context, id string) ([]session_models.Message, error) {
	var out []session_models.Message
	return out, s.list(ctx, id, "messages", &out)
}

func (s *Store) RecordToolExecution(ctx context.Context, id string, exec session_models.ToolExecution) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	b, err := json.Marshal(exec)
	if err != nil {
		return err
	}
	key := s.key(id, "executions")
	if err := s.client.HSet(ctx, key, exec.ID, b).Err(); err != nil {
		return err
	}
	orderKey := s.key(id, "execution_order")
	if err := s.client.ZAddNX(ctx, orderKey, redis.Z{
		Score:  float64(exec.StartedAt.UnixNano()),
		Member: exec.ID,
	}).Err(); err != nil {
		return err
	}
	s.expire(ctx, key, orderKey)
	return nil
}

func (s *Store) ToolExecutions(ctx context.Context, id string) ([]session_models.ToolExecution, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	ids, err := s.client.ZRange(ctx, s.key(id, "execution_order"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]session_models.ToolExecution, 0, len(ids))
	for _, execID := range ids {
		val, err := s.client.HGet(ctx, s.key(id, "executions"), execID).Result()
		if err != nil {
			return nil, err
		}
		var exec session_models.ToolExecution
		if err := json.Unmarshal([]byte(val), &exec); err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

func (s *Store) RecordSubAgentResult(ctx context.Context, id string, res session_models.SubAgentResult) error {
	return s.push(ctx, id, "subagents", res)
}

func (s *Store) SubAgentResults(ctx context.Context, id string) ([]session_models.SubAgentResult, error) {
	var out []session_models.SubAgentResult
	return out, s.list(ctx, id, "subagents", &out)
}

func (s *Store) AddFinding(ctx context.Context, id string, finding session_models.Finding) error {
	if err := s.push(ctx, id, "findings", finding); err != nil {
		return err
	}
	idx, err := s.index(ctx, id)
	if err != nil {
		return err
	}
	return idx.Add(finding)
}

func (s *Store) SearchFindings(ctx context.Context, id string, query string, k int) ([]session_models.Finding, error) {
	idx, err := s.index(ctx, id)
	if err != nil {
		return nil, err
	}
	return idx.Search(query, k)
}

// index returns the per-investigation BM25 index, rebuilding it from redis
// when this process has not seen the investigation before.
func (s *Store) index(ctx context.Context, id string) (*findindex.Index, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	idx, ok := s.indexes[id]
	s.mu.Unlock()
	if ok {
		return idx, nil
	}

	idx, err := findindex.New()
	if err != nil {
		return nil, err
	}
	var findings []session_models.Finding
	if err := s.list(ctx, id, "findings", &findings); err != nil {
		return nil, err
	}
	for _, f := range findings {
		if err := idx.Add(f); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.indexes[id] = idx
	s.mu.Unlock()
	return idx, nil
}

func (s *Store) AcquireRun(ctx context.Context, id string) (func(), error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	lockKey := s.key(id, "run_lock")
	ok, err := s.client.SetNX(ctx, lockKey, "1", runLockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, session_models.ErrRunActive
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			_ = s.client.Del(context.Background(), lockKey).Err()
		})
	}
	return release, nil
}

func (s *Store) exists(ctx context.Context, id string) error {
	n, err := s.client.Exists(ctx, s.key(id, "meta")).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return session_models.ErrNotFound
	}
	return nil
}

func (s *Store) push(ctx context.Context, id, kind string, v any) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := s.key(id, kind)
	if err := s.client.RPush(ctx, key, b).Err(); err != nil {
		return err
	}
	s.expire(ctx, key)
	return nil
}

func (s *Store) list(ctx context.Context, id, kind string, out any) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	vals, err := s.client.LRange(ctx, s.key(id, kind), 0, -1).Result()
	if err != nil {
		return err
	}
	raw := "[" + strings.Join(vals, ",") + "]"
	return json.Unmarshal([]byte(raw), out)
}
