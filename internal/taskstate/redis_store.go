package taskstate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tracesig/pkg/models"
)

// RedisConfig configures Redis access for task-state persistence.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// TaskState stores compact per-task match counters for periodic triage.
type TaskState struct {
	TaskID              string    `json:"task_id"`
	MatchCount          int64     `json:"match_count"`
	MaxSeverity         int64     `json:"max_severity"`
	FirstMatchTimestamp time.Time `json:"first_match_ts,omitempty"`
	LastMatchTimestamp  time.Time `json:"last_match_ts,omitempty"`
	UpdatedAt           time.Time `json:"updated_at,omitempty"`
}

// TriageCandidate is a lightweight state-driven prioritization entry.
type TriageCandidate struct {
	TaskID              string    `json:"task_id"`
	MatchCount          int64     `json:"match_count"`
	MaxSeverity         int64     `json:"max_severity"`
	FirstMatchTimestamp time.Time `json:"first_match_ts,omitempty"`
	LastMatchTimestamp  time.Time `json:"last_match_ts,omitempty"`
	Priority            bool      `json:"priority"`
}

// RedisStore manages writer/reader operations over task-state keys.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed task-state store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "tracesig:task_state"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis task-state: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// WriteResults updates task-state from one task's matched signatures.
func (s *RedisStore) WriteResults(taskID string, results []*models.SignatureResult, matchedAt time.Time) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" || len(results) == 0 {
		return nil
	}
	ctx := context.Background()
	pipe := s.client.Pipeline()

	maxSeverity := 0
	for _, result := range results {
		if result != nil && result.Severity > maxSeverity {
			maxSeverity = result.Severity
		}
	}

	nowUnix := time.Now().Unix()
	ts := float64(matchedAt.Unix())
	stateKey := s.taskKey(taskID)
	pipe.HSet(ctx, stateKey,
		"task_id", taskID,
		"updated_at", strconv.FormatInt(nowUnix, 10),
	)
	pipe.HIncrBy(ctx, stateKey, "match_count", int64(len(results)))
	// GT keeps the highest severity ever observed for the task.
	pipe.ZAddArgs(ctx, s.severitySetKey(), redis.ZAddArgs{GT: true, Members: []redis.Z{{Score: float64(maxSeverity), Member: taskID}}})

	pipe.ZAddArgs(ctx, s.firstSetKey(), redis.ZAddArgs{LT: true, Members: []redis.Z{{Score: ts, Member: taskID}}})
	pipe.ZAddArgs(ctx, s.lastSetKey(), redis.ZAddArgs{GT: true, Members: []redis.Z{{Score: ts, Member: taskID}}})
	pipe.ZAdd(ctx, s.dirtySetKey(), redis.Z{Score: float64(nowUnix), Member: taskID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update task-state redis keys: %w", err)
	}
	return nil
}

// FetchDirtySince returns task states updated since the specified unix timestamp.
func (s *RedisStore) FetchDirtySince(since time.Time, limit int64) ([]TaskState, error) {
	if limit <= 0 {
		limit = 1000
	}
	ctx := context.Background()
	members, err := s.client.ZRangeByScoreWithScores(ctx, s.dirtySetKey(), &redis.ZRangeBy{
		Min:    fmt.Sprintf("%d", since.Unix()),
		Max:    "+inf",
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read dirty task-state members: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	states := make([]TaskState, 0, len(members))
	for _, z := range members {
		taskID, ok := z.Member.(string)
		if !ok || taskID == "" {
			continue
		}

		stateKey := s.taskKey(taskID)
		hash, err := s.client.HGetAll(ctx, stateKey).Result()
		if err != nil || len(hash) == 0 {
			continue
		}

		matchCount, _ := strconv.ParseInt(hash["match_count"], 10, 64)
		updatedUnix, _ := strconv.ParseInt(hash["updated_at"], 10, 64)
		severity, _ := s.client.ZScore(ctx, s.severitySetKey(), taskID).Result()
		first, _ := s.client.ZScore(ctx, s.firstSetKey(), taskID).Result()
		last, _ := s.client.ZScore(ctx, s.lastSetKey(), taskID).Result()

		st := TaskState{
			TaskID:      taskID,
			MatchCount:  matchCount,
			MaxSeverity: int64(severity),
		}
		if updatedUnix > 0 {
			st.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
		}
		if first > 0 {
			st.FirstMatchTimestamp = time.Unix(int64(first), 0).UTC()
		}
		if last > 0 {
			st.LastMatchTimestamp = time.Unix(int64(last), 0).UTC()
		}
		states = append(states, st)
	}

	return states, nil
}

// BuildTriageCandidates converts task states to prioritized triage entries.
func BuildTriageCandidates(states []TaskState) []TriageCandidate {
	out := make([]TriageCandidate, 0, len(states))
	for _, st := range states {
		if st.MatchCount <= 0 {
			continue
		}
		priority := st.MaxSeverity >= 4 || st.MatchCount >= 10
		out = append(out, TriageCandidate{
			TaskID:              st.TaskID,
			MatchCount:          st.MatchCount,
			MaxSeverity:         st.MaxSeverity,
			FirstMatchTimestamp: st.FirstMatchTimestamp,
			LastMatchTimestamp:  st.LastMatchTimestamp,
			Priority:            priority,
		})
	}
	return out
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) taskKey(taskID string) string {
	return s.prefix + ":task:" + taskID
}

func (s *RedisStore) severitySetKey() string {
	return s.prefix + ":severity"
}

func (s *RedisStore) firstSetKey() string {
	return s.prefix + ":first"
}

func (s *RedisStore) lastSetKey() string {
	return s.prefix + ":last"
}

func (s *RedisStore) dirtySetKey() string {
	return s.prefix + ":dirty"
}
