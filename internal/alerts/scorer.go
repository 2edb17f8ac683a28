package alerts

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"tracesig/pkg/models"
)

// Config controls alert scoring behavior.
type Config struct {
	Window    time.Duration
	Threshold int
	MaxRows   int
	Cooldown  time.Duration
}

// Scorer turns signature matches into task-level alerts.
type Scorer struct {
	mu     sync.Mutex
	cfg    Config
	byTask map[string]*taskAlertState
	now    func() time.Time
}

type taskAlertState struct {
	entries   []scoredEntry
	lastAlert time.Time
}

type scoredEntry struct {
	result    *models.SignatureResult
	timestamp time.Time
}

// NewScorer creates a new scorer.
func NewScorer(cfg Config) *Scorer {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 8
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 50
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Minute
	}
	return &Scorer{
		cfg:    cfg,
		byTask: make(map[string]*taskAlertState),
		now:    time.Now,
	}
}

// AddResults ingests the matched signatures of one analyzed task and
// returns an alert if the windowed score crosses the threshold.
func (s *Scorer) AddResults(taskID string, results []*models.SignatureResult) []*models.Alert {
	if taskID == "" || len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.byTask[taskID]
	if state == nil {
		state = &taskAlertState{}
		s.byTask[taskID] = state
	}

	now := s.now()
	for _, result := range results {
		if result == nil {
			continue
		}
		state.entries = append(state.entries, scoredEntry{result: result, timestamp: now})
	}
	s.prune(state, now)

	score, counts, families := s.score(state.entries)
	if score < s.cfg.Threshold {
		return nil
	}
	if !state.lastAlert.IsZero() && now.Sub(state.lastAlert) < s.cfg.Cooldown {
		return nil
	}

	alert := &models.Alert{
		AlertID:     newAlertID(taskID),
		TaskID:      taskID,
		Score:       score,
		WindowStart: now.Add(-s.cfg.Window),
		WindowEnd:   now,
		Families:    families,
		Counts:      counts,
		Evidence:    s.sampleEvidence(state.entries, s.cfg.MaxRows),
	}
	state.lastAlert = now
	return []*models.Alert{alert}
}

func (s *Scorer) prune(state *taskAlertState, now time.Time) {
	cutoff := now.Add(-s.cfg.Window)
	idx := 0
	for idx < len(state.entries) {
		if !state.entries[idx].timestamp.Before(cutoff) {
			break
		}
		idx++
	}
	if idx > 0 {
		state.entries = state.entries[idx:]
	}
	if len(state.entries) > s.cfg.MaxRows {
		state.entries = state.entries[len(state.entries)-s.cfg.MaxRows:]
	}
}

func (s *Scorer) score(entries []scoredEntry) (int, models.AlertCounts, []string) {
	severitySum := 0
	unique := make(map[string]struct{})
	familySet := make(map[string]struct{})
	alertFlagged := 0
	var families []string

	for _, entry := range entries {
		result := entry.result
		if result.Name != "" {
			unique[result.Name] = struct{}{}
		}
		severitySum += result.Severity
		if result.Alert {
			alertFlagged++
		}
		for _, family := range result.Families {
			if _, seen := familySet[family]; seen {
				continue
			}
			familySet[family] = struct{}{}
			families = append(families, family)
		}
	}

	score := severitySum + 2*len(unique) + 3*alertFlagged + len(familySet)
	return score, models.AlertCounts{
		Signatures:   len(unique),
		AlertFlagged: alertFlagged,
		Families:     len(familySet),
	}, families
}

func (s *Scorer) sampleEvidence(entries []scoredEntry, maxRows int) []*models.SignatureResult {
	if len(entries) > maxRows {
		entries = entries[len(entries)-maxRows:]
	}
	out := make([]*models.SignatureResult, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.result)
	}
	return out
}

func newAlertID(taskID string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return taskID + "-" + time.Now().Format("20060102150405")
	}
	return taskID + "-" + hex.EncodeToString(buf)
}
