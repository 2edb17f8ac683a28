package pipeline

import (
	"errors"
	"fmt"
	"time"

	"tracesig/internal/behavior"
	"tracesig/internal/metrics"
	"tracesig/internal/rules"
	"tracesig/internal/signatures"
	"tracesig/internal/transform/stap"
	"tracesig/pkg/models"
)

// ErrNoTrace marks a task whose trace file is missing or not in a
// recognized capture format.
var ErrNoTrace = errors.New("no recognizable trace")

// Analyzer runs the full analysis of one task: trace parsing, behavior
// reconstruction and signature matching.
type Analyzer struct {
	engine         rules.Engine
	includeBuiltin bool
}

// NewAnalyzer creates an analyzer. The rule engine may be nil; built-in
// signatures run when includeBuiltin is set.
func NewAnalyzer(engine rules.Engine, includeBuiltin bool) *Analyzer {
	return &Analyzer{engine: engine, includeBuiltin: includeBuiltin}
}

// AnalyzeTask produces the report for one task.
func (a *Analyzer) AnalyzeTask(task *models.Task) (*models.Report, error) {
	recon := behavior.NewReconstructor()
	if !recon.HandlesPath(task.TracePath) {
		return nil, fmt.Errorf("task %s: %w", task.TaskID, ErrNoTrace)
	}

	parser, err := stap.Open(task.TracePath)
	if err != nil {
		return nil, fmt.Errorf("open trace for task %s: %w", task.TaskID, err)
	}

	events := 0
	var facts []models.Fact
	parser.Each(func(ev *models.SyscallEvent) bool {
		events++
		facts = append(facts, recon.Process(ev, parser)...)
		return true
	})
	metrics.LinesParsed(events)

	records, ok := recon.Processes()
	if !ok {
		return nil, fmt.Errorf("task %s: %w", task.TaskID, ErrNoTrace)
	}
	metrics.ProcessesReconstructed(len(records))

	results := behavior.BuildResults(records, facts)

	var sigs []signatures.Signature
	if a.includeBuiltin {
		sigs = append(sigs, signatures.Builtin()...)
	}
	if a.engine != nil {
		sigs = append(sigs, a.engine.Signatures()...)
	}
	matched := signatures.NewDispatcher(results, sigs).Run()
	for _, result := range matched {
		metrics.SignatureMatched(result.Name)
	}

	return &models.Report{
		TaskID:      task.TaskID,
		GeneratedAt: time.Now().UTC(),
		Processes:   records,
		Facts:       facts,
		Signatures:  results.Signatures,
	}, nil
}
