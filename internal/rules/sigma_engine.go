package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"tracesig/internal/signatures"
	"tracesig/pkg/models"
)

// SigmaLoadStats tracks the number of loaded and skipped rules.
type SigmaLoadStats struct {
	TotalFiles        int
	Loaded            int
	SkippedComplex    int
	SkippedDatasource int
	SkippedInvalid    int
}

type compiledSigmaRule struct {
	rule     sigma.Rule
	eval     *sigmaevaluator.RuleEvaluator
	severity int
}

// SigmaEngine compiles Sigma rules into signature instances that
// evaluate each reconstructed syscall individually.
type SigmaEngine struct {
	rules []compiledSigmaRule
}

// NewSigmaEngine loads Sigma rules from a file or directory and compiles
// evaluators. Unsupported or complex rules are skipped and included in
// stats.
func NewSigmaEngine(path string) (*SigmaEngine, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve rule path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat rule path: %w", err)
	}

	files := make([]string, 0, 256)
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			if isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk rule directory: %w", err)
		}
	} else {
		if !isYAMLFile(resolved) {
			return nil, stats, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	stats.TotalFiles = len(files)
	compiled := make([]compiledSigmaRule, 0, len(files))
	for _, ruleFile := range files {
		rule, err := parseSigmaRuleFile(ruleFile)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}

		if !isLinuxCompatible(rule) {
			stats.SkippedDatasource++
			continue
		}

		if ok, _ := isSimpleSingleEventRule(rule); !ok {
			stats.SkippedComplex++
			continue
		}

		compiled = append(compiled, compiledSigmaRule{
			rule:     rule,
			eval:     sigmaevaluator.ForRule(rule),
			severity: severityFromLevel(rule.Level),
		})
		stats.Loaded++
	}

	return &SigmaEngine{rules: compiled}, stats, nil
}

// Signatures returns a fresh signature adapter per compiled rule.
// Adapters carry match state and must not be reused across runs.
func (e *SigmaEngine) Signatures() []signatures.Signature {
	if e == nil || len(e.rules) == 0 {
		return nil
	}
	out := make([]signatures.Signature, 0, len(e.rules))
	for i := range e.rules {
		out = append(out, newSigmaSignature(&e.rules[i]))
	}
	return out
}

// sigmaSignature evaluates one compiled Sigma rule against every call
// dispatched to it.
type sigmaSignature struct {
	signatures.Base
	compiled *compiledSigmaRule
	ctx      context.Context
}

func newSigmaSignature(compiled *compiledSigmaRule) *sigmaSignature {
	rule := compiled.rule
	name := strings.TrimSpace(rule.ID)
	if name == "" {
		name = strings.TrimSpace(rule.Title)
	}
	return &sigmaSignature{
		Base: signatures.Base{
			Name:        name,
			Description: strings.TrimSpace(rule.Title),
			Severity:    compiled.severity,
			References:  rule.References,
			Authors:     []string{rule.Author},
			Enabled:     true,
			Alert:       compiled.severity >= 4,
		},
		compiled: compiled,
		ctx:      context.Background(),
	}
}

func (s *sigmaSignature) Quickout() bool { return false }

func (s *sigmaSignature) OnCall(call *models.SyscallEvent, pid, tid int) bool {
	res, err := s.compiled.eval.Matches(s.ctx, sigmaEventFrom(call))
	if err != nil {
		return true
	}
	if res.Match {
		s.MarkStart()
		s.AddMatch(processByPID(s.Results(), pid), "api", call.API)
		s.MarkEnd()
	}
	return true
}

func (s *sigmaSignature) OnSignature(matched signatures.Signature) {}

func (s *sigmaSignature) OnComplete() bool { return s.HasMatches() }

// sigmaEventFrom flattens a syscall into the field map the evaluator
// matches against. Argument values are only exposed when they decoded
// to plain strings.
func sigmaEventFrom(call *models.SyscallEvent) map[string]interface{} {
	buf := make(map[string]interface{}, len(call.Arguments)+5)
	for k, v := range call.Arguments {
		if str, ok := v.(string); ok {
			buf[k] = str
		}
	}
	buf["Api"] = call.API
	buf["Category"] = call.Category
	buf["ProcessName"] = call.ProcessName
	buf["ReturnValue"] = call.ReturnValue
	buf["Status"] = call.Status
	return buf
}

func processByPID(results *models.Results, pid int) *models.ProcessSummary {
	if results == nil {
		return nil
	}
	for _, proc := range results.Behavior.Processes {
		if proc.ProcessIdentifier == pid {
			return proc
		}
	}
	return nil
}

func parseSigmaRuleFile(path string) (sigma.Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("read sigma rule %s: %w", path, err)
	}
	rule, err := sigma.ParseRule(raw)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("parse sigma rule %s: %w", path, err)
	}
	return rule, nil
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

func isLinuxCompatible(rule sigma.Rule) bool {
	product := strings.ToLower(strings.TrimSpace(rule.Logsource.Product))
	return product == "" || product == "linux"
}

func isSimpleSingleEventRule(rule sigma.Rule) (bool, string) {
	if rule.Detection.Timeframe > 0 {
		return false, "timeframe is not supported"
	}

	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return false, "aggregation condition is not supported"
		}
		if !isSimpleSearchExpression(cond.Search) {
			return false, "complex condition expression is not supported"
		}
	}

	for _, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 {
			return false, "keyword search is not supported"
		}
		if len(search.EventMatchers) == 0 {
			return false, "search has no event matchers"
		}
	}

	return true, ""
}

func isSimpleSearchExpression(expr sigma.SearchExpr) bool {
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.And:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Or:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Not:
		return isSimpleSearchExpression(e.Expr)
	default:
		return false
	}
}

func severityFromLevel(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "informational":
		return 1
	case "low":
		return 2
	case "medium", "":
		return 3
	case "high":
		return 4
	case "critical":
		return 5
	default:
		return 3
	}
}
